// Package queue wraps the Redis list that carries pending source URLs and
// the worker heartbeat keys used by the status command.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Key is the Redis list holding pending URLs, oldest at the tail.
	Key = "kb:queue:pending"
	// heartbeatPrefix namespaces per-worker liveness keys.
	heartbeatPrefix = "kb:worker:"
	// HeartbeatTTL is how long a heartbeat key lives without refresh.
	HeartbeatTTL = 15 * time.Second
)

// ErrEmpty is returned by Pop when no URL arrived within the timeout.
var ErrEmpty = errors.New("queue empty")

// Queue is a durable FIFO of pending URLs backed by a Redis list. Each
// entry is the canonical URL as a bare UTF-8 string, no envelope.
type Queue struct {
	rdb *redis.Client
}

// New creates a Queue on the given Redis client.
func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Push appends a URL to the queue.
func (q *Queue) Push(ctx context.Context, url string) error {
	if err := q.rdb.LPush(ctx, Key, url).Err(); err != nil {
		return fmt.Errorf("queue: push: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the next URL. Returns ErrEmpty on timeout
// so callers can loop for liveness.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, Key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", fmt.Errorf("queue: pop: %w", err)
	}
	// BRPop returns [key, value].
	return res[1], nil
}

// Depth returns the number of pending URLs.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, Key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: depth: %w", err)
	}
	return n, nil
}

// Heartbeat refreshes the liveness key for a worker.
func (q *Queue) Heartbeat(ctx context.Context, workerID string) error {
	return q.rdb.Set(ctx, heartbeatPrefix+workerID, time.Now().UTC().Format(time.RFC3339), HeartbeatTTL).Err()
}

// LiveWorkers lists worker IDs with unexpired heartbeats.
func (q *Queue) LiveWorkers(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		ids    []string
	)
	for {
		keys, next, err := q.rdb.Scan(ctx, cursor, heartbeatPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("queue: scan workers: %w", err)
		}
		for _, k := range keys {
			ids = append(ids, k[len(heartbeatPrefix):])
		}
		if next == 0 {
			return ids, nil
		}
		cursor = next
	}
}
