package queue

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// hintsKey is the Redis hash mapping url_hash to the seed-list vendor
// hint. The queue wire format stays a bare URL; hints ride alongside.
const hintsKey = "kb:vendor_hints"

// SetVendorHint records the advisory vendor hint for a URL.
func (q *Queue) SetVendorHint(ctx context.Context, url, vendor string) error {
	if vendor == "" {
		return nil
	}
	return q.rdb.HSet(ctx, hintsKey, domain.URLHash(url), vendor).Err()
}

// VendorHint returns the hint for a URL, or "" when none was recorded.
// Best-effort: lookup errors read as no hint.
func (q *Queue) VendorHint(ctx context.Context, url string) string {
	v, err := q.rdb.HGet(ctx, hintsKey, domain.URLHash(url)).Result()
	if err == redis.Nil || err != nil {
		return ""
	}
	return v
}
