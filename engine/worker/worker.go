// Package worker is the long-lived queue consumer: pop a URL, run the
// coordinator synchronously, loop. Shutdown drains the in-flight session
// to its natural end before exiting.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MachinaAI/machina-core/engine/domain"
	"github.com/MachinaAI/machina-core/engine/queue"
	"github.com/MachinaAI/machina-core/pkg/metrics"
)

// Runner drives one URL through the ingestion pipeline. Satisfied by
// pipeline.Coordinator.
type Runner interface {
	Run(ctx context.Context, src domain.Source) domain.SessionMetric
}

// heartbeatEvery is the liveness refresh cadence; the key TTL gives three
// missed beats before a worker reads as dead.
const heartbeatEvery = 5 * time.Second

// Opts configures a Worker.
type Opts struct {
	ID         string
	PopTimeout time.Duration
	Logger     *slog.Logger
}

// Worker consumes the queue until its context is cancelled.
type Worker struct {
	queue *queue.Queue
	coord Runner
	opts  Opts
	log   *slog.Logger
}

// New creates a Worker.
func New(q *queue.Queue, coord Runner, opts Opts) *Worker {
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Worker{queue: q, coord: coord, opts: opts, log: log}
}

// Run blocks until ctx is cancelled. A pop timeout just loops (liveness);
// a popped URL runs the full pipeline before the next pop. Cancellation
// stops new pops immediately but lets the in-flight session finish — its
// own timeouts bound how long that takes.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker: starting", "id", w.opts.ID, "pop_timeout", w.opts.PopTimeout)

	hbCtx, hbStop := context.WithCancel(ctx)
	defer hbStop()
	go w.heartbeat(hbCtx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker: shutdown signal, draining")
			return nil
		default:
		}

		if depth, err := w.queue.Depth(ctx); err == nil {
			metrics.QueueDepth.Set(float64(depth))
		}

		url, err := w.queue.Pop(ctx, w.opts.PopTimeout)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Error("worker: queue pop failed", "error", err)
			time.Sleep(time.Second)
			continue
		}

		// The session must not be cut short by shutdown; detach it from
		// the loop context and let stage timeouts bound it.
		sessCtx := context.WithoutCancel(ctx)
		src := domain.Source{
			URL:        url,
			Type:       domain.DetectSourceType(url),
			VendorHint: w.queue.VendorHint(sessCtx, url),
		}
		w.coord.Run(sessCtx, src)
	}
}

// heartbeat refreshes the liveness key until the worker stops.
func (w *Worker) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		if err := w.queue.Heartbeat(ctx, w.opts.ID); err != nil && ctx.Err() == nil {
			w.log.Warn("worker: heartbeat failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
