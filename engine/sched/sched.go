// Package sched is the periodic seeder: on a fixed cadence it loads the
// curated seed list, claims each URL in the fingerprint index, and pushes
// only freshly claimed URLs onto the queue. Re-runs are cheap: duplicate
// seeds never reach a worker.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MachinaAI/machina-core/engine/domain"
	"github.com/MachinaAI/machina-core/engine/fingerprint"
	"github.com/MachinaAI/machina-core/engine/queue"
)

// Claimer is the fingerprint surface the scheduler uses.
type Claimer interface {
	TryClaim(ctx context.Context, url string, st domain.SourceType) (fingerprint.Claim, error)
}

// Scheduler seeds the queue on a cadence.
type Scheduler struct {
	seeds   func() ([]Seed, error)
	claims  Claimer
	queue   *queue.Queue
	cadence time.Duration
	log     *slog.Logger
}

// New creates a Scheduler. seeds is called on every run so the list file
// can change between cadences without a restart.
func New(seeds func() ([]Seed, error), claims Claimer, q *queue.Queue, cadence time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if cadence <= 0 {
		cadence = 4 * time.Hour
	}
	return &Scheduler{seeds: seeds, claims: claims, queue: q, cadence: cadence, log: log}
}

// Run seeds once immediately, then on every cadence tick until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.Seed(ctx); err != nil {
		s.log.Error("sched: initial seed failed", "error", err)
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.cadence), func() {
		if _, err := s.Seed(ctx); err != nil {
			s.log.Error("sched: seed run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("sched: cron: %w", err)
	}
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

// Seed performs one seeding pass and returns how many URLs were enqueued.
func (s *Scheduler) Seed(ctx context.Context) (int, error) {
	seeds, err := s.seeds()
	if err != nil {
		return 0, fmt.Errorf("sched: load seeds: %w", err)
	}

	enqueued := 0
	for _, seed := range seeds {
		if ctx.Err() != nil {
			return enqueued, ctx.Err()
		}
		claim, err := s.claims.TryClaim(ctx, seed.URL, domain.DetectSourceType(seed.URL))
		if err != nil {
			s.log.Error("sched: claim failed", "url", seed.URL, "error", err)
			continue
		}
		if !claim.Claimed {
			s.log.Debug("sched: already known", "url", seed.URL, "status", claim.ExistingStatus)
			continue
		}
		if err := s.queue.SetVendorHint(ctx, seed.URL, seed.Vendor); err != nil {
			s.log.Warn("sched: vendor hint not recorded", "url", seed.URL, "error", err)
		}
		if err := s.queue.Push(ctx, domain.CanonicalURL(seed.URL)); err != nil {
			s.log.Error("sched: push failed", "url", seed.URL, "error", err)
			continue
		}
		enqueued++
	}
	s.log.Info("sched: seed pass complete", "seeds", len(seeds), "enqueued", enqueued)
	return enqueued, nil
}
