// Command scheduler pushes the curated seed list onto the ingestion queue
// on a fixed cadence, deduplicating through the fingerprint index.
//
//	scheduler run   — block, seeding every cadence tick
//	scheduler once  — single seeding pass, then exit
//
// Exit codes: 0 normal, 1 configuration error, 2 fatal storage error at
// startup.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MachinaAI/machina-core/engine/fingerprint"
	"github.com/MachinaAI/machina-core/engine/queue"
	"github.com/MachinaAI/machina-core/engine/sched"
	"github.com/MachinaAI/machina-core/engine/store"
	"github.com/MachinaAI/machina-core/internal/config"
)

func main() {
	log := slog.Default()

	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if cmd != "run" && cmd != "once" {
		fmt.Fprintf(os.Stderr, "usage: scheduler [run|once]\n")
		os.Exit(1)
	}

	cfg, err := config.Load(false)
	if err != nil {
		log.Error("scheduler: bad configuration", "error", err)
		os.Exit(1)
	}
	if cfg.SeedPath == "" {
		log.Error("scheduler: KB_SEED_PATH is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := queue.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error("scheduler: redis connect failed", "error", err)
		os.Exit(2)
	}
	defer rdb.Close()

	pool, err := store.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("scheduler: postgres connect failed", "error", err)
		os.Exit(2)
	}
	defer pool.Close()
	if err := store.Migrate(ctx, pool, cfg.EmbedDim); err != nil {
		log.Error("scheduler: migrate failed", "error", err)
		os.Exit(2)
	}

	s := sched.New(
		sched.FileSeeds(cfg.SeedPath),
		fingerprint.New(pool, log),
		queue.New(rdb),
		cfg.SchedCadence,
		log,
	)

	if cmd == "once" {
		n, err := s.Seed(ctx)
		if err != nil {
			log.Error("scheduler: seed failed", "error", err)
			os.Exit(2)
		}
		log.Info("scheduler: done", "enqueued", n)
		return
	}

	if err := s.Run(ctx); err != nil {
		log.Error("scheduler: run failed", "error", err)
		os.Exit(2)
	}
}
