// Command worker consumes the ingestion queue.
//
//	worker run     — block and process URLs until SIGTERM/SIGINT
//	worker status  — report live workers and queue depth
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

	"github.com/nats-io/nats.go"

	"github.com/MachinaAI/machina-core/engine/atomgen"
	"github.com/MachinaAI/machina-core/engine/embed"
	"github.com/MachinaAI/machina-core/engine/fetch"
	"github.com/MachinaAI/machina-core/engine/fingerprint"
	"github.com/MachinaAI/machina-core/engine/monitor"
	"github.com/MachinaAI/machina-core/engine/notify"
	"github.com/MachinaAI/machina-core/engine/pipeline"
	"github.com/MachinaAI/machina-core/engine/queue"
	"github.com/MachinaAI/machina-core/engine/semantic"
	"github.com/MachinaAI/machina-core/engine/store"
	"github.com/MachinaAI/machina-core/engine/worker"
	"github.com/MachinaAI/machina-core/internal/config"
	"github.com/MachinaAI/machina-core/pkg/metrics"
)

func main() {
	log := slog.Default()

	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	cfg, err := config.Load(cmd == "run")
	if err != nil {
		log.Error("worker: bad configuration", "error", err)
		os.Exit(1)
	}

	switch cmd {
	case "run":
		os.Exit(run(cfg, log))
	case "status":
		os.Exit(status(cfg, log))
	default:
		fmt.Fprintf(os.Stderr, "usage: worker [run|status]\n")
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Serve(cfg.MetricsPort)

	rdb, err := queue.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error("worker: redis connect failed", "error", err)
		return 2
	}
	defer rdb.Close()
	q := queue.New(rdb)

	pool, err := store.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("worker: postgres connect failed", "error", err)
		return 2
	}
	defer pool.Close()
	if err := store.Migrate(ctx, pool, cfg.EmbedDim); err != nil {
		log.Error("worker: migrate failed", "error", err)
		return 2
	}
	log.Info("worker: connected to Postgres")

	var mirror pipeline.Mirror
	if cfg.QdrantAddr != "" {
		m, err := semantic.New(cfg.QdrantAddr, cfg.QdrantCollection)
		if err != nil {
			log.Warn("worker: qdrant unavailable, mirroring disabled", "error", err)
		} else {
			defer m.Close()
			if err := m.EnsureCollection(ctx, cfg.EmbedDim); err != nil {
				log.Warn("worker: qdrant collection not ensured, mirroring disabled", "error", err)
			} else {
				mirror = m
				log.Info("worker: mirroring to Qdrant", "collection", cfg.QdrantCollection)
			}
		}
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Warn("worker: nats unavailable, metric broadcast disabled", "error", err)
			nc = nil
		} else {
			defer nc.Close()
		}
	}

	mon := monitor.New(store.NewMetricWriter(pool), monitor.Opts{
		FailoverPath: cfg.FailoverPath,
		Logger:       log,
		NATS:         nc,
	})
	defer mon.Close()

	var sender notify.Sender
	if cfg.ChatAPIURL != "" {
		sender = notify.NewChatTransport(cfg.ChatAPIURL, cfg.ChatID)
	}
	notifier := notify.New(notify.Opts{
		Mode:            notify.Mode(cfg.NotifyMode),
		Sender:          sender,
		QuietStart:      cfg.QuietStart,
		QuietEnd:        cfg.QuietEnd,
		Degraded:        mon.Degraded,
		FailedSendsPath: cfg.FailedSendsPath,
		Logger:          log,
	})
	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		notifier.Run(ctx, mon.Events())
	}()

	coord := pipeline.New(pipeline.Deps{
		Fetcher: fetch.New(fetch.Opts{
			MaxBytes:   cfg.FetchMaxBytes,
			UserAgent:  cfg.FetchUserAgent,
			CrawlDelay: cfg.CrawlDelay,
		}),
		Generator:    atomgen.New(atomgen.NewAnthropicClient(cfg.AnthropicKey, cfg.AnthropicModel), cfg.GenWidth, log),
		Embedder:     embed.New(embed.NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIModel, cfg.EmbedDim), cfg.EmbedDim),
		Store:        store.NewAtomStore(pool),
		Mirror:       mirror,
		Fingerprints: fingerprint.New(pool, log),
		Monitor:      mon,
		Logger:       log,
	})

	w := worker.New(q, coord, worker.Opts{
		ID:         cfg.WorkerID,
		PopTimeout: cfg.PopTimeout,
		Logger:     log,
	})
	if err := w.Run(ctx); err != nil {
		log.Error("worker: run failed", "error", err)
		return 2
	}

	<-notifyDone
	log.Info("worker: drained, exiting")
	return 0
}

func status(cfg config.Config, log *slog.Logger) int {
	ctx := context.Background()
	rdb, err := queue.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error("worker: redis connect failed", "error", err)
		return 2
	}
	defer rdb.Close()
	q := queue.New(rdb)

	workers, err := q.LiveWorkers(ctx)
	if err != nil {
		log.Error("worker: status read failed", "error", err)
		return 2
	}
	depth, err := q.Depth(ctx)
	if err != nil {
		log.Error("worker: status read failed", "error", err)
		return 2
	}

	fmt.Printf("queue depth: %d\n", depth)
	fmt.Printf("live workers: %d\n", len(workers))
	for _, id := range workers {
		fmt.Printf("  - %s\n", id)
	}
	if len(workers) == 0 {
		return 1
	}
	return 0
}
