// Package config loads service configuration from the environment.
// A .env file in the working directory is applied first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// NotifyMode selects how the notifier delivers messages.
type NotifyMode string

const (
	NotifyVerbose NotifyMode = "VERBOSE"
	NotifyBatch   NotifyMode = "BATCH"
)

// Config is the full environment-derived configuration of the service.
type Config struct {
	RedisAddr   string
	PostgresDSN string

	QdrantAddr       string
	QdrantCollection string
	NATSURL          string

	EmbedDim       int
	OpenAIKey      string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string

	ChatAPIURL string
	ChatID     string

	NotifyMode NotifyMode
	QuietStart int
	QuietEnd   int

	SeedPath     string
	SchedCadence time.Duration
	PopTimeout   time.Duration

	FetchMaxBytes  int64
	FetchUserAgent string
	CrawlDelay     time.Duration
	GenWidth       int

	FailoverPath    string
	FailedSendsPath string
	MetricsPort     int
	WorkerID        string
}

// Load reads configuration from the environment. Worker-only keys are
// validated only when forWorker is set so the scheduler can start without
// model credentials.
func Load(forWorker bool) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		RedisAddr:        os.Getenv("KB_REDIS_ADDR"),
		PostgresDSN:      os.Getenv("KB_POSTGRES_DSN"),
		QdrantAddr:       os.Getenv("KB_QDRANT_ADDR"),
		QdrantCollection: getEnv("KB_QDRANT_COLLECTION", "kb_atoms"),
		NATSURL:          os.Getenv("KB_NATS_URL"),
		OpenAIKey:        os.Getenv("KB_OPENAI_API_KEY"),
		OpenAIModel:      getEnv("KB_OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		AnthropicKey:     os.Getenv("KB_ANTHROPIC_API_KEY"),
		AnthropicModel:   getEnv("KB_ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		ChatAPIURL:       os.Getenv("KB_CHAT_API_URL"),
		ChatID:           os.Getenv("KB_CHAT_ID"),
		NotifyMode:       NotifyMode(getEnv("KB_NOTIFY_MODE", string(NotifyBatch))),
		SeedPath:         os.Getenv("KB_SEED_PATH"),
		FetchUserAgent:   getEnv("KB_FETCH_USER_AGENT", "machina-kb/1.0"),
		FailoverPath:     getEnv("KB_FAILOVER_PATH", "metrics_failover.jsonl"),
		FailedSendsPath:  getEnv("KB_FAILED_SENDS_PATH", "failed_sends.jsonl"),
		WorkerID:         getEnv("KB_WORKER_ID", defaultWorkerID()),
	}

	if cfg.RedisAddr == "" {
		return Config{}, fmt.Errorf("config: KB_REDIS_ADDR is required")
	}
	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("config: KB_POSTGRES_DSN is required")
	}
	if forWorker {
		if cfg.OpenAIKey == "" {
			return Config{}, fmt.Errorf("config: KB_OPENAI_API_KEY is required")
		}
		if cfg.AnthropicKey == "" {
			return Config{}, fmt.Errorf("config: KB_ANTHROPIC_API_KEY is required")
		}
	}
	if cfg.ChatAPIURL != "" && cfg.ChatID == "" {
		return Config{}, fmt.Errorf("config: KB_CHAT_ID is required when KB_CHAT_API_URL is set")
	}
	switch cfg.NotifyMode {
	case NotifyVerbose, NotifyBatch:
	default:
		return Config{}, fmt.Errorf("config: KB_NOTIFY_MODE must be VERBOSE or BATCH, got %q", cfg.NotifyMode)
	}

	var err error
	if cfg.EmbedDim, err = intEnv("KB_EMBED_DIM", 1536); err != nil {
		return Config{}, err
	}
	if cfg.QuietStart, err = hourEnv("KB_QUIET_START", 23); err != nil {
		return Config{}, err
	}
	if cfg.QuietEnd, err = hourEnv("KB_QUIET_END", 7); err != nil {
		return Config{}, err
	}
	if cfg.SchedCadence, err = durEnv("KB_SCHED_CADENCE", 4*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.PopTimeout, err = durEnv("KB_POP_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CrawlDelay, err = durEnv("KB_CRAWL_DELAY", time.Second); err != nil {
		return Config{}, err
	}
	maxBytes, err := intEnv("KB_FETCH_MAX_BYTES", 50<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.FetchMaxBytes = int64(maxBytes)
	if cfg.GenWidth, err = intEnv("KB_GEN_WIDTH", 1); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = intEnv("KB_METRICS_PORT", 9091); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return n, nil
}

func hourEnv(key string, fallback int) (int, error) {
	n, err := intEnv(key, fallback)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 23 {
		return 0, fmt.Errorf("config: %s must be 0-23, got %d", key, n)
	}
	return n, nil
}

func durEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
