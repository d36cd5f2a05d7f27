package config

import (
	"strings"
	"testing"
	"time"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("KB_REDIS_ADDR", "localhost:6379")
	t.Setenv("KB_POSTGRES_DSN", "postgres://kb:kb@localhost:5432/kb")
	t.Setenv("KB_OPENAI_API_KEY", "sk-test")
	t.Setenv("KB_ANTHROPIC_API_KEY", "sk-ant-test")
}

func TestLoadDefaults(t *testing.T) {
	setBase(t)
	cfg, err := Load(true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EmbedDim != 1536 {
		t.Fatalf("embed dim: %d", cfg.EmbedDim)
	}
	if cfg.NotifyMode != NotifyBatch {
		t.Fatalf("mode: %s", cfg.NotifyMode)
	}
	if cfg.QuietStart != 23 || cfg.QuietEnd != 7 {
		t.Fatalf("quiet hours: %d-%d", cfg.QuietStart, cfg.QuietEnd)
	}
	if cfg.SchedCadence != 4*time.Hour {
		t.Fatalf("cadence: %s", cfg.SchedCadence)
	}
	if cfg.PopTimeout != 5*time.Second {
		t.Fatalf("pop timeout: %s", cfg.PopTimeout)
	}
	if cfg.FetchMaxBytes != 50<<20 {
		t.Fatalf("max bytes: %d", cfg.FetchMaxBytes)
	}
	if cfg.GenWidth != 1 {
		t.Fatalf("gen width: %d", cfg.GenWidth)
	}
	if cfg.WorkerID == "" {
		t.Fatal("worker id should default")
	}
}

func TestLoadMissingRedis(t *testing.T) {
	setBase(t)
	t.Setenv("KB_REDIS_ADDR", "")
	if _, err := Load(false); err == nil || !strings.Contains(err.Error(), "KB_REDIS_ADDR") {
		t.Fatalf("want redis error, got %v", err)
	}
}

func TestLoadWorkerNeedsModelKeys(t *testing.T) {
	setBase(t)
	t.Setenv("KB_ANTHROPIC_API_KEY", "")
	if _, err := Load(true); err == nil {
		t.Fatal("worker without anthropic key should fail")
	}
	if _, err := Load(false); err != nil {
		t.Fatalf("scheduler should not need model keys: %v", err)
	}
}

func TestLoadBadQuietHour(t *testing.T) {
	setBase(t)
	t.Setenv("KB_QUIET_START", "24")
	if _, err := Load(false); err == nil {
		t.Fatal("hour 24 should fail")
	}
}

func TestLoadBadNotifyMode(t *testing.T) {
	setBase(t)
	t.Setenv("KB_NOTIFY_MODE", "SOMETIMES")
	if _, err := Load(false); err == nil {
		t.Fatal("bad mode should fail")
	}
}

func TestLoadChatNeedsChatID(t *testing.T) {
	setBase(t)
	t.Setenv("KB_CHAT_API_URL", "https://chat.example/send")
	if _, err := Load(false); err == nil {
		t.Fatal("chat url without chat id should fail")
	}
	t.Setenv("KB_CHAT_ID", "ops")
	if _, err := Load(false); err != nil {
		t.Fatal(err)
	}
}

func TestLoadBadDuration(t *testing.T) {
	setBase(t)
	t.Setenv("KB_POP_TIMEOUT", "soon")
	if _, err := Load(false); err == nil {
		t.Fatal("bad duration should fail")
	}
}

func TestLoadOverrides(t *testing.T) {
	setBase(t)
	t.Setenv("KB_EMBED_DIM", "768")
	t.Setenv("KB_NOTIFY_MODE", "VERBOSE")
	t.Setenv("KB_GEN_WIDTH", "4")
	cfg, err := Load(true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EmbedDim != 768 || cfg.NotifyMode != NotifyVerbose || cfg.GenWidth != 4 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}
