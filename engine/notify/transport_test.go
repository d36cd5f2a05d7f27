package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MachinaAI/machina-core/pkg/resilience"
)

// noSleep makes the retry ladder instantaneous in tests.
func noSleep(t *ChatTransport) *ChatTransport {
	t.sleep = func(context.Context, time.Duration) error { return nil }
	return t
}

func TestTransportSendsPayload(t *testing.T) {
	var got chatPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
	}))
	defer srv.Close()

	tr := noSleep(NewChatTransport(srv.URL, "ops-channel"))
	if err := tr.Send(context.Background(), "hello operators"); err != nil {
		t.Fatal(err)
	}
	if got.ChatID != "ops-channel" || got.Text != "hello operators" {
		t.Fatalf("payload: %+v", got)
	}
}

func TestTransportRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	tr := noSleep(NewChatTransport(srv.URL, "c"))
	if err := tr.Send(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls: %d", calls.Load())
	}
}

// TestTransportGivesUpAfterThree checks that three retries follow the
// first failed try, then the error is terminal.
func TestTransportGivesUpAfterThree(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := noSleep(NewChatTransport(srv.URL, "c"))
	if err := tr.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected terminal error")
	}
	if calls.Load() != sendAttempts {
		t.Fatalf("calls: %d", calls.Load())
	}
}

func TestTransportHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
	}))
	defer srv.Close()

	var waited time.Duration
	tr := NewChatTransport(srv.URL, "c")
	tr.sleep = func(_ context.Context, d time.Duration) error {
		waited = d
		return nil
	}
	if err := tr.Send(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if waited != 7*time.Second {
		t.Fatalf("waited %v, want Retry-After 7s over the 1s backoff", waited)
	}
}

func TestTransportOpenBreakerFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := noSleep(NewChatTransport(srv.URL, "c"))
	tr.breaker = resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Hour})

	tr.Send(context.Background(), "first")
	before := calls.Load()
	err := tr.Send(context.Background(), "second")
	if err != resilience.ErrCircuitOpen {
		t.Fatalf("want open circuit, got %v", err)
	}
	if calls.Load() != before {
		t.Fatal("open breaker must not hit the transport")
	}
}
