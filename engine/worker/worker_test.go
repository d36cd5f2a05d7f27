package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MachinaAI/machina-core/engine/domain"
	"github.com/MachinaAI/machina-core/engine/queue"
)

// fakeRunner records the sources it was asked to ingest.
type fakeRunner struct {
	mu   sync.Mutex
	seen []domain.Source
	slow time.Duration
}

func (r *fakeRunner) Run(_ context.Context, src domain.Source) domain.SessionMetric {
	if r.slow > 0 {
		time.Sleep(r.slow)
	}
	r.mu.Lock()
	r.seen = append(r.seen, src)
	r.mu.Unlock()
	return domain.SessionMetric{SourceURL: src.URL, Status: domain.StatusSuccess}
}

func (r *fakeRunner) sources() []domain.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Source, len(r.seen))
	copy(out, r.seen)
	return out
}

func newTestWorker(t *testing.T, runner Runner) (*Worker, *queue.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	q := queue.New(rdb)
	w := New(q, runner, Opts{ID: "w-test", PopTimeout: 50 * time.Millisecond})
	return w, q
}

func TestWorkerProcessesQueuedURLs(t *testing.T) {
	runner := &fakeRunner{}
	w, q := newTestWorker(t, runner)
	ctx, cancel := context.WithCancel(context.Background())

	q.Push(ctx, "https://a.example/one.pdf")
	q.Push(ctx, "https://a.example/forum/thread-2")

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for len(runner.sources()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	seen := runner.sources()
	if len(seen) != 2 {
		t.Fatalf("processed: %d", len(seen))
	}
	if seen[0].Type != domain.SourcePDF {
		t.Fatalf("first source type: %s", seen[0].Type)
	}
	if seen[1].Type != domain.SourceForum {
		t.Fatalf("second source type: %s", seen[1].Type)
	}
}

func TestWorkerLoopsOnEmptyQueue(t *testing.T) {
	runner := &fakeRunner{}
	w, _ := newTestWorker(t, runner)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	// Liveness: several pop timeouts pass without the worker dying.
	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on cancellation")
	}
	if len(runner.sources()) != 0 {
		t.Fatal("nothing should be processed")
	}
}

func TestWorkerDrainsInFlightSessionOnShutdown(t *testing.T) {
	runner := &fakeRunner{slow: 300 * time.Millisecond}
	w, q := newTestWorker(t, runner)
	ctx, cancel := context.WithCancel(context.Background())

	q.Push(ctx, "https://a.example/slow.pdf")

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	// Give the worker time to pop, then signal shutdown mid-session.
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if len(runner.sources()) != 1 {
		t.Fatal("in-flight session should drain to its natural end")
	}
}

func TestWorkerPicksUpVendorHint(t *testing.T) {
	runner := &fakeRunner{}
	w, q := newTestWorker(t, runner)
	ctx, cancel := context.WithCancel(context.Background())

	url := "https://a.example/manual.pdf"
	q.SetVendorHint(ctx, url, "fanuc")
	q.Push(ctx, url)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for len(runner.sources()) < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	seen := runner.sources()
	if len(seen) != 1 || seen[0].VendorHint != "fanuc" {
		t.Fatalf("hint not propagated: %+v", seen)
	}
}
