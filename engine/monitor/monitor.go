// Package monitor collects per-session ingestion metrics, batches them
// into the realtime metrics table, and fails over to an append-only JSONL
// log when the store is unreachable. No metric row is ever dropped:
// at-least-once delivery to some durable medium is guaranteed.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MachinaAI/machina-core/engine/domain"
	"github.com/MachinaAI/machina-core/pkg/metrics"
	"github.com/MachinaAI/machina-core/pkg/natsutil"
)

// RowWriter is the metric store contract. The batch either fully lands or
// the caller keeps every row.
type RowWriter interface {
	WriteBatch(ctx context.Context, rows []domain.SessionMetric) error
}

const (
	// DefaultQueueCap bounds unwritten metrics held in memory.
	DefaultQueueCap = 1000
	// BatchSize is the maximum rows per insert.
	BatchSize = 50
	// FlushEvery is the writer cadence when the batch does not fill.
	FlushEvery = 5 * time.Second
	// degradedWindow and degradedThreshold define the failover-rate
	// window: more than 10% failover over the last 100 rows sets the
	// degraded flag.
	degradedWindow    = 100
	degradedThreshold = 0.10

	// NATSSubject receives each finalized metric when broadcast is on.
	NATSSubject = "kb.metrics.session"
)

// Opts configures a Monitor.
type Opts struct {
	QueueCap     int
	FailoverPath string
	Logger       *slog.Logger
	// NATS broadcasts finalized metrics when non-nil.
	NATS *nats.Conn
}

// Monitor owns the in-process metric queue and its writer goroutine.
type Monitor struct {
	writer   RowWriter
	failover *FailoverLog
	log      *slog.Logger
	nats     *nats.Conn

	queue  chan domain.SessionMetric
	events chan domain.SessionMetric

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}

	mu       sync.Mutex
	window   []bool // true = row went to failover
	degraded bool

	now func() time.Time
}

// New creates a Monitor. The writer goroutine starts lazily on the first
// OpenSession.
func New(writer RowWriter, opts Opts) *Monitor {
	if opts.QueueCap <= 0 {
		opts.QueueCap = DefaultQueueCap
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Monitor{
		writer:   writer,
		failover: NewFailoverLog(opts.FailoverPath),
		log:      opts.Logger,
		nats:     opts.NATS,
		queue:    make(chan domain.SessionMetric, opts.QueueCap),
		events:   make(chan domain.SessionMetric, opts.QueueCap),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// OpenSession starts metric collection for one source. Cheap: the handle
// is a plain struct, and record/finish never touch storage.
func (m *Monitor) OpenSession(url string, st domain.SourceType) *Session {
	m.startOnce.Do(func() { go m.run() })
	return &Session{
		monitor: m,
		metric: domain.SessionMetric{
			SourceURL:  url,
			SourceHash: domain.URLHash(url),
			SourceType: st,
			StartedAt:  m.now().UTC(),
		},
	}
}

// Events is the read-only stream of finalized metrics the notifier
// subscribes to. The monitor never blocks on a slow consumer: when the
// buffer is full the event is dropped (the metric row is already on its
// way to durable storage).
func (m *Monitor) Events() <-chan domain.SessionMetric {
	return m.events
}

// Degraded reports whether the failover rate over the recent window has
// crossed the threshold.
func (m *Monitor) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// enqueue hands a finalized metric to the writer. When the queue is full
// the row goes straight to the failover log so it is never lost.
func (m *Monitor) enqueue(metric domain.SessionMetric) {
	select {
	case m.queue <- metric:
	default:
		m.log.Warn("monitor: queue full, writing row to failover", "source", metric.SourceURL)
		m.spill([]domain.SessionMetric{metric})
	}

	select {
	case m.events <- metric:
	default:
		m.log.Warn("monitor: event buffer full, notifier missed a session", "source", metric.SourceURL)
	}
}

// run is the writer loop: drain up to BatchSize rows or FlushEvery,
// whichever first, then insert.
func (m *Monitor) run() {
	defer close(m.done)
	ticker := time.NewTicker(FlushEvery)
	defer ticker.Stop()

	var batch []domain.SessionMetric
	flush := func() {
		if len(batch) == 0 {
			return
		}
		m.write(batch)
		batch = nil
	}

	for {
		select {
		case row := <-m.queue:
			batch = append(batch, row)
			if len(batch) >= BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-m.stop:
			// Final flush: drain whatever is queued, then stop. Bounded
			// because the queue is bounded and producers have stopped.
			for {
				select {
				case row := <-m.queue:
					batch = append(batch, row)
					if len(batch) >= BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// write lands one batch in the store, falling back to the failover log.
func (m *Monitor) write(rows []domain.SessionMetric) {
	ctx, cancel := context.WithTimeout(context.Background(), FlushEvery)
	err := m.writer.WriteBatch(ctx, rows)
	cancel()
	if err != nil {
		m.log.Error("monitor: metric insert failed, failing over", "rows", len(rows), "error", err)
		m.spill(rows)
		return
	}
	metrics.MetricRowsWritten.Add(float64(len(rows)))
	m.record(len(rows), false)
	m.broadcast(rows)
}

// spill appends rows to the failover log. Rows that cannot even be logged
// are reported loudly; that is the end of the durability chain.
func (m *Monitor) spill(rows []domain.SessionMetric) {
	for _, row := range rows {
		if err := m.failover.Append(row); err != nil {
			m.log.Error("monitor: failover append failed, row lost", "source", row.SourceURL, "error", err)
			continue
		}
		metrics.MetricRowsFailover.Inc()
	}
	m.record(len(rows), true)
	m.broadcast(rows)
}

// record tracks write outcomes over the rolling window and maintains the
// degraded flag.
func (m *Monitor) record(n int, failedOver bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.window = append(m.window, failedOver)
	}
	if len(m.window) > degradedWindow {
		m.window = m.window[len(m.window)-degradedWindow:]
	}
	var spilled int
	for _, f := range m.window {
		if f {
			spilled++
		}
	}
	m.degraded = float64(spilled) > degradedThreshold*float64(len(m.window))
	if m.degraded {
		metrics.MonitorDegraded.Set(1)
	} else {
		metrics.MonitorDegraded.Set(0)
	}
}

// broadcast publishes rows to NATS when configured. Best-effort.
func (m *Monitor) broadcast(rows []domain.SessionMetric) {
	if m.nats == nil {
		return
	}
	for _, row := range rows {
		if err := natsutil.Publish(context.Background(), m.nats, NATSSubject, row); err != nil {
			m.log.Warn("monitor: nats publish failed", "error", err)
			return
		}
	}
}

// Close stops the writer after a bounded final flush. Safe to call more
// than once; only the first call does work.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() {
		m.startOnce.Do(func() { go m.run() }) // ensure run exists to observe stop
		close(m.stop)
		<-m.done
	})
}
