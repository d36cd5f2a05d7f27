// Package notify delivers operator notifications for finished ingestion
// sessions, either one message per session (VERBOSE) or a periodic summary
// (BATCH), under a token-bucket rate limit and daily quiet hours. A
// notifier failure never propagates to the pipeline.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/MachinaAI/machina-core/engine/domain"
	"github.com/MachinaAI/machina-core/pkg/metrics"
	"github.com/MachinaAI/machina-core/pkg/resilience"
)

// Mode selects the delivery strategy.
type Mode string

const (
	Verbose Mode = "VERBOSE"
	Batch   Mode = "BATCH"
)

const (
	// BatchCadence is how often BATCH mode assembles a summary.
	BatchCadence = 300 * time.Second
	// RingCap bounds the BATCH buffer; oldest entries are overwritten
	// on overflow.
	RingCap = 1000
	// Rate limit: 20 messages per rolling 60 seconds, linear refill.
	bucketCapacity = 20
	refillPerSec   = 20.0 / 60.0
)

// Opts configures a Notifier.
type Opts struct {
	Mode       Mode
	Sender     Sender
	QuietStart int // local hour, inclusive
	QuietEnd   int // local hour, exclusive
	// Degraded surfaces the monitor's failover flag on messages.
	Degraded func() bool
	// FailedSendsPath receives messages dropped from the live stream.
	FailedSendsPath string
	Logger          *slog.Logger
}

// Notifier consumes finalized session metrics and sends chat messages.
type Notifier struct {
	mode     Mode
	sender   Sender
	limiter  *resilience.Limiter
	quiet    quietHours
	degraded func() bool
	failed   *failedSendLog
	log      *slog.Logger

	ring     []domain.SessionMetric
	ringHead int
	ringLen  int
	overflow int

	now func() time.Time
}

// New creates a Notifier.
func New(opts Opts) *Notifier {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	degraded := opts.Degraded
	if degraded == nil {
		degraded = func() bool { return false }
	}
	return &Notifier{
		mode:   opts.Mode,
		sender: opts.Sender,
		limiter: resilience.NewLimiter(resilience.LimiterOpts{
			Rate:  refillPerSec,
			Burst: bucketCapacity,
		}),
		quiet:    quietHours{start: opts.QuietStart, end: opts.QuietEnd},
		degraded: degraded,
		failed:   newFailedSendLog(opts.FailedSendsPath),
		log:      opts.Logger,
		ring:     make([]domain.SessionMetric, RingCap),
		now:      time.Now,
	}
}

// Run consumes events until ctx is cancelled, then performs a bounded
// final flush. Intended to run as its own goroutine; it never returns an
// error because notification failure must never fail a session.
func (n *Notifier) Run(ctx context.Context, events <-chan domain.SessionMetric) {
	ticker := time.NewTicker(BatchCadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.finalFlush()
			return
		case m, ok := <-events:
			if !ok {
				n.finalFlush()
				return
			}
			n.observe(ctx, m)
		case <-ticker.C:
			if n.mode == Batch {
				n.flushSummary(ctx)
			}
		}
	}
}

// observe handles one finished session according to the mode.
func (n *Notifier) observe(ctx context.Context, m domain.SessionMetric) {
	if n.mode == Verbose {
		if n.quiet.contains(n.now()) {
			metrics.NotifySends.WithLabelValues("suppressed_quiet").Inc()
			return
		}
		n.send(ctx, formatSession(m, n.degraded()))
		return
	}
	n.push(m)
}

// push appends to the ring, overwriting the oldest entry on overflow.
func (n *Notifier) push(m domain.SessionMetric) {
	if n.ringLen < len(n.ring) {
		n.ring[(n.ringHead+n.ringLen)%len(n.ring)] = m
		n.ringLen++
		return
	}
	// Overflow: overwrite oldest. Logged as an event and counted into
	// the next summary.
	n.ring[n.ringHead] = m
	n.ringHead = (n.ringHead + 1) % len(n.ring)
	n.overflow++
	n.log.Warn("notify: batch_overflow, oldest session dropped from summary")
}

// flushSummary assembles and sends the periodic BATCH summary. During
// quiet hours the summary is suppressed and the buffer keeps accumulating.
func (n *Notifier) flushSummary(ctx context.Context) {
	if n.quiet.contains(n.now()) {
		metrics.NotifySends.WithLabelValues("suppressed_quiet").Inc()
		return
	}
	if n.ringLen == 0 && n.overflow == 0 {
		return
	}

	stats := newSummaryStats()
	for i := 0; i < n.ringLen; i++ {
		stats.add(n.ring[(n.ringHead+i)%len(n.ring)])
	}
	stats.overflow = n.overflow
	stats.degraded = n.degraded()

	n.ringHead = 0
	n.ringLen = 0
	n.overflow = 0

	n.send(ctx, formatSummary(stats))
}

// send delivers one message through the rate limiter. The bucket wait is
// bounded by the next quiet-hours boundary; a message that cannot get a
// token in time goes to the failed-sends log and is dropped from the live
// stream (the metric store already has the session).
func (n *Notifier) send(ctx context.Context, text string) {
	if n.sender == nil {
		return
	}
	deadline := n.quiet.nextStart(n.now())
	if err := n.limiter.Wait(ctx, deadline); err != nil {
		n.dropped(text, "rate_limited: "+err.Error())
		return
	}
	if err := n.sender.Send(ctx, text); err != nil {
		n.dropped(text, "transport: "+err.Error())
		return
	}
	metrics.NotifySends.WithLabelValues("sent").Inc()
}

func (n *Notifier) dropped(text, reason string) {
	metrics.NotifySends.WithLabelValues("dropped").Inc()
	n.log.Warn("notify: message dropped", "reason", reason)
	if err := n.failed.Append(text, reason); err != nil {
		n.log.Error("notify: failed-sends log write failed", "error", err)
	}
}

// finalFlush sends a last BATCH summary if one is due and allowed. Bounded
// by its own short deadline so shutdown stays prompt.
func (n *Notifier) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if n.mode == Batch {
		n.flushSummary(ctx)
	}
}

// quietHours is a daily [start, end) hour window in local time, possibly
// wrapping midnight. start == end means no quiet hours.
type quietHours struct {
	start int
	end   int
}

func (q quietHours) contains(t time.Time) bool {
	if q.start == q.end {
		return false
	}
	h := t.Hour()
	if q.start < q.end {
		return h >= q.start && h < q.end
	}
	return h >= q.start || h < q.end
}

// nextStart returns the next moment quiet hours begin, which bounds how
// long a send may block on the rate limiter.
func (q quietHours) nextStart(t time.Time) time.Time {
	if q.start == q.end {
		return time.Time{}
	}
	next := time.Date(t.Year(), t.Month(), t.Day(), q.start, 0, 0, 0, t.Location())
	if !next.After(t) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
