package monitor

import (
	"time"

	"github.com/MachinaAI/machina-core/engine/domain"
	"github.com/MachinaAI/machina-core/pkg/metrics"
)

// Session accumulates stage timings for one ingestion attempt. Not safe
// for concurrent use; a session belongs to one coordinator goroutine.
type Session struct {
	monitor  *Monitor
	metric   domain.SessionMetric
	finished bool
}

// RecordStage stores the duration for stage index (0-based). Called for
// every executed stage, including the one that failed.
func (s *Session) RecordStage(idx int, d time.Duration, ok bool) {
	if idx < 0 || idx >= domain.StageCount {
		return
	}
	s.metric.StageMS[idx] = d.Milliseconds()
	metrics.StageDuration.WithLabelValues(domain.StageNames[idx]).Observe(d.Seconds())
}

// FinishArgs carries the session outcome into the metric row.
type FinishArgs struct {
	Status          domain.SessionStatus
	AtomsCreated    int
	AtomsFailed     int
	ChunksProcessed int
	AvgQualityScore float64
	QualityPassRate float64
	ErrorStage      string
	ErrorMessage    string
	Vendor          string
	EquipmentType   string
}

// Finish finalizes the metric and enqueues it for durable delivery.
// TotalDurationMS is the sum of the recorded stage times, keeping the
// additivity invariant exact even when generation ran chunks in parallel.
// Calling Finish twice is a no-op after the first.
func (s *Session) Finish(args FinishArgs) domain.SessionMetric {
	if s.finished {
		return s.metric
	}
	s.finished = true

	s.metric.Status = args.Status
	s.metric.AtomsCreated = args.AtomsCreated
	s.metric.AtomsFailed = args.AtomsFailed
	s.metric.ChunksProcessed = args.ChunksProcessed
	s.metric.AvgQualityScore = args.AvgQualityScore
	s.metric.QualityPassRate = args.QualityPassRate
	s.metric.ErrorStage = args.ErrorStage
	s.metric.ErrorMessage = args.ErrorMessage
	s.metric.Vendor = args.Vendor
	s.metric.EquipmentType = args.EquipmentType
	s.metric.CompletedAt = s.monitor.now().UTC()

	var total int64
	for _, ms := range s.metric.StageMS {
		total += ms
	}
	s.metric.TotalDurationMS = total

	metrics.SessionsTotal.WithLabelValues(string(args.Status)).Inc()
	metrics.AtomsCreated.Add(float64(args.AtomsCreated))
	metrics.AtomsFailed.Add(float64(args.AtomsFailed))

	s.monitor.enqueue(s.metric)
	return s.metric
}
