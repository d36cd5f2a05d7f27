package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MachinaAI/machina-core/engine/domain"
)

const insertMetricSQL = `
	INSERT INTO session_metrics_realtime (
		source_url, source_hash, source_type, status, atoms_created,
		atoms_failed, chunks_processed, avg_quality_score, quality_pass_rate,
		stage_1_ms, stage_2_ms, stage_3_ms, stage_4_ms, stage_5_ms,
		stage_6_ms, stage_7_ms, total_duration_ms, error_stage,
		error_message, vendor, equipment_type, started_at, completed_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`

// MetricWriter batch-inserts session metrics. It satisfies the monitor's
// writer contract.
type MetricWriter struct {
	db DB
}

// NewMetricWriter creates a MetricWriter.
func NewMetricWriter(db DB) *MetricWriter {
	return &MetricWriter{db: db}
}

// WriteBatch inserts the rows in one round trip. All-or-nothing: a failed
// batch leaves the caller holding every row for failover.
func (w *MetricWriter) WriteBatch(ctx context.Context, rows []domain.SessionMetric) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range rows {
		batch.Queue(insertMetricSQL,
			m.SourceURL, m.SourceHash, string(m.SourceType), string(m.Status),
			m.AtomsCreated, m.AtomsFailed, m.ChunksProcessed,
			m.AvgQualityScore, m.QualityPassRate,
			m.StageMS[0], m.StageMS[1], m.StageMS[2], m.StageMS[3],
			m.StageMS[4], m.StageMS[5], m.StageMS[6],
			m.TotalDurationMS, nullable(m.ErrorStage), nullable(m.ErrorMessage),
			nullable(m.Vendor), nullable(m.EquipmentType),
			m.StartedAt, m.CompletedAt)
	}
	results := w.db.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("store: insert metric: %w", err)
		}
	}
	return nil
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
