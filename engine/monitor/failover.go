package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// FailoverLog is the append-only JSONL mirror of the metrics table, used
// when the database is unreachable. One JSON object per line, schema
// identical to the realtime row.
type FailoverLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFailoverLog creates a log at path. The file opens lazily on first
// append so a healthy deployment never creates it.
func NewFailoverLog(path string) *FailoverLog {
	return &FailoverLog{path: path}
}

// failoverRow flattens StageMS into the named stage_N_ms columns so the
// JSONL schema matches the table exactly.
type failoverRow struct {
	SourceURL       string  `json:"source_url"`
	SourceHash      string  `json:"source_hash"`
	SourceType      string  `json:"source_type"`
	Status          string  `json:"status"`
	AtomsCreated    int     `json:"atoms_created"`
	AtomsFailed     int     `json:"atoms_failed"`
	ChunksProcessed int     `json:"chunks_processed"`
	AvgQualityScore float64 `json:"avg_quality_score"`
	QualityPassRate float64 `json:"quality_pass_rate"`
	Stage1MS        int64   `json:"stage_1_ms"`
	Stage2MS        int64   `json:"stage_2_ms"`
	Stage3MS        int64   `json:"stage_3_ms"`
	Stage4MS        int64   `json:"stage_4_ms"`
	Stage5MS        int64   `json:"stage_5_ms"`
	Stage6MS        int64   `json:"stage_6_ms"`
	Stage7MS        int64   `json:"stage_7_ms"`
	TotalDurationMS int64   `json:"total_duration_ms"`
	ErrorStage      string  `json:"error_stage,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	Vendor          string  `json:"vendor,omitempty"`
	EquipmentType   string  `json:"equipment_type,omitempty"`
	StartedAt       string  `json:"started_at"`
	CompletedAt     string  `json:"completed_at"`
}

// Append writes one metric as a JSON line and syncs.
func (l *FailoverLog) Append(m domain.SessionMetric) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failover: open %s: %w", l.path, err)
		}
		l.f = f
	}

	row := failoverRow{
		SourceURL:       m.SourceURL,
		SourceHash:      m.SourceHash,
		SourceType:      string(m.SourceType),
		Status:          string(m.Status),
		AtomsCreated:    m.AtomsCreated,
		AtomsFailed:     m.AtomsFailed,
		ChunksProcessed: m.ChunksProcessed,
		AvgQualityScore: m.AvgQualityScore,
		QualityPassRate: m.QualityPassRate,
		Stage1MS:        m.StageMS[0],
		Stage2MS:        m.StageMS[1],
		Stage3MS:        m.StageMS[2],
		Stage4MS:        m.StageMS[3],
		Stage5MS:        m.StageMS[4],
		Stage6MS:        m.StageMS[5],
		Stage7MS:        m.StageMS[6],
		TotalDurationMS: m.TotalDurationMS,
		ErrorStage:      m.ErrorStage,
		ErrorMessage:    m.ErrorMessage,
		Vendor:          m.Vendor,
		EquipmentType:   m.EquipmentType,
		StartedAt:       m.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		CompletedAt:     m.CompletedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failover: marshal: %w", err)
	}
	if _, err := l.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failover: write: %w", err)
	}
	return l.f.Sync()
}

// Close closes the underlying file if it was opened.
func (l *FailoverLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
