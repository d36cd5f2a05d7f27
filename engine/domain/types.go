// Package domain holds the core data model of the knowledge-base ingestion
// engine: sources, fingerprints, chunks, atoms, and session metrics, plus
// the validation rules and error kinds shared across pipeline stages.
package domain

import "time"

// SourceType classifies what kind of document a URL points at.
type SourceType string

const (
	SourcePDF   SourceType = "pdf"
	SourceHTML  SourceType = "html"
	SourceForum SourceType = "forum"
	SourceText  SourceType = "text"
)

// Source is a URL queued for ingestion, plus an optional vendor hint from
// the seed list. The hint is advisory and never stored on atoms.
type Source struct {
	URL        string     `json:"url"`
	Type       SourceType `json:"source_type"`
	VendorHint string     `json:"vendor_hint,omitempty"`
}

// FingerprintStatus is the lifecycle state of a fingerprint record.
type FingerprintStatus string

const (
	FingerprintQueued    FingerprintStatus = "queued"
	FingerprintRunning   FingerprintStatus = "running"
	FingerprintCompleted FingerprintStatus = "completed"
	FingerprintFailed    FingerprintStatus = "failed"
)

// FingerprintRecord is the content-addressed dedup record for a URL.
// At most one record exists per URLHash.
type FingerprintRecord struct {
	URLHash      string            `json:"url_hash"`
	URL          string            `json:"url"`
	SourceType   SourceType        `json:"source_type"`
	Status       FingerprintStatus `json:"status"`
	DiscoveredAt time.Time         `json:"discovered_at"`
	QueuedAt     time.Time         `json:"queued_at"`
	StartedAt    *time.Time        `json:"ingestion_started_at,omitempty"`
	CompletedAt  *time.Time        `json:"ingestion_completed_at,omitempty"`
}

// TextBlock is one ordered unit of extracted text. Page is 1-based for
// paginated sources and 0 when the source has no page structure.
type TextBlock struct {
	Text     string
	Page     int
	Position int
}

// Chunk is a bounded, ordered slice of source text ready for atom
// generation. OrderIndex is dense and monotonic within a source.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	SourceURL  string `json:"source_url"`
	OrderIndex int    `json:"order_index"`
	Text       string `json:"text"`
	PageNumber int    `json:"page_number,omitempty"`
	ByteOffset int    `json:"byte_offset,omitempty"`
}

// AtomType classifies what kind of knowledge an atom carries.
type AtomType string

const (
	AtomConcept         AtomType = "concept"
	AtomProcedure       AtomType = "procedure"
	AtomSpecification   AtomType = "specification"
	AtomPattern         AtomType = "pattern"
	AtomTroubleshooting AtomType = "troubleshooting"
)

// ManualType is the quality classification of a whole source document.
type ManualType string

const (
	ManualComprehensive ManualType = "comprehensive_manual"
	ManualTechnicalDoc  ManualType = "technical_doc"
	ManualPartialDoc    ManualType = "partial_doc"
	ManualMarketing     ManualType = "marketing"
	ManualUnknown       ManualType = "unknown"
)

// Citation ties an atom back to where its content came from.
type Citation struct {
	ID         int    `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	AccessedAt string `json:"accessed_at"`
}

// Atom is the durable output unit of ingestion: one addressable piece of
// equipment knowledge with its embedding and quality metadata.
type Atom struct {
	AtomID   string   `json:"atom_id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Summary  string   `json:"summary,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	Type          AtomType `json:"type"`
	Vendor        string   `json:"vendor"`
	EquipmentType string   `json:"equipment_type,omitempty"`
	FaultCodes    []string `json:"fault_codes,omitempty"`

	Citations []Citation `json:"citations"`

	ManualQualityScore int        `json:"manual_quality_score"`
	PageCount          int        `json:"page_count,omitempty"`
	IsDirectPDF        bool       `json:"is_direct_pdf"`
	ManualType         ManualType `json:"manual_type"`

	Embedding []float32 `json:"embedding,omitempty"`

	SourceURL string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStatus is the terminal outcome of one ingestion attempt.
type SessionStatus string

const (
	StatusSuccess SessionStatus = "success"
	StatusPartial SessionStatus = "partial"
	StatusFailed  SessionStatus = "failed"
)

// StageCount is the fixed number of pipeline stages per session.
const StageCount = 7

// SessionMetric is the observability record emitted once per ingestion
// session. StageMS holds stage_1_ms through stage_7_ms in order; unreached
// stages stay zero. TotalDurationMS equals the sum of StageMS.
type SessionMetric struct {
	SourceURL       string            `json:"source_url"`
	SourceHash      string            `json:"source_hash"`
	SourceType      SourceType        `json:"source_type"`
	Status          SessionStatus     `json:"status"`
	AtomsCreated    int               `json:"atoms_created"`
	AtomsFailed     int               `json:"atoms_failed"`
	ChunksProcessed int               `json:"chunks_processed"`
	AvgQualityScore float64           `json:"avg_quality_score"`
	QualityPassRate float64           `json:"quality_pass_rate"`
	StageMS         [StageCount]int64 `json:"stage_ms"`
	TotalDurationMS int64             `json:"total_duration_ms"`
	ErrorStage      string            `json:"error_stage,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Vendor          string            `json:"vendor,omitempty"`
	EquipmentType   string            `json:"equipment_type,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
}

// StageNames are the canonical stage labels in execution order.
var StageNames = [StageCount]string{
	"FETCHING",
	"EXTRACTING",
	"CHUNKING",
	"GENERATING",
	"VALIDATING",
	"EMBEDDING",
	"STORING",
}
