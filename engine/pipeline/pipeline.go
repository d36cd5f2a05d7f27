// Package pipeline drives one source URL through the seven ingestion
// stages as a state machine, emitting stage telemetry and exactly one
// session metric per attempt.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/MachinaAI/machina-core/engine/atomgen"
	"github.com/MachinaAI/machina-core/engine/chunk"
	"github.com/MachinaAI/machina-core/engine/domain"
	"github.com/MachinaAI/machina-core/engine/extract"
	"github.com/MachinaAI/machina-core/engine/fetch"
	"github.com/MachinaAI/machina-core/engine/monitor"
	"github.com/MachinaAI/machina-core/engine/quality"
	"github.com/MachinaAI/machina-core/pkg/metrics"
)

// Stage indices into SessionMetric.StageMS.
const (
	stageFetch = iota
	stageExtract
	stageChunk
	stageGenerate
	stageValidate
	stageEmbed
	stageStore
)

// Reasons recorded on partial sessions.
const (
	reasonTooSmall     = "source_too_small"
	reasonNoAtoms      = "no_atoms_generated"
	reasonNoneValid    = "no_valid_atoms"
	reasonNoneEmbedded = "no_atoms_embedded"
)

// Fetcher retrieves raw source bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Result, error)
}

// Generator turns chunks into candidate atoms.
type Generator interface {
	Generate(ctx context.Context, sourceURL string, chunks []domain.Chunk, meta atomgen.DocMeta) ([]domain.Atom, atomgen.Stats, error)
}

// Embedder produces the fixed-dimension vector for atom text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AtomStore persists atoms.
type AtomStore interface {
	Upsert(ctx context.Context, a domain.Atom) error
	Lookup(ctx context.Context, atomID string) (contentHash, sourceURL string, err error)
}

// Mirror is the optional ANN index; nil disables mirroring.
type Mirror interface {
	UpsertAtoms(ctx context.Context, atoms []domain.Atom) error
}

// Fingerprints is the dedup index surface the coordinator touches.
type Fingerprints interface {
	MarkRunning(ctx context.Context, urlHash string) error
	MarkCompleted(ctx context.Context, urlHash string, status domain.SessionStatus) error
}

// Deps wires the coordinator to its collaborators.
type Deps struct {
	Fetcher      Fetcher
	Generator    Generator
	Embedder     Embedder
	Store        AtomStore
	Mirror       Mirror
	Fingerprints Fingerprints
	Monitor      *monitor.Monitor
	Logger       *slog.Logger
}

// Coordinator owns one session at a time for the duration of ingestion.
type Coordinator struct {
	deps Deps
	log  *slog.Logger
}

// New creates a Coordinator.
func New(deps Deps) *Coordinator {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{deps: deps, log: log}
}

// Run ingests one source to a terminal state and returns the emitted
// metric. It never returns an error: every outcome, including stage
// failure, is a finished session with a metric.
func (c *Coordinator) Run(ctx context.Context, src domain.Source) domain.SessionMetric {
	if src.Type == "" {
		src.Type = domain.DetectSourceType(src.URL)
	}
	hash := domain.URLHash(src.URL)
	sess := c.deps.Monitor.OpenSession(src.URL, src.Type)

	if err := c.deps.Fingerprints.MarkRunning(ctx, hash); err != nil {
		c.log.Warn("pipeline: mark running failed", "url", src.URL, "error", err)
	}

	s := &session{c: c, ctx: ctx, src: src, hash: hash, sess: sess}
	metric := s.run()
	c.log.Info("pipeline: session finished",
		"url", src.URL,
		"status", metric.Status,
		"atoms_created", metric.AtomsCreated,
		"atoms_failed", metric.AtomsFailed,
		"duration_ms", metric.TotalDurationMS,
	)
	return metric
}

// session carries the mutable state of one ingestion attempt.
type session struct {
	c    *Coordinator
	ctx  context.Context
	src  domain.Source
	hash string
	sess *monitor.Session

	chunks      []domain.Chunk
	genStats    atomgen.Stats
	validFailed int
	atomsFailed int
	avgQuality  float64
	passRate    float64
	vendor      string
	equipment   string
}

// timed runs one stage body and records its duration, including on
// failure.
func (s *session) timed(idx int, f func() error) error {
	start := time.Now()
	err := f()
	d := time.Since(start)
	s.sess.RecordStage(idx, d, err == nil)
	s.c.log.Debug("stage.exit", "stage", domain.StageNames[idx], "duration", d, "ok", err == nil)
	return err
}

func (s *session) run() domain.SessionMetric {
	// Stage 1: FETCHING.
	var fetched fetch.Result
	if err := s.timed(stageFetch, func() error {
		var err error
		fetched, err = s.c.deps.Fetcher.Fetch(s.ctx, s.src.URL)
		return err
	}); err != nil {
		return s.fail(stageFetch, err)
	}

	// Stage 2: EXTRACTING.
	var doc extract.Doc
	if err := s.timed(stageExtract, func() error {
		var err error
		doc, err = extract.Extract(fetched.Body, fetched.ContentType, s.src.Type)
		return err
	}); err != nil {
		return s.fail(stageExtract, err)
	}

	// Stage 3: CHUNKING. The whole-document quality score is computed
	// here too; it feeds every atom of the session.
	isDirectPDF := doc.PageCount > 0 && !fetched.Redirected
	var score int
	var manualType domain.ManualType
	_ = s.timed(stageChunk, func() error {
		score, manualType = quality.Score(quality.Features{
			PageCount:   doc.PageCount,
			Text:        doc.Text(),
			IsDirectPDF: isDirectPDF,
		})
		s.chunks = chunk.Split(s.src.URL, doc.Blocks)
		return nil
	})
	if len(s.chunks) == 0 {
		return s.partial(stageChunk, reasonTooSmall)
	}

	// Stage 4: GENERATING.
	meta := atomgen.DocMeta{
		QualityScore: score,
		ManualType:   manualType,
		PageCount:    doc.PageCount,
		IsDirectPDF:  isDirectPDF,
		VendorHint:   s.src.VendorHint,
	}
	var atoms []domain.Atom
	if err := s.timed(stageGenerate, func() error {
		var err error
		atoms, s.genStats, err = s.c.deps.Generator.Generate(s.ctx, s.src.URL, s.chunks, meta)
		return err
	}); err != nil {
		return s.fail(stageGenerate, err)
	}
	if len(atoms) == 0 {
		return s.partial(stageGenerate, reasonNoAtoms)
	}

	// Stage 5: VALIDATING. Per-atom failures never fail the session.
	var valid []domain.Atom
	_ = s.timed(stageValidate, func() error {
		for _, a := range atoms {
			res := domain.ValidateAtom(a, s.src.URL)
			if !res.Passed {
				s.c.log.Warn("pipeline: atom rejected", "atom_id", a.AtomID, "reason", res.Reason)
				s.validFailed++
				continue
			}
			valid = append(valid, a)
		}
		return nil
	})
	s.passRate = float64(len(valid)) / float64(len(atoms))
	if len(valid) == 0 {
		return s.partial(stageValidate, reasonNoneValid)
	}

	// Stage 6: EMBEDDING. Individual failures drop the atom and demote
	// the session; they never fail it.
	var embedded []domain.Atom
	_ = s.timed(stageEmbed, func() error {
		for _, a := range valid {
			vec, err := s.c.deps.Embedder.Embed(s.ctx, a.Content)
			if err != nil {
				s.c.log.Warn("pipeline: embed failed, dropping atom", "atom_id", a.AtomID, "error", err)
				s.atomsFailed++
				continue
			}
			a.Embedding = vec
			embedded = append(embedded, a)
		}
		return nil
	})
	if len(embedded) == 0 {
		return s.partial(stageEmbed, reasonNoneEmbedded)
	}

	// Stage 7: STORING. Atomic per row; the session fails only when
	// every atom fails to store.
	var stored []domain.Atom
	var lastStoreErr error
	_ = s.timed(stageStore, func() error {
		for _, a := range embedded {
			if s.collides(a) {
				s.atomsFailed++
				continue
			}
			if err := s.c.deps.Store.Upsert(s.ctx, a); err != nil {
				s.c.log.Error("pipeline: atom store failed", "atom_id", a.AtomID, "error", err)
				s.atomsFailed++
				lastStoreErr = err
				continue
			}
			stored = append(stored, a)
		}
		return nil
	})
	if len(stored) == 0 && lastStoreErr != nil {
		return s.fail(stageStore, lastStoreErr)
	}

	s.mirror(stored)
	s.tally(stored)

	status := domain.StatusSuccess
	if s.genStats.ChunksFailed > 0 || s.validFailed > 0 || s.atomsFailed > 0 {
		status = domain.StatusPartial
	}
	return s.finish(status, len(stored), "", "")
}

// collides reports a cross-source atom_id collision: an existing atom
// with the same id, different content, from a different source URL. Such
// an atom is logged and dropped. Same-source conflicts are re-ingestion
// and upsert in place.
func (s *session) collides(a domain.Atom) bool {
	existingHash, existingSource, err := s.c.deps.Store.Lookup(s.ctx, a.AtomID)
	if err != nil || existingHash == "" {
		return false
	}
	if existingHash == domain.ContentHash(a.Content) {
		return false
	}
	if domain.CanonicalURL(existingSource) == domain.CanonicalURL(s.src.URL) {
		return false
	}
	s.c.log.Warn("pipeline: atom_id collision with different content, dropping",
		"atom_id", a.AtomID, "source", a.SourceURL, "existing_source", existingSource)
	return true
}

// mirror pushes stored atoms to the ANN index. Best-effort.
func (s *session) mirror(stored []domain.Atom) {
	if s.c.deps.Mirror == nil || len(stored) == 0 {
		return
	}
	if err := s.c.deps.Mirror.UpsertAtoms(s.ctx, stored); err != nil {
		metrics.MirrorFailures.Inc()
		s.c.log.Warn("pipeline: ann mirror upsert failed", "error", err)
	}
}

// tally derives the per-session aggregates from the stored atoms.
func (s *session) tally(stored []domain.Atom) {
	if len(stored) == 0 {
		return
	}
	var sum int
	vendors := map[string]int{}
	equipment := map[string]int{}
	for _, a := range stored {
		sum += a.ManualQualityScore
		vendors[a.Vendor]++
		if a.EquipmentType != "" {
			equipment[a.EquipmentType]++
		}
	}
	s.avgQuality = float64(sum) / float64(len(stored))
	s.vendor = mode(vendors)
	s.equipment = mode(equipment)
	if s.vendor == "" {
		s.vendor = s.src.VendorHint
	}
}

func mode(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

// fail finishes the session as failed at the given stage.
func (s *session) fail(idx int, err error) domain.SessionMetric {
	s.c.log.Error("pipeline: stage failed",
		"stage", domain.StageNames[idx], "url", s.src.URL, "error", err)
	return s.finish(domain.StatusFailed, 0, domain.StageNames[idx], err.Error())
}

// partial finishes the session as partial with a reason, skipping any
// remaining stages.
func (s *session) partial(idx int, reason string) domain.SessionMetric {
	return s.finish(domain.StatusPartial, 0, domain.StageNames[idx], reason)
}

func (s *session) finish(status domain.SessionStatus, created int, errStage, errMsg string) domain.SessionMetric {
	if s.vendor == "" {
		s.vendor = s.src.VendorHint
	}
	metric := s.sess.Finish(monitor.FinishArgs{
		Status:          status,
		AtomsCreated:    created,
		AtomsFailed:     s.atomsFailed + s.validFailed,
		ChunksProcessed: len(s.chunks),
		AvgQualityScore: s.avgQuality,
		QualityPassRate: s.passRate,
		ErrorStage:      errStage,
		ErrorMessage:    errMsg,
		Vendor:          s.vendor,
		EquipmentType:   s.equipment,
	})
	if err := s.c.deps.Fingerprints.MarkCompleted(s.ctx, s.hash, status); err != nil {
		s.c.log.Warn("pipeline: mark completed failed", "url", s.src.URL, "error", err)
	}
	return metric
}
