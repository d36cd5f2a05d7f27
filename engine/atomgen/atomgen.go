// Package atomgen turns chunks into knowledge atoms by prompting an
// external reasoning model and defensively parsing what comes back.
package atomgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MachinaAI/machina-core/engine/domain"
	"github.com/MachinaAI/machina-core/pkg/fn"
)

// ModelClient is the reasoning model contract. Complete returns the raw
// model text for one prompt.
type ModelClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// DocMeta is the per-source quality metadata stamped onto every atom.
type DocMeta struct {
	QualityScore int
	ManualType   domain.ManualType
	PageCount    int
	IsDirectPDF  bool
	VendorHint   string
}

// Generator drives atom generation for one session at a time.
type Generator struct {
	model ModelClient
	width int
	log   *slog.Logger
	now   func() time.Time
}

// New creates a Generator. Width bounds how many chunks are in flight at
// once; it defaults to sequential, the cost-safe setting.
func New(model ModelClient, width int, log *slog.Logger) *Generator {
	if width <= 0 {
		width = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Generator{model: model, width: width, log: log, now: time.Now}
}

// Stats reports what happened across a session's chunks.
type Stats struct {
	// ChunksFailed counts chunks whose model reply could not be used
	// (call error or unparseable JSON). Those chunks yield zero atoms
	// and demote the session to partial, but are never fatal.
	ChunksFailed int
	// Collapsed counts in-session duplicate atoms that were dropped.
	Collapsed int
}

// Generate runs every chunk through the model. Malformed model output for
// a chunk yields zero atoms for that chunk, never an error; only context
// cancellation aborts. Atom ids are deterministic slugs, suffixed with the
// chunk order on collision, and atoms whose id and content hash both
// repeat within the session are collapsed.
func (g *Generator) Generate(ctx context.Context, sourceURL string, chunks []domain.Chunk, meta DocMeta) ([]domain.Atom, Stats, error) {
	type chunkAtoms struct {
		order int
		atoms []domain.Atom
		ok    bool
	}

	results := fn.ParMapResult(chunks, g.width, func(c domain.Chunk) fn.Result[chunkAtoms] {
		if ctx.Err() != nil {
			return fn.Err[chunkAtoms](ctx.Err())
		}
		atoms, ok := g.generateChunk(ctx, sourceURL, c, meta)
		return fn.Ok(chunkAtoms{order: c.OrderIndex, atoms: atoms, ok: ok})
	})

	var stats Stats
	seenID := make(map[string]int)    // atom_id -> count of uses
	seenHash := make(map[string]bool) // atom_id+content hash
	var out []domain.Atom
	for _, r := range results {
		ca, err := r.Unwrap()
		if err != nil {
			return nil, stats, err
		}
		if !ca.ok {
			stats.ChunksFailed++
		}
		for _, a := range ca.atoms {
			key := a.AtomID + ":" + domain.ContentHash(a.Content)
			if seenHash[key] {
				g.log.Debug("atomgen: collapsed duplicate atom", "atom_id", a.AtomID)
				stats.Collapsed++
				continue
			}
			if n := seenID[a.AtomID]; n > 0 {
				a.AtomID = fmt.Sprintf("%s-%d", a.AtomID, ca.order)
				key = a.AtomID + ":" + domain.ContentHash(a.Content)
				if seenHash[key] {
					stats.Collapsed++
					continue
				}
			}
			seenID[a.AtomID]++
			seenHash[key] = true
			out = append(out, a)
		}
	}
	return out, stats, nil
}

// generateChunk prompts the model for one chunk and parses the reply.
// ok is false when the reply was unusable.
func (g *Generator) generateChunk(ctx context.Context, sourceURL string, c domain.Chunk, meta DocMeta) ([]domain.Atom, bool) {
	reply, err := g.model.Complete(ctx, systemPrompt, userPrompt(sourceURL, c, meta))
	if err != nil {
		g.log.Warn("atomgen: model call failed", "chunk", c.OrderIndex, "error", err)
		return nil, false
	}

	raws, err := parseReply(reply)
	if err != nil {
		g.log.Warn("atomgen: unparseable model reply",
			"chunk", c.OrderIndex, "error", err, "head", head(reply, 200))
		return nil, false
	}

	atoms := make([]domain.Atom, 0, len(raws))
	for _, raw := range raws {
		atoms = append(atoms, g.toAtom(raw, sourceURL, meta))
	}
	return atoms, true
}

// toAtom maps an open-shape model atom onto the domain type, deriving the
// deterministic slug id.
func (g *Generator) toAtom(raw rawAtom, sourceURL string, meta DocMeta) domain.Atom {
	vendor := raw.Vendor
	if vendor == "" {
		vendor = meta.VendorHint
	}
	return domain.Atom{
		AtomID:             SlugID(vendor, raw.EquipmentType, raw.topic()),
		Title:              strings.TrimSpace(raw.Title),
		Content:            strings.TrimSpace(raw.Content),
		Summary:            strings.TrimSpace(raw.Summary),
		Keywords:           dedupeStrings(raw.Keywords),
		Type:               atomType(raw.Type),
		Vendor:             vendor,
		EquipmentType:      raw.EquipmentType,
		FaultCodes:         dedupeStrings(raw.FaultCodes),
		Citations:          raw.Citations,
		ManualQualityScore: meta.QualityScore,
		PageCount:          meta.PageCount,
		IsDirectPDF:        meta.IsDirectPDF,
		ManualType:         meta.ManualType,
		SourceURL:          sourceURL,
		CreatedAt:          g.now().UTC(),
	}
}

func atomType(s string) domain.AtomType {
	switch domain.AtomType(strings.ToLower(strings.TrimSpace(s))) {
	case domain.AtomConcept, domain.AtomProcedure, domain.AtomSpecification,
		domain.AtomPattern, domain.AtomTroubleshooting:
		return domain.AtomType(strings.ToLower(strings.TrimSpace(s)))
	default:
		return domain.AtomConcept
	}
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
