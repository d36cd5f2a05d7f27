package atomgen

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// rawAtom is the open-shape JSON the model returns. Only the fields the
// schema names are read; everything else is dropped.
type rawAtom struct {
	AtomID        string            `json:"atom_id"`
	Title         string            `json:"title"`
	Content       string            `json:"content"`
	Summary       string            `json:"summary"`
	Keywords      []string          `json:"keywords"`
	Type          string            `json:"type"`
	Vendor        string            `json:"vendor"`
	EquipmentType string            `json:"equipment_type"`
	Topic         string            `json:"topic"`
	FaultCodes    []string          `json:"fault_codes"`
	Citations     []domain.Citation `json:"citations"`
}

// topic picks the slug topic component: explicit topic, else the last
// segment of a model-provided atom_id, else the title.
func (r rawAtom) topic() string {
	if r.Topic != "" {
		return r.Topic
	}
	if r.AtomID != "" {
		parts := strings.Split(r.AtomID, ":")
		return parts[len(parts)-1]
	}
	return r.Title
}

var fenceRegex = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```\\s*$")

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRegex.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// parseReply accepts either a single JSON object or a JSON array of
// objects, with or without markdown fences.
func parseReply(reply string) ([]rawAtom, error) {
	body := stripFences(reply)
	if body == "" {
		return nil, fmt.Errorf("empty reply")
	}

	switch body[0] {
	case '[':
		var raws []rawAtom
		if err := json.Unmarshal([]byte(body), &raws); err != nil {
			return nil, fmt.Errorf("parse atom array: %w", err)
		}
		return raws, nil
	case '{':
		var raw rawAtom
		if err := json.Unmarshal([]byte(body), &raw); err != nil {
			return nil, fmt.Errorf("parse atom object: %w", err)
		}
		return []rawAtom{raw}, nil
	default:
		return nil, fmt.Errorf("reply is not JSON")
	}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)

// SlugID derives the deterministic atom id from the vendor, equipment,
// topic triple. Each component is slugged independently; empty components
// become "unknown" so the id always has three segments.
func SlugID(vendor, equipment, topic string) string {
	return slugify(vendor) + ":" + slugify(equipment) + ":" + slugify(topic)
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "unknown"
	}
	return s
}
