// Package quality scores a whole source document on how useful it is as
// equipment documentation. Pure functions only.
package quality

import (
	"strings"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// Features are the observable document signals the scorer consumes.
// Anything the caller could not compute is left zero and scores zero.
type Features struct {
	PageCount   int
	Text        string
	IsDirectPDF bool
}

// tocWindow is how far into the document a table of contents may appear.
const tocWindow = 5000

// Keyword groups. Matching is case-insensitive substring over the whole
// text; any hit in a group claims the group's points once.
var (
	parameterKeywords = []string{"parameter", "param no", "setting value"}
	faultKeywords     = []string{"fault code", "error code", "alarm code", "trouble code"}
	specKeywords      = []string{"specification", "technical data", "rated ", "ratings"}
	diagramKeywords   = []string{"diagram", "wiring", "schematic"}
	tocKeywords       = []string{"table of contents", "contents\n", "contents "}
)

// Score rates a document 0-100 and classifies it. Never panics; missing
// features simply contribute nothing.
func Score(f Features) (int, domain.ManualType) {
	score := 0

	switch {
	case f.PageCount >= 200:
		score += 30
	case f.PageCount >= 100:
		score += 25
	case f.PageCount >= 50:
		score += 15
	}

	lower := strings.ToLower(f.Text)
	if containsAny(lower, parameterKeywords) {
		score += 20
	}
	if containsAny(lower, faultKeywords) {
		score += 15
	}
	if containsAny(lower, specKeywords) {
		score += 15
	}
	if containsAny(lower, diagramKeywords) {
		score += 10
	}

	head := lower
	if len(head) > tocWindow {
		head = head[:tocWindow]
	}
	if containsAny(head, tocKeywords) {
		score += 10
	}

	if !f.IsDirectPDF {
		score -= 30
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, Classify(score)
}

// Classify maps a score to its manual-type band.
func Classify(score int) domain.ManualType {
	switch {
	case score >= 90:
		return domain.ManualComprehensive
	case score >= 70:
		return domain.ManualTechnicalDoc
	case score >= 50:
		return domain.ManualPartialDoc
	default:
		return domain.ManualMarketing
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
