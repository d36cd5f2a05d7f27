package atomgen

import (
	"fmt"
	"strings"

	"github.com/MachinaAI/machina-core/engine/domain"
)

const systemPrompt = `You extract structured knowledge atoms from industrial equipment documentation.

Reply with a JSON array of atom objects (or [] when the text has nothing worth keeping). Each atom:
{
  "title": "short descriptive title",
  "content": "self-contained explanation, at least 50 characters",
  "summary": "one sentence",
  "keywords": ["..."],
  "type": "concept|procedure|specification|pattern|troubleshooting",
  "vendor": "equipment vendor, lowercase",
  "equipment_type": "device family, lowercase",
  "topic": "short slug for this atom",
  "fault_codes": ["..."],
  "citations": [{"id": 1, "url": "<source url>", "title": "...", "accessed_at": "<iso date>"}]
}

Every atom must cite the source url. Reply with JSON only, no prose.`

// userPrompt renders the per-chunk prompt.
func userPrompt(sourceURL string, c domain.Chunk, meta DocMeta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source URL: %s\n", sourceURL)
	if meta.VendorHint != "" {
		fmt.Fprintf(&b, "Vendor hint: %s\n", meta.VendorHint)
	}
	if c.PageNumber > 0 {
		fmt.Fprintf(&b, "Page: %d\n", c.PageNumber)
	}
	fmt.Fprintf(&b, "Chunk %d:\n\n%s\n", c.OrderIndex, c.Text)
	return b.String()
}
