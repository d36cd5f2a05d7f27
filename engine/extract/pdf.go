package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// extractPDF pulls text page by page. Scanned or image-only pages yield an
// empty block but keep their slot so page numbering stays truthful.
func extractPDF(body []byte) (doc Doc, err error) {
	// The pdf package panics on some malformed files; fold that into the
	// unparseable error instead of killing the session goroutine.
	defer func() {
		if r := recover(); r != nil {
			doc = Doc{}
			err = fmt.Errorf("extract: pdf: %v: %w", r, domain.ErrUnparseable)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return Doc{}, fmt.Errorf("extract: pdf: %v: %w", err, domain.ErrUnparseable)
	}

	pages := reader.NumPage()
	blocks := make([]domain.TextBlock, 0, pages)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			blocks = append(blocks, domain.TextBlock{Text: "", Page: i, Position: i - 1})
			continue
		}
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			text = ""
		}
		blocks = append(blocks, domain.TextBlock{
			Text:     normalizeSpace(text),
			Page:     i,
			Position: i - 1,
		})
	}
	return Doc{Blocks: blocks, PageCount: pages}, nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
