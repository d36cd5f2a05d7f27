package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// boilerplateSelector matches elements stripped before text extraction.
const boilerplateSelector = "script, style, noscript, nav, header, footer, aside, form, iframe"

// blockSelector matches the elements that become text blocks. Headings are
// kept as their own blocks so downstream chunking can split at them.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote"

// extractHTML strips boilerplate and walks the content elements in
// document order. Heading structure survives as block boundaries.
func extractHTML(body []byte) (Doc, error) {
	root, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Doc{}, fmt.Errorf("extract: html: %v: %w", err, domain.ErrUnparseable)
	}

	root.Find(boilerplateSelector).Remove()

	var blocks []domain.TextBlock
	pos := 0
	root.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		// Skip containers whose text is fully covered by a nested
		// block element, so nothing is emitted twice.
		if sel.Find(blockSelector).Length() > 0 {
			return
		}
		text := normalizeSpace(sel.Text())
		if text == "" {
			return
		}
		blocks = append(blocks, domain.TextBlock{Text: text, Position: pos})
		pos++
	})

	// Pages with no block markup at all still have body text.
	if len(blocks) == 0 {
		if text := normalizeSpace(root.Find("body").Text()); text != "" {
			blocks = append(blocks, domain.TextBlock{Text: text})
		}
	}
	return Doc{Blocks: blocks}, nil
}

// Title returns the page title of an HTML document, or "".
func Title(body []byte) string {
	root, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(root.Find("title").First().Text())
}
