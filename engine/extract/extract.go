// Package extract turns raw fetched bytes into an ordered sequence of text
// blocks, dispatching on source type and sniffed content type.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// Doc is the extractor output: ordered text blocks plus whole-document
// features the quality scorer consumes.
type Doc struct {
	Blocks    []domain.TextBlock
	PageCount int
}

// Extract dispatches on the declared source type, falling back to the
// sniffed content of the bytes when the two disagree. Forum pages extract
// the same way HTML does. At least one block is always emitted.
func Extract(body []byte, contentType string, srcType domain.SourceType) (Doc, error) {
	kind := sniff(body, contentType, srcType)

	var (
		doc Doc
		err error
	)
	switch kind {
	case domain.SourcePDF:
		doc, err = extractPDF(body)
	case domain.SourceHTML, domain.SourceForum:
		doc, err = extractHTML(body)
	default:
		doc, err = extractText(body)
	}
	if err != nil {
		return Doc{}, err
	}
	if len(doc.Blocks) == 0 {
		doc.Blocks = []domain.TextBlock{{Text: "", Page: 0, Position: 0}}
	}
	return doc, nil
}

// Text returns the whole-document text: blocks joined with single spaces,
// empty blocks skipped. This is the string the chunker round-trips against.
func (d Doc) Text() string {
	parts := make([]string, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// sniff decides the effective document kind. The body wins over the
// declared type: a .html URL serving %PDF bytes is a PDF.
func sniff(body []byte, contentType string, srcType domain.SourceType) domain.SourceType {
	ct := strings.ToLower(contentType)
	switch {
	case bytes.HasPrefix(body, []byte("%PDF")):
		return domain.SourcePDF
	case strings.Contains(ct, "pdf"):
		return domain.SourcePDF
	case strings.Contains(ct, "html"), looksLikeHTML(body):
		if srcType == domain.SourceForum {
			return domain.SourceForum
		}
		return domain.SourceHTML
	case strings.Contains(ct, "text/plain"):
		return domain.SourceText
	}
	return srcType
}

func looksLikeHTML(body []byte) bool {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	lower := bytes.ToLower(head)
	return bytes.Contains(lower, []byte("<html")) || bytes.Contains(lower, []byte("<!doctype html"))
}

func extractText(body []byte) (Doc, error) {
	if !isMostlyPrintable(body) {
		return Doc{}, fmt.Errorf("extract: %w", domain.ErrUnparseable)
	}
	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	var blocks []domain.TextBlock
	pos := 0
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		blocks = append(blocks, domain.TextBlock{Text: para, Position: pos})
		pos++
	}
	return Doc{Blocks: blocks}, nil
}

// isMostlyPrintable rejects binary garbage masquerading as text.
func isMostlyPrintable(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	sample := body
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	var bad int
	for _, b := range sample {
		if b == 0 || (b < 0x09 && b != 0) {
			bad++
		}
	}
	return bad*20 < len(sample)
}
