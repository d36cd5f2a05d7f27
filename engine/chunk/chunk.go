// Package chunk splits extracted text blocks into bounded, ordered chunks.
// Split preference is paragraph (block boundary), then sentence, then
// whitespace. Concatenating the chunks with single spaces reproduces the
// extractor text up to whitespace collapsing.
package chunk

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/MachinaAI/machina-core/engine/domain"
)

const (
	// TargetSize is the preferred upper chunk size in characters.
	TargetSize = 1500
	// HardMax is never exceeded.
	HardMax = 2000
	// MinTotal is the minimum total source text; below it the source is
	// too small to chunk and zero chunks are emitted.
	MinTotal = 200
)

// piece is a splittable unit carrying the page of the block it came from.
type piece struct {
	text string
	page int
}

// Split chunks the extracted blocks for one source. Returns nil when the
// total text is shorter than MinTotal.
func Split(sourceURL string, blocks []domain.TextBlock) []domain.Chunk {
	pieces := make([]piece, 0, len(blocks))
	total := 0
	for _, b := range blocks {
		text := strings.Join(strings.Fields(b.Text), " ")
		if text == "" {
			continue
		}
		if total > 0 {
			total++ // joining space
		}
		total += len(text)
		for _, part := range splitOversized(text, HardMax) {
			pieces = append(pieces, piece{text: part, page: b.Page})
		}
	}
	if total < MinTotal {
		return nil
	}

	var (
		chunks []domain.Chunk
		cur    strings.Builder
		page   int
		offset int
	)
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ChunkID:    chunkID(sourceURL, idx),
			SourceURL:  sourceURL,
			OrderIndex: idx,
			Text:       cur.String(),
			PageNumber: page,
			ByteOffset: offset,
		})
		offset += cur.Len() + 1
		cur.Reset()
	}

	for _, p := range pieces {
		if cur.Len() > 0 && cur.Len()+1+len(p.text) > TargetSize {
			flush()
		}
		if cur.Len() == 0 {
			page = p.page
		} else {
			cur.WriteByte(' ')
		}
		cur.WriteString(p.text)
	}
	flush()
	return chunks
}

// splitOversized breaks text that cannot fit one chunk, first at sentence
// boundaries, then at whitespace for pathological run-on sentences.
func splitOversized(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}

	var parts []string
	var cur strings.Builder
	for _, sentence := range splitSentences(text) {
		if len(sentence) > max {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			parts = append(parts, splitWhitespace(sentence, max)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(sentence) > max {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// splitSentences splits text at sentence-ending punctuation followed by a
// space, or at newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if r == '\n' || i == len(text)-1 || (i+1 < len(text) && unicode.IsSpace(rune(text[i+1]))) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// splitWhitespace hard-wraps a single overlong token run at word
// boundaries, and mid-word only when a single word exceeds max.
func splitWhitespace(s string, max int) []string {
	var parts []string
	var cur strings.Builder
	for _, word := range strings.Fields(s) {
		for len(word) > max {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			parts = append(parts, word[:max])
			word = word[max:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(word) > max {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// chunkID derives a stable UUID from the source URL and chunk index.
func chunkID(sourceURL string, idx int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", sourceURL, idx))).String()
}
