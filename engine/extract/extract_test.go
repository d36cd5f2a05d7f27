package extract

import (
	"strings"
	"testing"

	"github.com/MachinaAI/machina-core/engine/domain"
)

const samplePage = `<!DOCTYPE html>
<html><head><title>VFD Setup Guide</title>
<script>tracker()</script>
<style>.x{color:red}</style>
</head><body>
<nav>Home | Docs</nav>
<h1>Drive Setup</h1>
<p>Set parameter P100 before first start.</p>
<h2>Fault Codes</h2>
<p>F042 means overcurrent on the output stage.</p>
<ul><li>Check the motor leads.</li><li>Reduce the ramp.</li></ul>
<footer>© Vendor</footer>
</body></html>`

func TestExtractHTMLStripsBoilerplate(t *testing.T) {
	doc, err := Extract([]byte(samplePage), "text/html", domain.SourceHTML)
	if err != nil {
		t.Fatal(err)
	}
	text := doc.Text()
	if strings.Contains(text, "tracker") || strings.Contains(text, "color:red") {
		t.Fatal("script/style content leaked")
	}
	if strings.Contains(text, "Home | Docs") || strings.Contains(text, "© Vendor") {
		t.Fatal("nav/footer content leaked")
	}
	if !strings.Contains(text, "Set parameter P100") {
		t.Fatal("paragraph text missing")
	}
}

func TestExtractHTMLPreservesHeadingOrder(t *testing.T) {
	doc, err := Extract([]byte(samplePage), "text/html", domain.SourceHTML)
	if err != nil {
		t.Fatal(err)
	}
	var texts []string
	for _, b := range doc.Blocks {
		texts = append(texts, b.Text)
	}
	joined := strings.Join(texts, "|")
	h1 := strings.Index(joined, "Drive Setup")
	p1 := strings.Index(joined, "Set parameter")
	h2 := strings.Index(joined, "Fault Codes")
	p2 := strings.Index(joined, "F042")
	if !(h1 < p1 && p1 < h2 && h2 < p2) {
		t.Fatalf("block order wrong: %s", joined)
	}
	for i, b := range doc.Blocks {
		if b.Position != i {
			t.Fatal("positions should be dense")
		}
	}
}

func TestExtractForumUsesHTMLPath(t *testing.T) {
	doc, err := Extract([]byte(samplePage), "text/html", domain.SourceForum)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc.Text(), "F042") {
		t.Fatal("forum extraction should parse as html")
	}
}

func TestExtractPlainText(t *testing.T) {
	body := "First paragraph of the note.\n\nSecond paragraph with details.\n\n"
	doc, err := Extract([]byte(body), "text/plain", domain.SourceText)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Blocks) != 2 {
		t.Fatalf("blocks: %d", len(doc.Blocks))
	}
	if doc.Blocks[1].Text != "Second paragraph with details." {
		t.Fatalf("second block: %q", doc.Blocks[1].Text)
	}
}

func TestExtractEmptyBodyEmitsOneBlock(t *testing.T) {
	doc, err := Extract(nil, "text/plain", domain.SourceText)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Blocks) != 1 || doc.Blocks[0].Text != "" {
		t.Fatalf("empty doc should emit one empty block, got %d", len(doc.Blocks))
	}
}

func TestExtractBinaryGarbageFails(t *testing.T) {
	garbage := make([]byte, 512)
	if _, err := Extract(garbage, "text/plain", domain.SourceText); err == nil {
		t.Fatal("binary body should be unparseable")
	}
}

func TestExtractMalformedPDFFails(t *testing.T) {
	if _, err := Extract([]byte("%PDF-1.4 truncated"), "application/pdf", domain.SourcePDF); err == nil {
		t.Fatal("truncated pdf should be unparseable")
	}
}

func TestSniffBodyBeatsDeclaredType(t *testing.T) {
	if got := sniff([]byte("%PDF-1.7 ..."), "text/html", domain.SourceHTML); got != domain.SourcePDF {
		t.Fatalf("pdf magic should win: %s", got)
	}
	if got := sniff([]byte("<html><body>x</body></html>"), "", domain.SourceText); got != domain.SourceHTML {
		t.Fatalf("html sniff: %s", got)
	}
}

func TestDocTextSkipsEmptyBlocks(t *testing.T) {
	doc := Doc{Blocks: []domain.TextBlock{
		{Text: "page one", Page: 1},
		{Text: "", Page: 2},
		{Text: "page three", Page: 3},
	}}
	if doc.Text() != "page one page three" {
		t.Fatalf("text: %q", doc.Text())
	}
}

func TestHTMLTitle(t *testing.T) {
	if got := Title([]byte(samplePage)); got != "VFD Setup Guide" {
		t.Fatalf("title: %q", got)
	}
}
