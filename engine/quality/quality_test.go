package quality

import (
	"strings"
	"testing"

	"github.com/MachinaAI/machina-core/engine/domain"
)

func TestScoreEmptyFeatures(t *testing.T) {
	score, mtype := Score(Features{})
	if score != 0 {
		t.Fatalf("empty features score %d", score)
	}
	if mtype != domain.ManualMarketing {
		t.Fatalf("empty features type %s", mtype)
	}
}

func TestScorePageBands(t *testing.T) {
	cases := []struct {
		pages int
		want  int
	}{
		{0, 0}, {49, 0}, {50, 15}, {99, 15}, {100, 25}, {199, 25}, {200, 30}, {1000, 30},
	}
	for _, c := range cases {
		score, _ := Score(Features{PageCount: c.pages, IsDirectPDF: true})
		if score != c.want {
			t.Fatalf("pages %d: score %d want %d", c.pages, score, c.want)
		}
	}
}

func TestScoreFullHouse(t *testing.T) {
	text := "Table of Contents\n1. Parameters\n2. Fault codes\n3. Specifications\n4. Wiring diagram"
	score, mtype := Score(Features{PageCount: 250, Text: text, IsDirectPDF: true})
	if score != 100 {
		t.Fatalf("full house score %d", score)
	}
	if mtype != domain.ManualComprehensive {
		t.Fatalf("full house type %s", mtype)
	}
}

func TestScoreRedirectPenaltyExactlyThirty(t *testing.T) {
	text := "parameters fault code specifications wiring table of contents"
	direct, _ := Score(Features{PageCount: 250, Text: text, IsDirectPDF: true})
	redirected, _ := Score(Features{PageCount: 250, Text: text, IsDirectPDF: false})
	if direct-redirected != 30 {
		t.Fatalf("redirect penalty %d", direct-redirected)
	}
}

func TestScoreClampedAtZero(t *testing.T) {
	score, _ := Score(Features{IsDirectPDF: false})
	if score != 0 {
		t.Fatalf("clamp: %d", score)
	}
}

func TestScorePositiveSignalNeverDecreases(t *testing.T) {
	base := Features{PageCount: 120, Text: "specifications only", IsDirectPDF: true}
	before, _ := Score(base)
	enriched := base
	enriched.Text += " fault code F042 parameters wiring diagram"
	after, _ := Score(enriched)
	if after < before {
		t.Fatalf("adding positive signals decreased score: %d -> %d", before, after)
	}
}

func TestScoreTOCOnlyInWindow(t *testing.T) {
	padding := strings.Repeat("x", tocWindow)
	late, _ := Score(Features{Text: padding + " table of contents", IsDirectPDF: true})
	early, _ := Score(Features{Text: "table of contents " + padding, IsDirectPDF: true})
	if late != 0 {
		t.Fatalf("late TOC scored %d", late)
	}
	if early != 10 {
		t.Fatalf("early TOC scored %d", early)
	}
}

func TestClassifyBands(t *testing.T) {
	cases := []struct {
		score int
		want  domain.ManualType
	}{
		{100, domain.ManualComprehensive},
		{90, domain.ManualComprehensive},
		{89, domain.ManualTechnicalDoc},
		{70, domain.ManualTechnicalDoc},
		{69, domain.ManualPartialDoc},
		{50, domain.ManualPartialDoc},
		{49, domain.ManualMarketing},
		{0, domain.ManualMarketing},
	}
	for _, c := range cases {
		if got := Classify(c.score); got != c.want {
			t.Fatalf("score %d: got %s want %s", c.score, got, c.want)
		}
	}
}

func TestComprehensiveRequiresDirect(t *testing.T) {
	// The redirect penalty makes a comprehensive classification
	// unreachable for redirected sources.
	text := "table of contents parameters fault code specifications wiring"
	score, mtype := Score(Features{PageCount: 500, Text: text, IsDirectPDF: false})
	if score >= 90 || mtype == domain.ManualComprehensive {
		t.Fatalf("redirected source classified %s at %d", mtype, score)
	}
}
