package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// topVendorCount bounds the vendor list in a summary.
const topVendorCount = 3

// summaryStats aggregates one batch window.
type summaryStats struct {
	sources  int
	success  int
	partial  int
	failed   int
	atomsOK  int
	atomsBad int
	totalMS  int64
	quality  float64
	vendors  map[string]int
	overflow int
	degraded bool
}

func newSummaryStats() *summaryStats {
	return &summaryStats{vendors: make(map[string]int)}
}

func (s *summaryStats) add(m domain.SessionMetric) {
	s.sources++
	switch m.Status {
	case domain.StatusSuccess:
		s.success++
	case domain.StatusPartial:
		s.partial++
	case domain.StatusFailed:
		s.failed++
	}
	s.atomsOK += m.AtomsCreated
	s.atomsBad += m.AtomsFailed
	s.totalMS += m.TotalDurationMS
	s.quality += m.AvgQualityScore
	if m.Vendor != "" {
		s.vendors[m.Vendor]++
	}
}

// formatSummary renders the BATCH summary message. Plain text only, stable
// field order.
func formatSummary(s *summaryStats) string {
	pct := func(n int) int {
		if s.sources == 0 {
			return 0
		}
		return int(float64(n)/float64(s.sources)*100 + 0.5)
	}
	avgMS := int64(0)
	avgQ := 0
	if s.sources > 0 {
		avgMS = s.totalMS / int64(s.sources)
		avgQ = int(s.quality/float64(s.sources) + 0.5)
	}

	var b strings.Builder
	b.WriteString("[STATS] KB Ingestion Summary (Last 5 min)\n\n")
	fmt.Fprintf(&b, "Sources: %d processed\n", s.sources)
	fmt.Fprintf(&b, "[OK] Success: %d (%d%%)\n", s.success, pct(s.success))
	fmt.Fprintf(&b, "[WARN] Partial: %d (%d%%)\n", s.partial, pct(s.partial))
	fmt.Fprintf(&b, "[FAIL] Failed: %d (%d%%)\n\n", s.failed, pct(s.failed))
	fmt.Fprintf(&b, "Atoms: %d created, %d failed\n", s.atomsOK, s.atomsBad)
	fmt.Fprintf(&b, "Avg Duration: %d ms\n", avgMS)
	fmt.Fprintf(&b, "Avg Quality: %d%%\n", avgQ)
	b.WriteString("\nTop Vendors:\n")
	for _, v := range topVendors(s.vendors, topVendorCount) {
		fmt.Fprintf(&b, "  - %s (%d sources)\n", v.name, v.count)
	}
	if s.overflow > 0 {
		fmt.Fprintf(&b, "\n[WARN] Buffer overflow: %d sessions dropped from this summary\n", s.overflow)
	}
	if s.degraded {
		b.WriteString("\n[WARN] Metric store degraded: rows diverting to failover log\n")
	}
	return b.String()
}

// formatSession renders the per-session VERBOSE message.
func formatSession(m domain.SessionMetric, degraded bool) string {
	tag := "[OK]"
	switch m.Status {
	case domain.StatusPartial:
		tag = "[WARN]"
	case domain.StatusFailed:
		tag = "[FAIL]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s KB Ingestion: %s\n", tag, m.SourceURL)
	fmt.Fprintf(&b, "Status: %s\n", m.Status)
	fmt.Fprintf(&b, "Atoms: %d created, %d failed\n", m.AtomsCreated, m.AtomsFailed)
	fmt.Fprintf(&b, "Chunks: %d\n", m.ChunksProcessed)
	fmt.Fprintf(&b, "Avg Quality: %d%%\n", int(m.AvgQualityScore+0.5))
	fmt.Fprintf(&b, "Duration: %d ms\n", m.TotalDurationMS)
	if m.ErrorStage != "" {
		fmt.Fprintf(&b, "Error: %s: %s\n", m.ErrorStage, m.ErrorMessage)
	}
	if degraded {
		b.WriteString("[WARN] Metric store degraded: rows diverting to failover log\n")
	}
	return b.String()
}

type vendorCount struct {
	name  string
	count int
}

func topVendors(counts map[string]int, n int) []vendorCount {
	out := make([]vendorCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, vendorCount{name, count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
