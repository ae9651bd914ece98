package formatter

import (
	"fmt"
	"strings"

	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/avandenberg/chargeclaim/internal/engine"
)

// FormatSummary renders the per-session results of a run plus a totals line.
func FormatSummary(s *engine.Summary) string {
	var b strings.Builder

	header := "Run summary"
	if s.DryRun {
		header = "Run summary (dry run)"
	}
	b.WriteString(StyleHeader.Render(header))
	b.WriteString("\n")

	for _, r := range s.Results {
		outcome := OutcomeStyle(r.Outcome).Render(string(r.Outcome))
		fmt.Fprintf(&b, "  %-14s %8s %s  %s",
			outcome,
			r.Session.CostAmount.StringFixed(2),
			r.Session.Currency,
			r.Session.SessionID,
		)
		if r.Session.LocationLabel != "" {
			b.WriteString(StyleDim.Render("  " + r.Session.LocationLabel))
		}
		if r.Detail != "" && r.Outcome != domain.OutcomeSubmitted {
			b.WriteString(StyleDim.Render("  (" + r.Detail + ")"))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%d submitted, %d skipped, %d rejected, %d failed\n",
		s.Count(domain.OutcomeSubmitted)+s.Count(domain.OutcomeDryRun),
		s.Count(domain.OutcomeSkippedDuplicate),
		s.Count(domain.OutcomeRejected),
		s.Count(domain.OutcomeFailed),
	)
	return b.String()
}
