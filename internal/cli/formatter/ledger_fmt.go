package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// FormatLedger renders ledger records oldest first, one per line.
func FormatLedger(records []*domain.SubmissionRecord) string {
	if len(records) == 0 {
		return "Ledger is empty.\n"
	}

	var b strings.Builder
	b.WriteString(StyleHeader.Render("Submission ledger"))
	b.WriteString("\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "  %s  %-10s %s\n",
			StyleDim.Render(rec.SubmittedAt.UTC().Format(time.RFC3339)),
			statusStyle(rec.Status).Render(string(rec.Status)),
			rec.SessionID,
		)
	}
	fmt.Fprintf(&b, "%d record(s)\n", len(records))
	return b.String()
}

func statusStyle(s domain.SubmissionStatus) lipgloss.Style {
	switch s {
	case domain.StatusSuccess:
		return StyleGreen
	case domain.StatusDryRun:
		return StyleDim
	case domain.StatusReconciled:
		return StyleYellow
	default:
		return StyleDim
	}
}
