package domain

type SubmissionStatus string

const (
	StatusSuccess    SubmissionStatus = "success"
	StatusDryRun     SubmissionStatus = "dry-run"
	StatusReconciled SubmissionStatus = "reconciled"
)

// ValidSubmissionStatuses is the canonical set of accepted ledger statuses.
var ValidSubmissionStatuses = map[string]bool{
	"success": true, "dry-run": true, "reconciled": true,
}

// Outcome is the terminal state a candidate session reached during one run.
type Outcome string

const (
	OutcomeSubmitted        Outcome = "submitted"
	OutcomeDryRun           Outcome = "dry-run"
	OutcomeSkippedDuplicate Outcome = "skipped-duplicate"
	OutcomeRejected         Outcome = "rejected"
	OutcomeFailed           Outcome = "failed"
)
