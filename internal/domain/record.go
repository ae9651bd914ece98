package domain

import "time"

// SubmissionRecord is one entry of the submission ledger. Created only after
// a submission attempt is confirmed successful (or explicitly marked dry-run
// or reconciled from the portal's own history); never mutated afterward.
type SubmissionRecord struct {
	SessionID   string
	SubmittedAt time.Time
	Status      SubmissionStatus
}
