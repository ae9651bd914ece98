package ledger

import (
	"context"
	"errors"

	"github.com/avandenberg/chargeclaim/internal/domain"
)

var (
	// ErrAlreadyRecorded indicates a session id is already present in the
	// ledger. Recording is append-only and keyed by session id, so a
	// re-record after a process restart is reported rather than applied.
	ErrAlreadyRecorded = errors.New("session already recorded")
)

// Ledger is the durable record of session identifiers already submitted.
// It is the sole gate against resubmission: IsDuplicate must be consulted
// before every submission attempt. Entries are never removed or mutated.
type Ledger interface {
	IsDuplicate(ctx context.Context, sessionID string) (bool, error)
	Record(ctx context.Context, rec *domain.SubmissionRecord) error
	List(ctx context.Context) ([]*domain.SubmissionRecord, error)
}
