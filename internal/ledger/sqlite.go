package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/avandenberg/chargeclaim/internal/domain"
)

// SQLiteLedger implements Ledger using a SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger creates a new SQLiteLedger.
func NewSQLiteLedger(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

func (l *SQLiteLedger) IsDuplicate(ctx context.Context, sessionID string) (bool, error) {
	query := `SELECT 1 FROM submissions WHERE session_id = ?`
	var one int
	err := l.db.QueryRowContext(ctx, query, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking for duplicate submission: %w", err)
	}
	return true, nil
}

func (l *SQLiteLedger) Record(ctx context.Context, rec *domain.SubmissionRecord) error {
	if !domain.ValidSubmissionStatuses[string(rec.Status)] {
		return fmt.Errorf("invalid submission status %q", rec.Status)
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now().UTC()
	}

	query := `INSERT INTO submissions (session_id, submitted_at, status) VALUES (?, ?, ?)`
	_, err := l.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.SubmittedAt.Format(time.RFC3339),
		string(rec.Status),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("session %s: %w", rec.SessionID, ErrAlreadyRecorded)
		}
		return fmt.Errorf("inserting submission record: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) List(ctx context.Context) ([]*domain.SubmissionRecord, error) {
	query := `SELECT session_id, submitted_at, status FROM submissions ORDER BY submitted_at, session_id`
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing submission records: %w", err)
	}
	defer rows.Close()

	var records []*domain.SubmissionRecord
	for rows.Next() {
		var rec domain.SubmissionRecord
		var submittedAtStr, statusStr string
		if err := rows.Scan(&rec.SessionID, &submittedAtStr, &statusStr); err != nil {
			return nil, fmt.Errorf("scanning submission record: %w", err)
		}
		rec.SubmittedAt, err = time.Parse(time.RFC3339, submittedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing submitted_at %q: %w", submittedAtStr, err)
		}
		rec.Status = domain.SubmissionStatus(statusStr)
		records = append(records, &rec)
	}
	return records, rows.Err()
}
