package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/avandenberg/chargeclaim/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	return NewSQLiteLedger(testutil.NewTestDB(t))
}

func TestLedger_RecordAndIsDuplicate(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	dup, err := l.IsDuplicate(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, dup)

	rec := &domain.SubmissionRecord{SessionID: "sess-1", Status: domain.StatusSuccess}
	require.NoError(t, l.Record(ctx, rec))
	assert.False(t, rec.SubmittedAt.IsZero(), "Record should stamp SubmittedAt")

	dup, err = l.IsDuplicate(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestLedger_RecordIsAppendOnly(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, &domain.SubmissionRecord{SessionID: "sess-1", Status: domain.StatusSuccess}))

	// A second record for the same session id is reported, never applied.
	err := l.Record(ctx, &domain.SubmissionRecord{SessionID: "sess-1", Status: domain.StatusDryRun})
	assert.ErrorIs(t, err, ErrAlreadyRecorded)

	records, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusSuccess, records[0].Status)
}

func TestLedger_RecordRejectsUnknownStatus(t *testing.T) {
	l := newTestLedger(t)

	err := l.Record(context.Background(), &domain.SubmissionRecord{
		SessionID: "sess-1",
		Status:    domain.SubmissionStatus("pending"),
	})
	assert.Error(t, err)
}

func TestLedger_ListOrderedBySubmittedAt(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, l.Record(ctx, &domain.SubmissionRecord{
		SessionID: "sess-b", SubmittedAt: base.Add(time.Hour), Status: domain.StatusDryRun,
	}))
	require.NoError(t, l.Record(ctx, &domain.SubmissionRecord{
		SessionID: "sess-a", SubmittedAt: base, Status: domain.StatusSuccess,
	}))
	require.NoError(t, l.Record(ctx, &domain.SubmissionRecord{
		SessionID: "sess-c", SubmittedAt: base.Add(2 * time.Hour), Status: domain.StatusReconciled,
	}))

	records, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "sess-a", records[0].SessionID)
	assert.Equal(t, "sess-b", records[1].SessionID)
	assert.Equal(t, "sess-c", records[2].SessionID)
}

func TestLedger_DuplicateAcrossReopen(t *testing.T) {
	// Durability across runs: a second ledger handle over the same database
	// must see entries written through the first.
	database := testutil.NewTestDB(t)
	ctx := context.Background()

	first := NewSQLiteLedger(database)
	require.NoError(t, first.Record(ctx, &domain.SubmissionRecord{SessionID: "sess-1", Status: domain.StatusSuccess}))

	second := NewSQLiteLedger(database)
	dup, err := second.IsDuplicate(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, dup)
}
