package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avandenberg/chargeclaim/internal/claim"
	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/avandenberg/chargeclaim/internal/ledger"
	"github.com/avandenberg/chargeclaim/internal/portal"
	"github.com/avandenberg/chargeclaim/internal/telematics"
	"github.com/charmbracelet/log"
)

// Options configures a submission engine.
type Options struct {
	Ledger    ledger.Ledger
	Portal    Portal
	Invoices  InvoiceFetcher // optional; claims go out without attachment when nil
	Confirmer Confirmer      // defaults to AutoApprove
	Claimant  domain.ClaimantProfile
	DryRun    bool
	// SubmitAttempts bounds retries of the submit step per session.
	// Transport retries and daily-limit date shifts share this budget.
	SubmitAttempts int
	Logger         *log.Logger
}

// Engine drives each candidate session through the submission pipeline:
// duplicate gate, eligibility filter, payload build, optional confirmation,
// portal submission, ledger record. Strictly sequential: every candidate
// reaches a terminal state before the next one is looked at, so the
// duplicate gate always observes the ledger's latest state.
type Engine struct {
	ledger         ledger.Ledger
	portal         Portal
	invoices       InvoiceFetcher
	confirmer      Confirmer
	claimant       domain.ClaimantProfile
	dryRun         bool
	submitAttempts int
	logger         *log.Logger
	sleep          func(time.Duration)
}

// New creates an Engine from the given options.
func New(opts Options) *Engine {
	if opts.Confirmer == nil {
		opts.Confirmer = AutoApprove{}
	}
	if opts.SubmitAttempts <= 0 {
		opts.SubmitAttempts = 3
	}
	return &Engine{
		ledger:         opts.Ledger,
		portal:         opts.Portal,
		invoices:       opts.Invoices,
		confirmer:      opts.Confirmer,
		claimant:       opts.Claimant,
		dryRun:         opts.DryRun,
		submitAttempts: opts.SubmitAttempts,
		logger:         opts.Logger,
		sleep:          time.Sleep,
	}
}

// Run processes the candidate sessions in order. Per-item failures are
// recorded in the summary and never abort the batch; authentication
// failures and ledger write failures abort immediately, leaving the
// remaining candidates untouched. The returned summary covers everything
// processed up to that point either way.
func (e *Engine) Run(ctx context.Context, sessions []domain.ChargingSession) (*Summary, error) {
	summary := &Summary{DryRun: e.dryRun}
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := e.process(ctx, s)
		if err != nil {
			return summary, err
		}
		summary.Results = append(summary.Results, res)
	}
	return summary, nil
}

// process takes one candidate to a terminal state. A non-nil error is
// fatal for the whole run.
func (e *Engine) process(ctx context.Context, s domain.ChargingSession) (Result, error) {
	dup, err := e.ledger.IsDuplicate(ctx, s.SessionID)
	if err != nil {
		return Result{}, fmt.Errorf("consulting ledger for %s: %w", s.SessionID, err)
	}
	if dup {
		e.logger.Info("skipping duplicate session", "session_id", s.SessionID, "location", s.LocationLabel)
		return result(s, domain.OutcomeSkippedDuplicate, "already in ledger"), nil
	}

	if !s.IsSupercharging {
		e.logger.Info("skipping non-supercharging session", "session_id", s.SessionID)
		return result(s, domain.OutcomeRejected, "not a supercharging session"), nil
	}

	payload, err := claim.BuildPayload(s, e.claimant)
	if err != nil {
		if errors.Is(err, claim.ErrInvalidSession) {
			e.logger.Warn("rejecting invalid session", "session_id", s.SessionID, "err", err)
			return result(s, domain.OutcomeRejected, err.Error()), nil
		}
		return Result{}, err
	}

	ok, err := e.confirmer.Confirm(ctx, s, payload)
	if err != nil {
		// Operator abort: the ledger stays untouched so the session is
		// safe to resume on a later run.
		return Result{}, fmt.Errorf("confirmation aborted for %s: %w", s.SessionID, err)
	}
	if !ok {
		e.logger.Info("submission declined", "session_id", s.SessionID)
		return result(s, domain.OutcomeRejected, "declined by operator"), nil
	}

	if e.dryRun {
		if err := e.record(ctx, s.SessionID, domain.StatusDryRun); err != nil {
			return Result{}, err
		}
		e.logger.Info("dry run, claim not submitted",
			"session_id", s.SessionID, "amount", payload.Amount, "date", payload.DateTransaction)
		return result(s, domain.OutcomeDryRun, "dry run"), nil
	}

	attachment, err := e.fetchAttachment(ctx, s)
	if err != nil {
		return Result{}, err
	}

	return e.submit(ctx, s, payload, attachment)
}

// fetchAttachment downloads the session's invoice document when one is
// referenced. A missing or failed attachment downgrades to a warning;
// expired telematics credentials abort the run like any other auth failure.
func (e *Engine) fetchAttachment(ctx context.Context, s domain.ChargingSession) ([]byte, error) {
	if e.invoices == nil || s.InvoiceRef == "" {
		return nil, nil
	}
	attachment, err := e.invoices.DownloadInvoice(ctx, e.claimant.VIN, s.InvoiceRef)
	if err != nil {
		if errors.Is(err, telematics.ErrAuthExpired) {
			return nil, err
		}
		e.logger.Warn("submitting without invoice attachment", "session_id", s.SessionID, "err", err)
		return nil, nil
	}
	return attachment, nil
}

// submit drives the bounded retry loop around the portal call. Only the
// submit step is retried; dedup and formatting are not revisited.
func (e *Engine) submit(ctx context.Context, s domain.ChargingSession, payload claim.Payload, attachment []byte) (Result, error) {
	current := payload
	var lastErr error

	for attempt := 1; attempt <= e.submitAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		_, err := e.portal.Submit(ctx, current, attachment)
		if err == nil {
			if err := e.record(ctx, s.SessionID, domain.StatusSuccess); err != nil {
				// The claim went out but the ledger cannot remember it;
				// continuing would risk a resubmission next run.
				return Result{}, err
			}
			e.logger.Info("claim submitted",
				"session_id", s.SessionID, "amount", current.Amount, "date", current.DateTransaction)
			return result(s, domain.OutcomeSubmitted, "submitted as "+current.DateTransaction), nil
		}
		lastErr = err

		switch {
		case errors.Is(err, portal.ErrAuthExpired):
			return Result{}, err

		case errors.Is(err, portal.ErrDailyLimit):
			if attempt == e.submitAttempts {
				break
			}
			t, derr := current.TransactionDate()
			if derr != nil {
				return Result{}, derr
			}
			current = current.WithTransactionDate(t.AddDate(0, 0, -1))
			e.logger.Warn("daily limit reached, retrying with earlier date",
				"session_id", s.SessionID, "date", current.DateTransaction)
			continue

		case errors.Is(err, portal.ErrTransport):
			if attempt == e.submitAttempts {
				break
			}
			e.logger.Warn("transient portal error, retrying submit",
				"session_id", s.SessionID, "attempt", attempt, "err", err)
			e.sleep(time.Second)
			continue

		default:
			// Portal-level rejection or malformed response: terminal for
			// this session, not recorded, eligible again next run.
			e.logger.Error("claim rejected by portal",
				"session_id", s.SessionID, "amount", current.Amount, "err", err)
			return result(s, domain.OutcomeFailed, err.Error()), nil
		}
		break
	}

	e.logger.Error("submit attempts exhausted", "session_id", s.SessionID, "err", lastErr)
	return result(s, domain.OutcomeFailed, lastErr.Error()), nil
}

// record appends a ledger entry, tolerating a concurrent-restart replay of
// an id the ledger already holds.
func (e *Engine) record(ctx context.Context, sessionID string, status domain.SubmissionStatus) error {
	err := e.ledger.Record(ctx, &domain.SubmissionRecord{SessionID: sessionID, Status: status})
	if err != nil && !errors.Is(err, ledger.ErrAlreadyRecorded) {
		return fmt.Errorf("recording %s in ledger: %w", sessionID, err)
	}
	return nil
}

// Reconcile backfills the local ledger from the portal's own transaction
// history: every claim note carrying a session id the ledger does not know
// yet is recorded with the reconciled status. This is the recovery path
// for a lost or out-of-sync ledger; it never removes anything.
func (e *Engine) Reconcile(ctx context.Context) (int, error) {
	claims, err := e.portal.RecentClaims(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, c := range claims {
		note := strings.TrimSpace(c.Note)
		if note == "" {
			continue
		}
		dup, err := e.ledger.IsDuplicate(ctx, note)
		if err != nil {
			return added, fmt.Errorf("consulting ledger for %s: %w", note, err)
		}
		if dup {
			continue
		}
		if err := e.record(ctx, note, domain.StatusReconciled); err != nil {
			return added, err
		}
		e.logger.Info("reconciled portal claim into ledger", "session_id", note, "amount", c.Amount)
		added++
	}
	return added, nil
}

func result(s domain.ChargingSession, outcome domain.Outcome, detail string) Result {
	return Result{Session: s, Outcome: outcome, Detail: detail}
}
