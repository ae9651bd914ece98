package engine

import (
	"context"

	"github.com/avandenberg/chargeclaim/internal/claim"
	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/avandenberg/chargeclaim/internal/portal"
)

// SessionSource produces candidate charging sessions for one vehicle,
// newest first, already restricted to supercharging events.
type SessionSource interface {
	FetchRecentSessions(ctx context.Context, vin string, maxCount int) ([]domain.ChargingSession, error)
}

// InvoiceFetcher downloads the invoice document attached to a claim.
type InvoiceFetcher interface {
	DownloadInvoice(ctx context.Context, vin, contentID string) ([]byte, error)
}

// Portal is the authenticated transport to the reimbursement portal.
type Portal interface {
	Submit(ctx context.Context, p claim.Payload, attachment []byte) (*portal.Ack, error)
	RecentClaims(ctx context.Context) ([]portal.RecentClaim, error)
}

// Confirmer is the cooperative suspension point before each live
// submission. Implementations range from auto-approval for CI runs to a
// terminal prompt for interactive ones. A false result rejects the claim
// without a portal call; an error aborts the whole run with the ledger
// untouched for that session.
type Confirmer interface {
	Confirm(ctx context.Context, s domain.ChargingSession, p claim.Payload) (bool, error)
}

// AutoApprove approves every submission without interaction.
type AutoApprove struct{}

func (AutoApprove) Confirm(context.Context, domain.ChargingSession, claim.Payload) (bool, error) {
	return true, nil
}
