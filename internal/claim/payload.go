package claim

import (
	"errors"
	"fmt"
	"time"

	"github.com/avandenberg/chargeclaim/internal/domain"
)

// ErrInvalidSession indicates a charging session that must never reach the
// portal: missing session id, non-positive cost or negative energy.
var ErrInvalidSession = errors.New("invalid charging session")

// apiTimeLayout is the UTC millisecond-Z format the portal expects for
// transaction dates.
const apiTimeLayout = "2006-01-02T15:04:05.000Z"

// Payload is the claim shape the reimbursement portal accepts. It is
// transient: derived deterministically from a session plus the claimant
// profile, never persisted, regenerated per attempt.
type Payload struct {
	TransactionTypeID string
	IBAN              string
	Amount            string
	DateTransaction   string
	Mileage           int
	IsForeign         bool
	CountryID         string
	IsReplacement     bool
	Quantity          string
	Description       string
	ProductCode       string
}

// BuildPayload maps a canonical session record plus static claimant data
// into the portal's claim shape. Pure and deterministic: the same session
// always yields byte-identical field values. The session id is embedded
// verbatim in Description, which the portal stores as the claim note and
// the duplicate check relies on.
func BuildPayload(s domain.ChargingSession, claimant domain.ClaimantProfile) (Payload, error) {
	if s.SessionID == "" {
		return Payload{}, fmt.Errorf("%w: empty session id", ErrInvalidSession)
	}
	if s.CostAmount.Sign() <= 0 {
		return Payload{}, fmt.Errorf("%w: cost amount %s is not positive", ErrInvalidSession, s.CostAmount)
	}
	if s.EnergyKWh.Sign() < 0 {
		return Payload{}, fmt.Errorf("%w: energy %s kWh is negative", ErrInvalidSession, s.EnergyKWh)
	}

	return Payload{
		TransactionTypeID: "EV",
		IBAN:              claimant.IBAN,
		Amount:            s.CostAmount.StringFixed(2),
		DateTransaction:   s.StartedAt.UTC().Format(apiTimeLayout),
		Mileage:           0,
		IsForeign:         false,
		CountryID:         claimant.DeviceCountry,
		IsReplacement:     false,
		Quantity:          s.EnergyKWh.String(),
		Description:       s.SessionID,
		ProductCode:       "10", // electricity
	}, nil
}

// TransactionDate parses the payload's transaction date.
func (p Payload) TransactionDate() (time.Time, error) {
	t, err := time.Parse(apiTimeLayout, p.DateTransaction)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing transaction date %q: %w", p.DateTransaction, err)
	}
	return t, nil
}

// WithTransactionDate returns a copy of the payload carrying t as the
// transaction date. Used when the portal's daily limit forces a claim onto
// an earlier date; everything else, including the session id in
// Description, stays identical.
func (p Payload) WithTransactionDate(t time.Time) Payload {
	p.DateTransaction = t.UTC().Format(apiTimeLayout)
	return p
}
