package testutil

import (
	"time"

	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/shopspring/decimal"
)

// SessionOption customizes a test charging session.
type SessionOption func(*domain.ChargingSession)

// NewTestSession returns a valid supercharging session with the given id.
func NewTestSession(id string, opts ...SessionOption) domain.ChargingSession {
	started := time.Date(2025, 8, 14, 9, 30, 0, 0, time.UTC)
	s := domain.ChargingSession{
		SessionID:       id,
		StartedAt:       started,
		EndedAt:         started.Add(35 * time.Minute),
		EnergyKWh:       decimal.RequireFromString("41.2"),
		CostAmount:      decimal.RequireFromString("18.75"),
		Currency:        "EUR",
		LocationLabel:   "Utrecht, Netherlands",
		IsSupercharging: true,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithCost sets the session cost from a decimal string.
func WithCost(amount string) SessionOption {
	return func(s *domain.ChargingSession) {
		s.CostAmount = decimal.RequireFromString(amount)
	}
}

// WithEnergy sets the delivered energy from a decimal string.
func WithEnergy(kwh string) SessionOption {
	return func(s *domain.ChargingSession) {
		s.EnergyKWh = decimal.RequireFromString(kwh)
	}
}

// WithStartedAt sets the session start time.
func WithStartedAt(t time.Time) SessionOption {
	return func(s *domain.ChargingSession) {
		s.StartedAt = t
		s.EndedAt = t.Add(30 * time.Minute)
	}
}

// WithSupercharging toggles the supercharging flag.
func WithSupercharging(v bool) SessionOption {
	return func(s *domain.ChargingSession) {
		s.IsSupercharging = v
	}
}

// WithInvoiceRef sets the invoice document reference.
func WithInvoiceRef(ref string) SessionOption {
	return func(s *domain.ChargingSession) {
		s.InvoiceRef = ref
	}
}

// NewTestProfile returns a claimant profile with plausible static data.
func NewTestProfile() domain.ClaimantProfile {
	return domain.ClaimantProfile{
		IBAN:           "NL91ABNA0417164300",
		VIN:            "5YJ3E7EB4KF000000",
		DeviceCountry:  "NL",
		DeviceLanguage: "nl",
		Locale:         "nl_NL",
	}
}
