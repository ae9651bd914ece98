package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargingSession is the canonical record both candidate sources normalize
// into: one charging event with a globally unique identifier, the energy
// delivered and the cost billed for it. SessionID is the deduplication key
// and is never reused across two distinct charging events.
type ChargingSession struct {
	SessionID       string
	StartedAt       time.Time
	EndedAt         time.Time
	EnergyKWh       decimal.Decimal
	CostAmount      decimal.Decimal
	Currency        string
	LocationLabel   string
	IsSupercharging bool

	// InvoiceRef is the content id of the downloadable invoice document
	// for this session, empty when none is available.
	InvoiceRef string
}
