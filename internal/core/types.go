package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is a tradable symbol with an evolving mid-price.
type Instrument struct {
	Symbol        string
	Name          string
	Price         decimal.Decimal
	PreviousPrice decimal.Decimal
	UpdatedAt     time.Time
}

// Portfolio holds one team's cash and positions.
type Portfolio struct {
	Team        string
	Cash        decimal.Decimal
	Holdings    map[string]int64
	LastUpdated time.Time
}

// Clone returns a deep copy so callers can mutate snapshots freely.
func (p *Portfolio) Clone() *Portfolio {
	cp := *p
	cp.Holdings = make(map[string]int64, len(p.Holdings))
	for sym, qty := range p.Holdings {
		cp.Holdings[sym] = qty
	}
	return &cp
}

// TradeResult is the post-trade snapshot returned to the caller.
type TradeResult struct {
	Team     string
	Symbol   string
	Qty      int64
	Price    decimal.Decimal
	Cash     decimal.Decimal
	Holdings map[string]int64
}

// RoundStatus is the round lifecycle state.
type RoundStatus string

const (
	RoundIdle    RoundStatus = "IDLE"
	RoundRunning RoundStatus = "RUNNING"
	RoundPaused  RoundStatus = "PAUSED"
	RoundEnded   RoundStatus = "ENDED"
)

// RoundSnapshot is a point-in-time view of the round state machine.
type RoundSnapshot struct {
	Status    RoundStatus
	Deadline  time.Time     // valid while RUNNING
	Remaining time.Duration // valid while RUNNING or PAUSED
}
