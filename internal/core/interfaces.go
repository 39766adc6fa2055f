// Package core defines the shared interfaces and domain types for the market server
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ILogger defines the interface for structured logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IStore is the only mutation path to instruments and portfolios.
// Every operation is individually atomic.
type IStore interface {
	// Instruments
	SeedInstrument(ctx context.Context, symbol, name string, price decimal.Decimal, now time.Time) error
	ListInstruments(ctx context.Context) ([]*Instrument, error)
	GetInstrument(ctx context.Context, symbol string) (*Instrument, error)
	UpsertPrice(ctx context.Context, symbol string, newPrice decimal.Decimal, now time.Time) error

	// Portfolios
	CreatePortfolio(ctx context.Context, team string, initialCash decimal.Decimal, now time.Time) error
	GetPortfolio(ctx context.Context, team string) (*Portfolio, error)
	ApplyTrade(ctx context.Context, team, symbol string, qty int64, now time.Time) (*TradeResult, error)
	ListPortfolios(ctx context.Context) ([]*Portfolio, error)

	Ping(ctx context.Context) error
	Close() error
}

// IRoundController gates trading and drives the simulator.
type IRoundController interface {
	Start(now time.Time) RoundSnapshot
	Pause(now time.Time) (RoundSnapshot, error)
	Resume(now time.Time) (RoundSnapshot, error)
	Reset(now time.Time) RoundSnapshot
	Snapshot(now time.Time) RoundSnapshot
	IsTradingOpen(now time.Time) bool
}

// IHealthMonitor aggregates component health checks
type IHealthMonitor interface {
	IsHealthy() bool
	GetStatus() map[string]string
}
