// Package market evolves instrument prices while a round is running
package market

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"virtual_market/internal/core"
	"virtual_market/pkg/telemetry"
)

// PriceFloor is the hard lower bound for any instrument price
var PriceFloor = decimal.NewFromFloat(0.01)

// maxMove is the half-width of the uniform per-tick move (±0.5%)
const maxMove = 0.005

// Broadcaster receives the instrument snapshot after each applied tick.
// Implemented by the WebSocket hub; nil disables broadcasting.
type Broadcaster interface {
	BroadcastInstruments(instruments []*core.Instrument)
}

// Simulator is the background ticker that advances prices. One long-lived
// goroutine; no per-tick workers.
type Simulator struct {
	store    core.IStore
	rounds   core.IRoundController
	logger   core.ILogger
	interval time.Duration
	hub      Broadcaster

	tracer trace.Tracer

	rngMu sync.Mutex
	rng   *rand.Rand

	lastTick atomic.Int64 // unix nanos of the last completed tick
}

// NewSimulator creates a simulator with the given cadence
func NewSimulator(store core.IStore, rounds core.IRoundController, interval time.Duration, hub Broadcaster, logger core.ILogger) *Simulator {
	return &Simulator{
		store:    store,
		rounds:   rounds,
		logger:   logger.WithField("component", "simulator"),
		interval: interval,
		hub:      hub,
		tracer:   telemetry.GetTracer("market-simulator"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run drives the tick loop until the context is cancelled
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("Starting price simulator", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping price simulator")
			return nil
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick applies one price update pass. It produces no writes unless the
// round is RUNNING, and it never returns an error: individual update
// failures are logged and skipped.
func (s *Simulator) Tick(ctx context.Context, now time.Time) {
	defer s.lastTick.Store(now.UnixNano())

	if s.rounds.Snapshot(now).Status != core.RoundRunning {
		return
	}

	ctx, span := s.tracer.Start(ctx, "Tick")
	defer span.End()

	instruments, err := s.store.ListInstruments(ctx)
	if err != nil {
		s.logger.Error("Failed to list instruments", "error", err)
		span.RecordError(err)
		return
	}
	span.SetAttributes(attribute.Int("instruments", len(instruments)))

	// Insertion order within a tick is the only ordering guarantee offered.
	for _, inst := range instruments {
		newPrice := s.nextPrice(inst.Price)
		if err := s.store.UpsertPrice(ctx, inst.Symbol, newPrice, now); err != nil {
			s.logger.Error("Failed to update price", "symbol", inst.Symbol, "error", err)
			continue
		}
		inst.PreviousPrice = inst.Price
		inst.Price = newPrice
		inst.UpdatedAt = now
	}

	if m := telemetry.GetGlobalMetrics().PriceTicksTotal; m != nil {
		m.Add(ctx, 1)
	}

	if s.hub != nil {
		s.hub.BroadcastInstruments(instruments)
	}
}

// nextPrice draws a uniform move in [-0.5%, +0.5%] and clamps to the floor
func (s *Simulator) nextPrice(price decimal.Decimal) decimal.Decimal {
	s.rngMu.Lock()
	delta := s.rng.Float64()*2*maxMove - maxMove
	s.rngMu.Unlock()

	next := price.Mul(decimal.NewFromFloat(1 + delta))
	if next.LessThan(PriceFloor) {
		return PriceFloor
	}
	return next
}

// HealthCheck reports whether the tick loop is still alive
func (s *Simulator) HealthCheck() error {
	last := s.lastTick.Load()
	if last == 0 {
		// Not ticked yet; treat startup as healthy.
		return nil
	}
	if time.Since(time.Unix(0, last)) > 3*s.interval {
		return fmt.Errorf("simulator stalled: last tick %s ago", time.Since(time.Unix(0, last)))
	}
	return nil
}
