// Package trading executes buy and sell orders against the store
package trading

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"virtual_market/internal/core"
	"virtual_market/internal/market"
	"virtual_market/pkg/apperrors"
	"virtual_market/pkg/telemetry"
)

// Options tune executor behavior
type Options struct {
	// Timeout bounds the whole execution including lock acquisition.
	Timeout time.Duration
	// PriceImpact applies a post-trade price adjustment of
	// 0.01 * |qty| / 100, signed by trade side.
	PriceImpact bool
}

// Executor serializes trades per team and enforces the cash/holdings
// invariants through the store's atomic ApplyTrade.
type Executor struct {
	store  core.IStore
	rounds core.IRoundController
	logger core.ILogger
	opts   Options

	tracer trace.Tracer
	nowFn  func() time.Time

	locks sync.Map // team -> chan struct{} (1-slot semaphore)
}

// NewExecutor creates a trade executor
func NewExecutor(store core.IStore, rounds core.IRoundController, opts Options, logger core.ILogger) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = 4 * time.Second
	}
	return &Executor{
		store:  store,
		rounds: rounds,
		logger: logger.WithField("component", "trade_executor"),
		opts:   opts,
		tracer: telemetry.GetTracer("trade-executor"),
		nowFn:  time.Now,
	}
}

// Execute runs a single buy (qty > 0) or sell (qty < 0).
// No partial effect is ever visible: preconditions fail before any
// mutation, and the store applies the trade in one atomic section.
func (e *Executor) Execute(ctx context.Context, team, symbol string, qty int64) (*core.TradeResult, error) {
	start := time.Now()
	now := e.nowFn()

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "Execute",
		trace.WithAttributes(
			attribute.String("team", team),
			attribute.String("symbol", symbol),
			attribute.Int64("qty", qty),
		),
	)
	defer span.End()

	if !e.rounds.IsTradingOpen(now) {
		telemetry.GetGlobalMetrics().RecordRejection(ctx, apperrors.ErrRoundClosed.Error())
		return nil, apperrors.ErrRoundClosed
	}
	if qty == 0 {
		telemetry.GetGlobalMetrics().RecordRejection(ctx, apperrors.ErrZeroQuantity.Error())
		return nil, apperrors.ErrZeroQuantity
	}

	lock := e.teamLock(team)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		telemetry.GetGlobalMetrics().RecordRejection(ctx, apperrors.ErrTimeout.Error())
		return nil, apperrors.ErrTimeout
	}
	defer func() { <-lock }()

	res, err := e.store.ApplyTrade(ctx, team, symbol, qty, now)
	if err != nil {
		span.RecordError(err)
		telemetry.GetGlobalMetrics().RecordRejection(ctx, err.Error())
		return nil, err
	}

	side := "buy"
	if qty < 0 {
		side = "sell"
	}
	notional, _ := res.Price.Mul(decimal.NewFromInt(absQty(qty))).Float64()
	telemetry.GetGlobalMetrics().RecordTrade(ctx, symbol, side, notional, time.Since(start).Seconds())

	e.logger.Info("Trade executed",
		"team", team, "symbol", symbol, "qty", qty,
		"price", res.Price, "cash", res.Cash,
	)

	if e.opts.PriceImpact {
		e.applyPriceImpact(ctx, res, now)
	}

	return res, nil
}

// applyPriceImpact nudges the traded instrument by 0.01 * |qty| / 100,
// up on buys and down on sells. Failures never fail the trade itself.
func (e *Executor) applyPriceImpact(ctx context.Context, res *core.TradeResult, now time.Time) {
	adjustment := decimal.NewFromFloat(0.01).
		Mul(decimal.NewFromInt(absQty(res.Qty))).
		Div(decimal.NewFromInt(100))

	factor := decimal.NewFromInt(1)
	if res.Qty > 0 {
		factor = factor.Add(adjustment)
	} else {
		factor = factor.Sub(adjustment)
	}

	newPrice := res.Price.Mul(factor)
	if newPrice.LessThan(market.PriceFloor) {
		newPrice = market.PriceFloor
	}

	if err := e.store.UpsertPrice(ctx, res.Symbol, newPrice, now); err != nil {
		e.logger.Error("Failed to apply price impact", "symbol", res.Symbol, "error", err)
	}
}

func (e *Executor) teamLock(team string) chan struct{} {
	v, _ := e.locks.LoadOrStore(team, make(chan struct{}, 1))
	return v.(chan struct{})
}

func absQty(qty int64) int64 {
	if qty < 0 {
		return -qty
	}
	return qty
}
