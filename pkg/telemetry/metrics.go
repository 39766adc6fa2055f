package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricTradesExecutedTotal = "market_trades_executed_total"
	MetricTradesRejectedTotal = "market_trades_rejected_total"
	MetricTradeVolumeTotal    = "market_trade_volume_total"
	MetricPriceTicksTotal     = "market_price_ticks_total"
	MetricTeamsRegistered     = "market_teams_registered_total"
	MetricRoundStatus         = "market_round_status"
	MetricTradeLatency        = "market_trade_latency_seconds"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	TradesExecutedTotal metric.Int64Counter
	TradesRejectedTotal metric.Int64Counter
	TradeVolumeTotal    metric.Float64Counter
	PriceTicksTotal     metric.Int64Counter
	TeamsRegistered     metric.Int64Counter
	RoundStatus         metric.Int64ObservableGauge
	TradeLatency        metric.Float64Histogram

	mu          sync.RWMutex
	roundStatus int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the process-wide metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{}
	})
	return globalMetrics
}

// InitMetrics creates the instruments on the given meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.TradesExecutedTotal, err = meter.Int64Counter(MetricTradesExecutedTotal,
		metric.WithDescription("Total number of successfully executed trades")); err != nil {
		return err
	}
	if m.TradesRejectedTotal, err = meter.Int64Counter(MetricTradesRejectedTotal,
		metric.WithDescription("Total number of rejected trades")); err != nil {
		return err
	}
	if m.TradeVolumeTotal, err = meter.Float64Counter(MetricTradeVolumeTotal,
		metric.WithDescription("Total traded notional value")); err != nil {
		return err
	}
	if m.PriceTicksTotal, err = meter.Int64Counter(MetricPriceTicksTotal,
		metric.WithDescription("Total number of simulator price ticks applied")); err != nil {
		return err
	}
	if m.TeamsRegistered, err = meter.Int64Counter(MetricTeamsRegistered,
		metric.WithDescription("Total number of registered teams")); err != nil {
		return err
	}
	if m.TradeLatency, err = meter.Float64Histogram(MetricTradeLatency,
		metric.WithDescription("End-to-end trade execution latency in seconds")); err != nil {
		return err
	}

	m.RoundStatus, err = meter.Int64ObservableGauge(MetricRoundStatus,
		metric.WithDescription("Round status (0=idle 1=running 2=paused 3=ended)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			o.Observe(m.roundStatus)
			return nil
		}))
	return err
}

// SetRoundStatus records the current round status for the observable gauge
func (m *MetricsHolder) SetRoundStatus(status int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roundStatus = status
}

// RecordTrade records a successful trade
func (m *MetricsHolder) RecordTrade(ctx context.Context, symbol, side string, notional, latencySeconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("side", side),
	)
	if m.TradesExecutedTotal != nil {
		m.TradesExecutedTotal.Add(ctx, 1, attrs)
	}
	if m.TradeVolumeTotal != nil {
		m.TradeVolumeTotal.Add(ctx, notional, attrs)
	}
	if m.TradeLatency != nil {
		m.TradeLatency.Record(ctx, latencySeconds, attrs)
	}
}

// RecordRejection records a failed trade with its reason
func (m *MetricsHolder) RecordRejection(ctx context.Context, reason string) {
	if m.TradesRejectedTotal != nil {
		m.TradesRejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}
