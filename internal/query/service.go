// Package query serves the read-only endpoints: instruments, portfolios, leaderboard
package query

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"virtual_market/internal/core"
	"virtual_market/pkg/concurrency"
)

// StockView is one instrument row as reported to clients.
// Prices are rounded to 2 decimals here, at the presentation boundary only.
type StockView struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	LastPrice float64 `json:"last_price"`
	PctChange float64 `json:"pct_change"`
	UpdatedAt int64   `json:"updated_at"`
}

// HoldingView is one position inside a portfolio view
type HoldingView struct {
	Qty   int64   `json:"qty"`
	Price float64 `json:"price"`
	Value float64 `json:"value"`
}

// PortfolioView is the mark-to-market view of one team
type PortfolioView struct {
	Team           string                 `json:"team"`
	Cash           float64                `json:"cash"`
	Holdings       map[string]HoldingView `json:"holdings"`
	PortfolioValue float64                `json:"portfolio_value"`
}

// LeaderboardEntry is one ranked team
type LeaderboardEntry struct {
	Team  string  `json:"team"`
	Cash  float64 `json:"cash"`
	Value float64 `json:"value"`
}

// Service computes read views over store snapshots
type Service struct {
	store  core.IStore
	logger core.ILogger
	pool   *concurrency.WorkerPool
}

// NewService creates a query service. The pool fans out leaderboard
// valuations; nil computes them inline.
func NewService(store core.IStore, pool *concurrency.WorkerPool, logger core.ILogger) *Service {
	return &Service{
		store:  store,
		logger: logger.WithField("component", "query_service"),
		pool:   pool,
	}
}

// Stocks returns the instrument snapshot in insertion order
func (s *Service) Stocks(ctx context.Context) ([]StockView, error) {
	instruments, err := s.store.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]StockView, 0, len(instruments))
	for _, inst := range instruments {
		out = append(out, StockView{
			Symbol:    inst.Symbol,
			Name:      inst.Name,
			Price:     round2(inst.Price),
			LastPrice: round2(inst.PreviousPrice),
			PctChange: pctChange(inst.Price, inst.PreviousPrice),
			UpdatedAt: inst.UpdatedAt.Unix(),
		})
	}
	return out, nil
}

// Portfolio returns the mark-to-market view of one team. All holdings are
// valued against a single instrument snapshot so portfolio_value is
// self-consistent.
func (s *Service) Portfolio(ctx context.Context, team string) (*PortfolioView, error) {
	p, err := s.store.GetPortfolio(ctx, team)
	if err != nil {
		return nil, err
	}

	prices, err := s.priceSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	holdings := make(map[string]HoldingView, len(p.Holdings))
	total := p.Cash
	for sym, qty := range p.Holdings {
		price := prices[sym]
		value := price.Mul(decimal.NewFromInt(qty))
		holdings[sym] = HoldingView{
			Qty:   qty,
			Price: round2(price),
			Value: round2(value),
		}
		total = total.Add(value)
	}

	return &PortfolioView{
		Team:           p.Team,
		Cash:           round2(p.Cash),
		Holdings:       holdings,
		PortfolioValue: round2(total),
	}, nil
}

// Leaderboard ranks every team by portfolio value, descending, ties broken
// by ascending team name. One price snapshot values all portfolios.
func (s *Service) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	portfolios, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	prices, err := s.priceSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	values := make([]decimal.Decimal, len(portfolios))
	valuate := func(i int) func() {
		return func() {
			p := portfolios[i]
			total := p.Cash
			for sym, qty := range p.Holdings {
				total = total.Add(prices[sym].Mul(decimal.NewFromInt(qty)))
			}
			values[i] = total
		}
	}

	if s.pool != nil && len(portfolios) > 1 {
		group := s.pool.Group()
		for i := range portfolios {
			group.Submit(valuate(i))
		}
		group.Wait()
	} else {
		for i := range portfolios {
			valuate(i)()
		}
	}

	idx := make([]int, len(portfolios))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		va, vb := values[idx[a]], values[idx[b]]
		if !va.Equal(vb) {
			return va.GreaterThan(vb)
		}
		return portfolios[idx[a]].Team < portfolios[idx[b]].Team
	})

	out := make([]LeaderboardEntry, 0, len(idx))
	for _, i := range idx {
		out = append(out, LeaderboardEntry{
			Team:  portfolios[i].Team,
			Cash:  round2(portfolios[i].Cash),
			Value: round2(values[i]),
		})
	}
	return out, nil
}

func (s *Service) priceSnapshot(ctx context.Context) (map[string]decimal.Decimal, error) {
	instruments, err := s.store.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]decimal.Decimal, len(instruments))
	for _, inst := range instruments {
		prices[inst.Symbol] = inst.Price
	}
	return prices, nil
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func pctChange(price, prev decimal.Decimal) float64 {
	if !prev.IsPositive() {
		return 0.0
	}
	pct := price.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100))
	f, _ := pct.Round(2).Float64()
	return f
}
