package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"virtual_market/internal/core"
	"virtual_market/pkg/apperrors"
)

// MemoryStore implements core.IStore in memory. A single mutex serializes
// every operation, which matches the per-operation atomicity contract.
type MemoryStore struct {
	mu          sync.RWMutex
	instruments map[string]*core.Instrument
	order       []string // insertion order of symbols
	portfolios  map[string]*core.Portfolio
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instruments: make(map[string]*core.Instrument),
		portfolios:  make(map[string]*core.Portfolio),
	}
}

func (s *MemoryStore) SeedInstrument(_ context.Context, symbol, name string, price decimal.Decimal, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instruments[symbol]; ok {
		return nil
	}
	s.instruments[symbol] = &core.Instrument{
		Symbol:        symbol,
		Name:          name,
		Price:         price,
		PreviousPrice: price,
		UpdatedAt:     now,
	}
	s.order = append(s.order, symbol)
	return nil
}

func (s *MemoryStore) ListInstruments(_ context.Context) ([]*core.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Instrument, 0, len(s.order))
	for _, sym := range s.order {
		inst := *s.instruments[sym]
		out = append(out, &inst)
	}
	return out, nil
}

func (s *MemoryStore) GetInstrument(_ context.Context, symbol string) (*core.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instruments[symbol]
	if !ok {
		return nil, apperrors.ErrUnknownSymbol
	}
	cp := *inst
	return &cp, nil
}

func (s *MemoryStore) UpsertPrice(_ context.Context, symbol string, newPrice decimal.Decimal, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instruments[symbol]
	if !ok {
		return apperrors.ErrUnknownSymbol
	}
	inst.PreviousPrice = inst.Price
	inst.Price = newPrice
	inst.UpdatedAt = now
	return nil
}

func (s *MemoryStore) CreatePortfolio(_ context.Context, team string, initialCash decimal.Decimal, now time.Time) error {
	team = strings.TrimSpace(team)
	if team == "" {
		return apperrors.ErrEmptyTeam
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.portfolios[team]; ok {
		return apperrors.ErrTeamExists
	}
	s.portfolios[team] = &core.Portfolio{
		Team:        team,
		Cash:        initialCash,
		Holdings:    make(map[string]int64),
		LastUpdated: now,
	}
	return nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, team string) (*core.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[team]
	if !ok {
		return nil, apperrors.ErrUnknownTeam
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListPortfolios(_ context.Context) ([]*core.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (s *MemoryStore) ApplyTrade(_ context.Context, team, symbol string, qty int64, now time.Time) (*core.TradeResult, error) {
	if qty == 0 {
		return nil, apperrors.ErrZeroQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instruments[symbol]
	if !ok {
		return nil, apperrors.ErrUnknownSymbol
	}
	p, ok := s.portfolios[team]
	if !ok {
		return nil, apperrors.ErrUnknownTeam
	}

	abs := qty
	if abs < 0 {
		abs = -abs
	}
	price := inst.Price
	total := price.Mul(decimal.NewFromInt(abs))

	if qty > 0 {
		if p.Cash.LessThan(total) {
			return nil, apperrors.ErrInsufficientCash
		}
		p.Cash = p.Cash.Sub(total)
		p.Holdings[symbol] += qty
	} else {
		if p.Holdings[symbol] < abs {
			return nil, apperrors.ErrInsufficientHoldings
		}
		p.Cash = p.Cash.Add(total)
		p.Holdings[symbol] -= abs
		if p.Holdings[symbol] == 0 {
			delete(p.Holdings, symbol)
		}
	}
	p.LastUpdated = now

	snapshot := p.Clone()
	return &core.TradeResult{
		Team:     team,
		Symbol:   symbol,
		Qty:      qty,
		Price:    price,
		Cash:     snapshot.Cash,
		Holdings: snapshot.Holdings,
	}, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
