package query

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual_market/internal/store"
	"virtual_market/pkg/apperrors"
	"virtual_market/pkg/concurrency"
	"virtual_market/pkg/logging"
)

func newService(t *testing.T, pool *concurrency.WorkerPool) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(st, pool, logging.NewNop()), st
}

func TestStocks(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.SeedInstrument(ctx, "INFY", "Infosys (sim)", decimal.NewFromInt(1500), now))
	require.NoError(t, st.SeedInstrument(ctx, "TCS", "TCS (sim)", decimal.NewFromInt(3200), now))
	require.NoError(t, st.UpsertPrice(ctx, "INFY", decimal.NewFromInt(1530), now))

	stocks, err := svc.Stocks(ctx)
	require.NoError(t, err)
	require.Len(t, stocks, 2)

	infy := stocks[0]
	assert.Equal(t, "INFY", infy.Symbol)
	assert.Equal(t, 1530.0, infy.Price)
	assert.Equal(t, 1500.0, infy.LastPrice)
	assert.Equal(t, 2.0, infy.PctChange)

	tcs := stocks[1]
	assert.Equal(t, 3200.0, tcs.Price)
	assert.Equal(t, 0.0, tcs.PctChange)
}

func TestStocks_RoundsAtPresentation(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.SeedInstrument(ctx, "INFY", "Infosys (sim)", decimal.NewFromFloat(1500.4567), now))

	stocks, err := svc.Stocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1500.46, stocks[0].Price)
}

func TestPortfolio_MarkToMarket(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.SeedInstrument(ctx, "INFY", "Infosys (sim)", decimal.NewFromInt(1500), now))
	require.NoError(t, st.CreatePortfolio(ctx, "alpha", decimal.NewFromInt(100000), now))
	_, err := st.ApplyTrade(ctx, "alpha", "INFY", 10, now)
	require.NoError(t, err)

	// Later price moves change the valuation, not the cash.
	require.NoError(t, st.UpsertPrice(ctx, "INFY", decimal.NewFromInt(1600), now))

	view, err := svc.Portfolio(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", view.Team)
	assert.Equal(t, 85000.0, view.Cash)
	require.Contains(t, view.Holdings, "INFY")
	assert.Equal(t, int64(10), view.Holdings["INFY"].Qty)
	assert.Equal(t, 1600.0, view.Holdings["INFY"].Price)
	assert.Equal(t, 16000.0, view.Holdings["INFY"].Value)
	assert.Equal(t, 101000.0, view.PortfolioValue)
}

func TestPortfolio_UnknownTeam(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Portfolio(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperrors.ErrUnknownTeam)
}

func TestLeaderboard_RanksByValue(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.SeedInstrument(ctx, "INFY", "Infosys (sim)", decimal.NewFromInt(1500), now))
	require.NoError(t, st.CreatePortfolio(ctx, "alpha", decimal.NewFromInt(100000), now))
	require.NoError(t, st.CreatePortfolio(ctx, "beta", decimal.NewFromInt(100000), now))

	_, err := st.ApplyTrade(ctx, "alpha", "INFY", 10, now)
	require.NoError(t, err)
	require.NoError(t, st.UpsertPrice(ctx, "INFY", decimal.NewFromInt(1600), now))

	board, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 2)

	// alpha: 85000 cash + 10 * 1600 = 101000
	assert.Equal(t, "alpha", board[0].Team)
	assert.Equal(t, 101000.0, board[0].Value)
	assert.Equal(t, 85000.0, board[0].Cash)
	assert.Equal(t, "beta", board[1].Team)
	assert.Equal(t, 100000.0, board[1].Value)
}

func TestLeaderboard_TiesBreakByTeamName(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	now := time.Now()
	cash := decimal.NewFromInt(100000)

	require.NoError(t, st.CreatePortfolio(ctx, "zeta", cash, now))
	require.NoError(t, st.CreatePortfolio(ctx, "alpha", cash, now))
	require.NoError(t, st.CreatePortfolio(ctx, "mid", cash, now))

	board, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "alpha", board[0].Team)
	assert.Equal(t, "mid", board[1].Team)
	assert.Equal(t, "zeta", board[2].Team)
}

func TestLeaderboard_WithWorkerPool(t *testing.T) {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "leaderboard-test",
		MaxWorkers:  4,
		MaxCapacity: 64,
	}, logging.NewNop())
	defer pool.Stop()

	svc, st := newService(t, pool)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.SeedInstrument(ctx, "INFY", "Infosys (sim)", decimal.NewFromInt(1500), now))
	for _, team := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, st.CreatePortfolio(ctx, team, decimal.NewFromInt(100000), now))
	}
	_, err := st.ApplyTrade(ctx, "c", "INFY", 10, now)
	require.NoError(t, err)
	require.NoError(t, st.UpsertPrice(ctx, "INFY", decimal.NewFromInt(2000), now))

	board, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 5)
	assert.Equal(t, "c", board[0].Team)
	assert.Equal(t, 105000.0, board[0].Value)
}

func TestLeaderboard_Empty(t *testing.T) {
	svc, _ := newService(t, nil)
	board, err := svc.Leaderboard(context.Background())
	require.NoError(t, err)
	assert.Empty(t, board)
}
