package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"virtual_market/internal/core"
	"virtual_market/pkg/apperrors"
)

// SQLiteStore persists instruments and portfolios in a single sqlite file.
// Holdings live in a native (team, symbol, qty) table so trades are
// conditional updates inside one transaction, not read-modify-write blobs.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS instruments (
	symbol         TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	price          TEXT NOT NULL,
	previous_price TEXT NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS portfolios (
	team         TEXT PRIMARY KEY,
	cash         TEXT NOT NULL,
	last_updated INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	team   TEXT NOT NULL,
	symbol TEXT NOT NULL,
	qty    INTEGER NOT NULL CHECK (qty > 0),
	PRIMARY KEY (team, symbol),
	FOREIGN KEY (team) REFERENCES portfolios(team)
);
`

// NewSQLiteStore opens (and if needed creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SeedInstrument inserts an instrument if the symbol is not yet present
func (s *SQLiteStore) SeedInstrument(ctx context.Context, symbol, name string, price decimal.Decimal, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO instruments(symbol, name, price, previous_price, updated_at) VALUES (?, ?, ?, ?, ?)`,
		symbol, name, price.String(), price.String(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to seed instrument %s: %w", symbol, err)
	}
	return nil
}

// ListInstruments returns all instruments in insertion order
func (s *SQLiteStore) ListInstruments(ctx context.Context) ([]*core.Instrument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, name, price, previous_price, updated_at FROM instruments ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer rows.Close()

	var out []*core.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// GetInstrument returns one instrument snapshot
func (s *SQLiteStore) GetInstrument(ctx context.Context, symbol string) (*core.Instrument, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT symbol, name, price, previous_price, updated_at FROM instruments WHERE symbol = ?`, symbol)
	inst, err := scanInstrument(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrUnknownSymbol
	}
	return inst, err
}

// UpsertPrice rotates price into previous_price and writes the new price
func (s *SQLiteStore) UpsertPrice(ctx context.Context, symbol string, newPrice decimal.Decimal, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE instruments SET previous_price = price, price = ?, updated_at = ? WHERE symbol = ?`,
		newPrice.String(), now.Unix(), symbol)
	if err != nil {
		return fmt.Errorf("failed to update price for %s: %w", symbol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrUnknownSymbol
	}
	return nil
}

// CreatePortfolio registers a team with its seed cash
func (s *SQLiteStore) CreatePortfolio(ctx context.Context, team string, initialCash decimal.Decimal, now time.Time) error {
	team = strings.TrimSpace(team)
	if team == "" {
		return apperrors.ErrEmptyTeam
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO portfolios(team, cash, last_updated) VALUES (?, ?, ?)`,
		team, initialCash.String(), now.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return apperrors.ErrTeamExists
		}
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

// GetPortfolio returns one portfolio snapshot including its holdings
func (s *SQLiteStore) GetPortfolio(ctx context.Context, team string) (*core.Portfolio, error) {
	var cashStr string
	var lastUpdated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT cash, last_updated FROM portfolios WHERE team = ?`, team).Scan(&cashStr, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrUnknownTeam
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio: %w", err)
	}

	cash, err := decimal.NewFromString(cashStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt cash value for %s: %w", team, err)
	}

	holdings, err := s.readHoldings(ctx, s.db, team)
	if err != nil {
		return nil, err
	}

	return &core.Portfolio{
		Team:        team,
		Cash:        cash,
		Holdings:    holdings,
		LastUpdated: time.Unix(lastUpdated, 0),
	}, nil
}

// ListPortfolios returns every portfolio, ordered by team name
func (s *SQLiteStore) ListPortfolios(ctx context.Context) ([]*core.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT team FROM portfolios ORDER BY team`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	var teams []string
	for rows.Next() {
		var team string
		if err := rows.Scan(&team); err != nil {
			rows.Close()
			return nil, err
		}
		teams = append(teams, team)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*core.Portfolio, 0, len(teams))
	for _, team := range teams {
		p, err := s.GetPortfolio(ctx, team)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ApplyTrade executes one buy or sell atomically. The price used is whatever
// the instrument row holds at the moment of execution.
func (s *SQLiteStore) ApplyTrade(ctx context.Context, team, symbol string, qty int64, now time.Time) (*core.TradeResult, error) {
	if qty == 0 {
		return nil, apperrors.ErrZeroQuantity
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var priceStr string
	err = tx.QueryRowContext(ctx, `SELECT price FROM instruments WHERE symbol = ?`, symbol).Scan(&priceStr)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrUnknownSymbol
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read price: %w", err)
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt price for %s: %w", symbol, err)
	}

	var cashStr string
	err = tx.QueryRowContext(ctx, `SELECT cash FROM portfolios WHERE team = ?`, team).Scan(&cashStr)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrUnknownTeam
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cash: %w", err)
	}
	cash, err := decimal.NewFromString(cashStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt cash for %s: %w", team, err)
	}

	abs := qty
	if abs < 0 {
		abs = -abs
	}
	total := price.Mul(decimal.NewFromInt(abs))

	if qty > 0 {
		if cash.LessThan(total) {
			return nil, apperrors.ErrInsufficientCash
		}
		cash = cash.Sub(total)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO positions(team, symbol, qty) VALUES (?, ?, ?)
			 ON CONFLICT(team, symbol) DO UPDATE SET qty = qty + excluded.qty`,
			team, symbol, qty)
		if err != nil {
			return nil, fmt.Errorf("failed to add position: %w", err)
		}
	} else {
		var have int64
		err = tx.QueryRowContext(ctx,
			`SELECT qty FROM positions WHERE team = ? AND symbol = ?`, team, symbol).Scan(&have)
		if err == sql.ErrNoRows {
			have = 0
		} else if err != nil {
			return nil, fmt.Errorf("failed to read position: %w", err)
		}
		if have < abs {
			return nil, apperrors.ErrInsufficientHoldings
		}
		cash = cash.Add(total)
		if have == abs {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM positions WHERE team = ? AND symbol = ?`, team, symbol)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE positions SET qty = qty - ? WHERE team = ? AND symbol = ?`, abs, team, symbol)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to reduce position: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE portfolios SET cash = ?, last_updated = ? WHERE team = ?`,
		cash.String(), now.Unix(), team)
	if err != nil {
		return nil, fmt.Errorf("failed to update cash: %w", err)
	}

	holdings, err := s.readHoldings(ctx, tx, team)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit trade: %w", err)
	}

	return &core.TradeResult{
		Team:     team,
		Symbol:   symbol,
		Qty:      qty,
		Price:    price,
		Cash:     cash,
		Holdings: holdings,
	}, nil
}

// Ping checks database liveness
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) readHoldings(ctx context.Context, q querier, team string) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT symbol, qty FROM positions WHERE team = ?`, team)
	if err != nil {
		return nil, fmt.Errorf("failed to read holdings: %w", err)
	}
	defer rows.Close()

	holdings := make(map[string]int64)
	for rows.Next() {
		var sym string
		var qty int64
		if err := rows.Scan(&sym, &qty); err != nil {
			return nil, err
		}
		holdings[sym] = qty
	}
	return holdings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstrument(row rowScanner) (*core.Instrument, error) {
	var symbol, name, priceStr, prevStr string
	var updatedAt int64
	if err := row.Scan(&symbol, &name, &priceStr, &prevStr, &updatedAt); err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt price for %s: %w", symbol, err)
	}
	prev, err := decimal.NewFromString(prevStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt previous price for %s: %w", symbol, err)
	}
	return &core.Instrument{
		Symbol:        symbol,
		Name:          name,
		Price:         price,
		PreviousPrice: prev,
		UpdatedAt:     time.Unix(updatedAt, 0),
	}, nil
}
