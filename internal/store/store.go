// Package store provides the only mutation path to instruments and portfolios
package store

import (
	"strings"

	"virtual_market/internal/core"
)

// New selects a store implementation for the given path.
// ":memory:" maps to the in-memory store: database/sql connection pooling
// hands each connection its own private sqlite in-memory database, which
// breaks cross-request visibility.
func New(dbPath string) (core.IStore, error) {
	if strings.TrimSpace(dbPath) == ":memory:" {
		return NewMemoryStore(), nil
	}
	return NewSQLiteStore(dbPath)
}
