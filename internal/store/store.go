// Package store holds the price-store adapter: an in-memory columnar price
// database aligned on a shared date axis, plus SQLite and Parquet loaders
// that populate it from disk.
package store

import (
	"context"
	"time"

	"treequant/internal/domain"
)

// BarLoader reads daily bars for a set of symbols within [start, end].
type BarLoader interface {
	// LoadBars returns bars grouped by symbol. Symbols with no data are
	// simply absent from the result, not an error.
	LoadBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Bar, error)

	// ListSymbols returns all distinct symbols available.
	ListSymbols(ctx context.Context) ([]string, error)
}

// BarWriter persists a batch of daily bars.
type BarWriter interface {
	WriteBars(ctx context.Context, bars []domain.Bar) error
}
