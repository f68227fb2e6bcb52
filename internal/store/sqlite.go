package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"treequant/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ BarLoader = (*SQLiteStore)(nil)
var _ BarWriter = (*SQLiteStore)(nil)

// SQLiteStore implements BarLoader and BarWriter backed by a SQLite database
// with a single daily_bars table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_bars (
			symbol      TEXT NOT NULL,
			date        TEXT NOT NULL,
			open        REAL,
			high        REAL,
			low         REAL,
			close       REAL,
			adj_close   REAL,
			volume      INTEGER,
			trade_count INTEGER,
			vwap        REAL,
			PRIMARY KEY (symbol, date)
		)`)
	if err != nil {
		return fmt.Errorf("creating daily_bars: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteBars upserts a batch of daily bars.
func (s *SQLiteStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO daily_bars
		(symbol, date, open, high, low, close, adj_close, volume, trade_count, vwap)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx,
			domain.NormalizeTicker(b.Symbol),
			b.Timestamp.UTC().Format("2006-01-02"),
			b.Open, b.High, b.Low, b.Close, b.AdjClose,
			b.Volume, b.TradeCount, b.VWAP,
		)
		if err != nil {
			return fmt.Errorf("inserting bar %s/%s: %w", b.Symbol, b.Timestamp.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

// LoadBars reads daily bars for the given symbols within [start, end],
// grouped by symbol.
func (s *SQLiteStore) LoadBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	if len(symbols) == 0 {
		return map[string][]domain.Bar{}, nil
	}
	placeholders := make([]string, len(symbols))
	args := make([]any, 0, len(symbols)+2)
	for i, sym := range symbols {
		placeholders[i] = "?"
		args = append(args, domain.NormalizeTicker(sym))
	}
	args = append(args, start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))

	query := fmt.Sprintf(`
		SELECT symbol, date, open, high, low, close, adj_close, volume, trade_count, vwap
		FROM daily_bars
		WHERE symbol IN (%s) AND date >= ? AND date <= ?
		ORDER BY symbol, date`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying daily_bars: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Bar)
	for rows.Next() {
		var b domain.Bar
		var date string
		if err := rows.Scan(&b.Symbol, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume, &b.TradeCount, &b.VWAP); err != nil {
			return nil, err
		}
		ts, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("parsing bar date %q: %w", date, err)
		}
		b.Timestamp = ts
		out[b.Symbol] = append(out[b.Symbol], b)
	}
	return out, rows.Err()
}

// ListSymbols returns all distinct symbols present in the database.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM daily_bars ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}
