package store

import (
	"math"
	"sort"
	"time"

	"treequant/internal/domain"
)

// Columns holds the per-ticker price arrays, parallel to PriceDB.Dates.
// Positions where the ticker has no bar are NaN. AdjClose is what all
// indicator math runs on; Close is kept for trade pricing downstream.
type Columns struct {
	Open     []float64
	High     []float64
	Low      []float64
	Close    []float64
	AdjClose []float64
}

// PriceDB is the immutable in-memory price database for one backtest run:
// per-ticker columnar arrays aligned on a shared, sorted date axis. Tickers
// may have ragged histories; Points tracks the usable point count per ticker
// so callers can clamp the backtest start to the shortest history.
type PriceDB struct {
	Dates   []time.Time
	Tickers map[string]*Columns
	Points  map[string]int
}

// BuildPriceDB aligns per-symbol bar slices on the union of their dates.
// Dates are truncated to days and sorted ascending; missing positions are
// NaN-filled. Symbols are stored under their canonical uppercase form.
func BuildPriceDB(bars map[string][]domain.Bar) *PriceDB {
	dateSet := make(map[time.Time]struct{})
	for _, bs := range bars {
		for _, b := range bs {
			dateSet[dayOf(b.Timestamp)] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	db := &PriceDB{
		Dates:   dates,
		Tickers: make(map[string]*Columns, len(bars)),
		Points:  make(map[string]int, len(bars)),
	}
	for symbol, bs := range bars {
		ticker := domain.NormalizeTicker(symbol)
		cols := newColumns(len(dates))
		points := 0
		for _, b := range bs {
			i, ok := index[dayOf(b.Timestamp)]
			if !ok {
				continue
			}
			if math.IsNaN(cols.Close[i]) {
				points++
			}
			cols.Open[i] = b.Open
			cols.High[i] = b.High
			cols.Low[i] = b.Low
			cols.Close[i] = b.Close
			cols.AdjClose[i] = b.AdjClose
		}
		db.Tickers[ticker] = cols
		db.Points[ticker] = points
	}
	return db
}

// Limiting returns the ticker with the shortest usable history and its point
// count. The usable backtest start is defined by this ticker. Returns
// ("", 0) for an empty database.
func (db *PriceDB) Limiting() (string, int) {
	limiting := ""
	points := 0
	for ticker, n := range db.Points {
		if limiting == "" || n < points || (n == points && ticker < limiting) {
			limiting = ticker
			points = n
		}
	}
	return limiting, points
}

// AdjCloses returns the adjusted-close column for a ticker, or nil when the
// ticker is absent. The returned slice is shared, not copied; callers must
// treat it as read-only.
func (db *PriceDB) AdjCloses(ticker string) []float64 {
	cols, ok := db.Tickers[domain.NormalizeTicker(ticker)]
	if !ok {
		return nil
	}
	return cols.AdjClose
}

func newColumns(n int) *Columns {
	cols := &Columns{
		Open:     make([]float64, n),
		High:     make([]float64, n),
		Low:      make([]float64, n),
		Close:    make([]float64, n),
		AdjClose: make([]float64, n),
	}
	nan := math.NaN()
	for i := 0; i < n; i++ {
		cols.Open[i] = nan
		cols.High[i] = nan
		cols.Low[i] = nan
		cols.Close[i] = nan
		cols.AdjClose[i] = nan
	}
	return cols
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
