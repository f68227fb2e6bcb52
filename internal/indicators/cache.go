package indicators

import "treequant/internal/domain"

// seriesKey is the composite cache key: one flat map instead of nested maps,
// so a cache instance can be reasoned about (and, if ever shared, locked) as
// a single unit.
type seriesKey struct {
	metric domain.Metric
	ticker string
	period int
}

// Cache memoizes computed indicator series plus the derived per-ticker close
// and return arrays. A cache belongs to exactly one backtest run: prices are
// immutable for the run's duration, so entries are never invalidated, and
// the whole cache is discarded at run end. Population is check-then-write
// and not safe for concurrent use; concurrent runs get separate caches.
type Cache struct {
	series  map[seriesKey]Series
	closes  map[string]Series
	returns map[string]Series
}

// NewCache creates an empty per-run cache.
func NewCache() *Cache {
	return &Cache{
		series:  make(map[seriesKey]Series),
		closes:  make(map[string]Series),
		returns: make(map[string]Series),
	}
}

// GetSeries returns the memoized series for (metric, ticker, period),
// invoking compute at most once per key per cache instance. The ticker is
// normalized before keying, so aliased spellings share one entry, and the
// stored array itself is returned on every call.
func (c *Cache) GetSeries(metric domain.Metric, ticker string, period int, compute func() Series) Series {
	key := seriesKey{metric: metric, ticker: domain.NormalizeTicker(ticker), period: period}
	if s, ok := c.series[key]; ok {
		return s
	}
	s := compute()
	c.series[key] = s
	return s
}

// GetCloses memoizes the per-ticker adjusted-close array.
func (c *Cache) GetCloses(ticker string, compute func() Series) Series {
	key := domain.NormalizeTicker(ticker)
	if s, ok := c.closes[key]; ok {
		return s
	}
	s := compute()
	c.closes[key] = s
	return s
}

// GetReturns memoizes the per-ticker one-day return array.
func (c *Cache) GetReturns(ticker string, compute func() Series) Series {
	key := domain.NormalizeTicker(ticker)
	if s, ok := c.returns[key]; ok {
		return s
	}
	s := compute()
	c.returns[key] = s
	return s
}
