package indicators

import (
	"treequant/internal/domain"
	"treequant/internal/store"
)

// Engine evaluates indicators against one price database through a per-run
// cache. One engine instance serves one backtest run; independent runs get
// independent engines.
type Engine struct {
	db    *store.PriceDB
	cache *Cache
}

// NewEngine creates an engine over the given price database with a fresh
// cache.
func NewEngine(db *store.PriceDB) *Engine {
	return &Engine{db: db, cache: NewCache()}
}

// AdjCloses returns the adjusted-close series for a plain or ratio ticker.
// Ratio tickers "NUM/DEN" are synthesized as the elementwise division of the
// two underlying adjusted-close arrays; a missing or zero denominator leaves
// that position unset. Unknown tickers yield an all-unset series, so absent
// data degrades to absent signals rather than a failure.
func (e *Engine) AdjCloses(ticker string) Series {
	return e.cache.GetCloses(ticker, func() Series {
		if num, den, ok := domain.SplitRatio(ticker); ok {
			return ratioSeries(e.rawAdjCloses(num), e.rawAdjCloses(den), len(e.db.Dates))
		}
		return e.rawAdjCloses(ticker)
	})
}

func (e *Engine) rawAdjCloses(ticker string) Series {
	if v := e.db.AdjCloses(ticker); v != nil {
		return Series(v)
	}
	return NewSeries(len(e.db.Dates))
}

func ratioSeries(num, den Series, n int) Series {
	out := NewSeries(n)
	for i := 0; i < n && i < len(num) && i < len(den); i++ {
		if IsSet(num[i]) && IsSet(den[i]) && den[i] != 0 {
			out[i] = num[i] / den[i]
		}
	}
	return out
}

// Returns returns the memoized one-day return series for a ticker.
func (e *Engine) Returns(ticker string) Series {
	return e.cache.GetReturns(ticker, func() Series {
		return DayOverDayReturns(e.AdjCloses(ticker))
	})
}

// Metric computes (or returns the cached) indicator series for a ticker.
// All indicator math runs on adjusted closes; window is ignored for the
// windowless metrics.
func (e *Engine) Metric(metric domain.Metric, ticker string, window int) Series {
	return e.cache.GetSeries(metric, ticker, window, func() Series {
		return e.compute(metric, ticker, window)
	})
}

func (e *Engine) compute(metric domain.Metric, ticker string, window int) Series {
	closes := e.AdjCloses(ticker)
	switch metric {
	case domain.MetricPrice:
		return closes
	case domain.MetricSMA:
		return RollingSMA(closes, window)
	case domain.MetricEMA:
		return RollingEMA(closes, window)
	case domain.MetricRSI:
		return RollingRSI(closes, window)
	case domain.MetricStdDevReturns:
		return RollingStdDev(e.Returns(ticker), window)
	case domain.MetricStdDevPrice:
		return RollingStdDevPrice(closes, window)
	case domain.MetricMaxDrawdown:
		return RollingMaxDrawdown(closes, window)
	case domain.MetricCumulativeReturn:
		return RollingCumulativeReturn(closes, window)
	case domain.MetricSMAReturns:
		return RollingSMA(e.Returns(ticker), window)
	case domain.MetricMom13612W:
		return Momentum13612Weighted(closes)
	case domain.MetricMom13612U:
		return Momentum13612Unweighted(closes)
	case domain.MetricSMAMomentum13:
		return SMAMomentum13(closes)
	case domain.MetricDrawdownATH:
		return DrawdownFromATH(closes)
	case domain.MetricAroonUp:
		return RollingAroonUp(closes, window)
	case domain.MetricAroonDown:
		return RollingAroonDown(closes, window)
	case domain.MetricAroonOsc:
		return RollingAroonOsc(closes, window)
	case domain.MetricMACDHist:
		return MACDHistogram(closes)
	case domain.MetricPPOHist:
		return PPOHistogram(closes)
	case domain.MetricTrendClarity:
		return RollingTrendClarity(closes, window)
	case domain.MetricUltimateSmoother:
		return UltimateSmoother(closes, window)
	default:
		return NewSeries(len(closes))
	}
}
