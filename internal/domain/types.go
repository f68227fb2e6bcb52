// Package domain defines the shared leaf types used across the analysis
// engine: daily price bars, markets, and the indicator metric identifiers
// referenced by strategy trees and computed by the indicator engine.
package domain

import (
	"strings"
	"time"
)

// Market identifies a trading market.
type Market string

const (
	MarketUS Market = "us"
)

// Bar represents a single daily OHLCV bar. AdjClose is the split- and
// dividend-adjusted close; indicator math always runs on AdjClose, while
// Close is kept for trade-pricing by downstream consumers.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	AdjClose   float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Metric identifies a technical indicator computable by the indicator
// engine. The string values double as cache-key components and as the
// serialized form inside strategy trees.
type Metric string

const (
	MetricPrice            Metric = "price"
	MetricSMA              Metric = "sma"
	MetricEMA              Metric = "ema"
	MetricRSI              Metric = "rsi"
	MetricStdDevReturns    Metric = "stdDev"
	MetricStdDevPrice      Metric = "stdDevPrice"
	MetricMaxDrawdown      Metric = "maxDrawdown"
	MetricCumulativeReturn Metric = "cumulativeReturn"
	MetricSMAReturns       Metric = "smaReturns"
	MetricMom13612W        Metric = "mom13612W"
	MetricMom13612U        Metric = "mom13612U"
	MetricSMAMomentum13    Metric = "smaMomentum13"
	MetricDrawdownATH      Metric = "drawdownATH"
	MetricAroonUp          Metric = "aroonUp"
	MetricAroonDown        Metric = "aroonDown"
	MetricAroonOsc         Metric = "aroonOsc"
	MetricMACDHist         Metric = "macdHist"
	MetricPPOHist          Metric = "ppoHist"
	MetricTrendClarity     Metric = "trendClarity"
	MetricUltimateSmoother Metric = "ultimateSmoother"
)

// NormalizeTicker maps user-entered ticker text to its canonical uppercase
// form. Whitespace-only input normalizes to the empty string, the system's
// empty-position sentinel.
func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// SplitRatio splits a ratio ticker "NUM/DEN" into its two components. ok is
// false for plain tickers and for malformed inputs with more than one slash,
// which every consumer then treats as an ordinary (unknown) ticker.
func SplitRatio(ticker string) (num, den string, ok bool) {
	i := strings.IndexByte(ticker, '/')
	if i <= 0 || i == len(ticker)-1 {
		return "", "", false
	}
	num, den = ticker[:i], ticker[i+1:]
	if strings.ContainsRune(den, '/') {
		return "", "", false
	}
	return num, den, true
}
