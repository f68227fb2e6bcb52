// Package metrics converts simulated equity and return series into summary
// risk/return statistics. Every function is a pure transform: no shared
// state, and non-finite or undersized inputs resolve to a defined default
// instead of leaking NaN or Inf into a report.
package metrics

import (
	"math"
	"sort"
	"time"

	"treequant/internal/util"
)

// DayRow is one per-day record from the simulator.
type DayRow struct {
	Date     time.Time
	Return   float64 // net day-over-day return
	Turnover float64 // fraction of the portfolio traded
	Holdings int     // positions held at close
}

// Metrics is the basic equity-curve report.
type Metrics struct {
	CAGR        float64
	MaxDrawdown float64 // negative, equity/peak - 1 at the worst point
	Sharpe      float64
}

// Summary extends Metrics with benchmark-relative and per-day statistics.
type Summary struct {
	Metrics
	Sortino     float64
	Beta        float64
	Treynor     float64
	Calmar      float64
	WinRate     float64
	BestDay     float64
	WorstDay    float64
	AvgTurnover float64
	AvgHoldings float64
}

// MonthlyReturn is one compounded calendar-month bucket.
type MonthlyReturn struct {
	Month  string // "2006-01"
	Return float64
}

// ---------------------------------------------------------------------------
// Basic statistics
// ---------------------------------------------------------------------------

// CAGR annualizes a final equity value over nDays return observations,
// assuming the series started at 1.0. Zero when the inputs cannot support the
// exponent.
func CAGR(finalEquity float64, nDays int) float64 {
	if nDays <= 0 || finalEquity <= 0 || !isFinite(finalEquity) {
		return 0
	}
	return sanitize(math.Pow(finalEquity, float64(util.TradingDaysPerYear)/float64(nDays)) - 1)
}

// MaxDrawdown returns the most negative equity/peak - 1 over the series.
// Zero for an empty or monotone-rising series.
func MaxDrawdown(equity []float64) float64 {
	worst := 0.0
	peak := math.Inf(-1)
	for _, e := range equity {
		if !isFinite(e) {
			continue
		}
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := e/peak - 1; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// Sharpe is sqrt(252) * mean / sample stdev of the daily returns, zero when
// fewer than two observations or zero dispersion.
func Sharpe(returns []float64) float64 {
	mean, std, n := meanStd(returns)
	if n < 2 || std == 0 {
		return 0
	}
	return sanitize(math.Sqrt(util.TradingDaysPerYear) * mean / std)
}

// Sortino annualizes mean return over downside deviation. Positive days
// contribute zero to the downside sum but still count toward n, so a streak
// of gains dilutes the penalty of a single loss.
func Sortino(returns []float64) float64 {
	n := 0
	sum, downSq := 0.0, 0.0
	for _, r := range returns {
		if !isFinite(r) {
			continue
		}
		n++
		sum += r
		if r < 0 {
			downSq += r * r
		}
	}
	if n < 2 {
		return 0
	}
	mean := sum / float64(n)
	downDev := math.Sqrt(downSq / float64(n-1))
	annualDown := downDev * math.Sqrt(util.TradingDaysPerYear)
	if annualDown == 0 {
		return 0
	}
	return sanitize(mean * util.TradingDaysPerYear / annualDown)
}

// Beta is Cov(portfolio, benchmark) / Var(benchmark) over the index-aligned
// overlap of the two return series. Alignment is simple truncation to the
// shorter length, not date matching. Zero when fewer than two overlapping
// points or the benchmark has no variance.
func Beta(portfolio, benchmark []float64) float64 {
	n := len(portfolio)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < 2 {
		return 0
	}
	meanP, meanB := 0.0, 0.0
	for i := 0; i < n; i++ {
		meanP += portfolio[i]
		meanB += benchmark[i]
	}
	meanP /= float64(n)
	meanB /= float64(n)

	cov, varB := 0.0, 0.0
	for i := 0; i < n; i++ {
		dp, db := portfolio[i]-meanP, benchmark[i]-meanB
		cov += dp * db
		varB += db * db
	}
	cov /= float64(n - 1)
	varB /= float64(n - 1)
	if varB == 0 {
		return 0
	}
	return sanitize(cov / varB)
}

// Treynor is the annualized mean portfolio return per unit of beta, at a 0%
// risk-free rate. Zero when beta is exactly zero or undefined.
func Treynor(portfolio, benchmark []float64) float64 {
	beta := Beta(portfolio, benchmark)
	if beta == 0 || len(portfolio) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range portfolio {
		mean += r
	}
	mean /= float64(len(portfolio))
	return sanitize(mean * util.TradingDaysPerYear / beta)
}

// Calmar is CAGR over the magnitude of max drawdown, zero for a drawdown-free
// series.
func Calmar(cagr, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return sanitize(cagr / math.Abs(maxDrawdown))
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

// Compute derives the basic equity-curve metrics. Empty inputs produce the
// zero value.
func Compute(equity, returns []float64) Metrics {
	final := 0.0
	if len(equity) > 0 {
		final = equity[len(equity)-1]
	}
	return Metrics{
		CAGR:        CAGR(final, len(returns)),
		MaxDrawdown: MaxDrawdown(equity),
		Sharpe:      Sharpe(returns),
	}
}

// ComputeSummary derives the full report. benchmark holds the benchmark's
// per-day returns and may be nil or shorter than the portfolio series.
func ComputeSummary(equity, returns []float64, rows []DayRow, benchmark []float64) Summary {
	s := Summary{
		Metrics: Compute(equity, returns),
		Sortino: Sortino(returns),
		Beta:    Beta(returns, benchmark),
		Treynor: Treynor(returns, benchmark),
	}
	s.Calmar = Calmar(s.CAGR, s.MaxDrawdown)

	if len(rows) == 0 {
		return s
	}
	wins := 0
	best, worst := math.Inf(-1), math.Inf(1)
	sumTurnover, sumHoldings := 0.0, 0.0
	for _, row := range rows {
		if row.Return > 0 {
			wins++
		}
		if row.Return > best {
			best = row.Return
		}
		if row.Return < worst {
			worst = row.Return
		}
		sumTurnover += row.Turnover
		sumHoldings += float64(row.Holdings)
	}
	n := float64(len(rows))
	s.WinRate = sanitize(float64(wins) / n)
	s.BestDay = sanitize(best)
	s.WorstDay = sanitize(worst)
	s.AvgTurnover = sanitize(sumTurnover / n)
	s.AvgHoldings = sanitize(sumHoldings / n)
	return s
}

// HoldSeries converts a price series into the equity curve and per-day
// returns of holding the asset throughout. Non-finite prices (gaps in the
// data) are skipped; returns span consecutive finite observations only.
// equity starts at 1.0 and has one more element than returns, or both are
// empty when fewer than two finite prices exist.
func HoldSeries(prices []float64) (equity, returns []float64) {
	prev := math.NaN()
	for _, p := range prices {
		if !isFinite(p) || p <= 0 {
			continue
		}
		if isFinite(prev) {
			r := p/prev - 1
			if len(equity) == 0 {
				equity = append(equity, 1)
			}
			returns = append(returns, r)
			equity = append(equity, equity[len(equity)-1]*(1+r))
		}
		prev = p
	}
	return equity, returns
}

// MonthlyReturns compounds per-day net returns within each calendar month
// and reports product - 1 per bucket, sorted chronologically.
func MonthlyReturns(rows []DayRow) []MonthlyReturn {
	products := make(map[string]float64)
	for _, row := range rows {
		key := util.MonthKey(row.Date)
		p, ok := products[key]
		if !ok {
			p = 1
		}
		products[key] = p * (1 + row.Return)
	}
	out := make([]MonthlyReturn, 0, len(products))
	for key, p := range products {
		out = append(out, MonthlyReturn{Month: key, Return: sanitize(p - 1)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// meanStd returns the mean and sample standard deviation over the finite
// entries of v, with the count used.
func meanStd(v []float64) (mean, std float64, n int) {
	sum := 0.0
	for _, x := range v {
		if !isFinite(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return 0, 0, 0
	}
	mean = sum / float64(n)
	if n < 2 {
		return mean, 0, n
	}
	sq := 0.0
	for _, x := range v {
		if !isFinite(x) {
			continue
		}
		d := x - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(n-1))
	return mean, std, n
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// sanitize maps a non-finite result to the zero default.
func sanitize(x float64) float64 {
	if !isFinite(x) {
		return 0
	}
	return x
}
