package indicators

import "treequant/internal/domain"

// Fixed lookbacks for the windowless metrics, in trading days. The momentum
// family needs the full 12-month offset plus the anchor day; the all-time
// drawdown has no bounded window, so one year of seed history is required
// before its signal is considered usable.
const (
	momentumLookback = 12*21 + 1
	athLookback      = 252
	macdLookback     = 26 + 9
)

// Windowless reports whether a metric ignores the user-supplied window.
func Windowless(m domain.Metric) bool {
	switch m {
	case domain.MetricPrice, domain.MetricMom13612W, domain.MetricMom13612U,
		domain.MetricSMAMomentum13, domain.MetricDrawdownATH,
		domain.MetricMACDHist, domain.MetricPPOHist:
		return true
	}
	return false
}

// Lookback returns the number of trading days of history a metric needs
// before it produces its first value. Windowless metrics contribute their
// own fixed lookback regardless of the window argument.
func Lookback(m domain.Metric, window int) int {
	switch m {
	case domain.MetricPrice:
		return 1
	case domain.MetricMom13612W, domain.MetricMom13612U, domain.MetricSMAMomentum13:
		return momentumLookback
	case domain.MetricDrawdownATH:
		return athLookback
	case domain.MetricMACDHist, domain.MetricPPOHist:
		return macdLookback
	case domain.MetricRSI, domain.MetricCumulativeReturn, domain.MetricSMAReturns,
		domain.MetricStdDevReturns, domain.MetricAroonUp, domain.MetricAroonDown,
		domain.MetricAroonOsc:
		// These consume one-day deltas or a window-plus-anchor scan.
		return window + 1
	case domain.MetricUltimateSmoother:
		return window + 2
	default:
		// SMA, EMA, stddev of prices, windowed drawdown, trend clarity.
		return window
	}
}
