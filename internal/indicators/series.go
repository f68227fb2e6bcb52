// Package indicators computes rolling technical indicators over date-aligned
// price series, with a per-run memoization cache and ratio-ticker synthesis.
//
// Numeric contract: a Series marks missing values with Unset (IEEE NaN). Any
// rolling computation whose window touches an unset value emits Unset for
// that position and resumes once the window is clean again. SMA and standard
// deviation self-heal through an invalidation counter as the bad value ages
// out of the window; EMA, RSI, and the Ultimate Smoother reset their running
// state when they encounter an unset input.
package indicators

import "math"

// Series is a date-aligned numeric series. Positions holding Unset carry no
// value; they are never zero.
type Series []float64

// Unset marks a missing or not-yet-computable position in a Series.
var Unset = math.NaN()

// IsSet reports whether x carries a value.
func IsSet(x float64) bool {
	return !math.IsNaN(x)
}

// NewSeries allocates a Series of length n with every position unset.
func NewSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = Unset
	}
	return s
}

// DayOverDayReturns computes simple one-day returns. Position i is unset when
// either endpoint is unset or the prior value is zero.
func DayOverDayReturns(v Series) Series {
	out := NewSeries(len(v))
	for i := 1; i < len(v); i++ {
		if IsSet(v[i]) && IsSet(v[i-1]) && v[i-1] != 0 {
			out[i] = (v[i] - v[i-1]) / v[i-1]
		}
	}
	return out
}
