package indicators

import (
	"math"
	"testing"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// seriesEqual treats two unset positions as equal and set positions as equal
// within tol.
func seriesEqual(a, b Series, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		switch {
		case !IsSet(a[i]) && !IsSet(b[i]):
		case IsSet(a[i]) && IsSet(b[i]) && approxEqual(a[i], b[i], tol):
		default:
			return false
		}
	}
	return true
}

func TestRollingSMA(t *testing.T) {
	got := RollingSMA(Series{1, 2, 3, 4, 5}, 3)
	want := Series{Unset, Unset, 2, 3, 4}
	if !seriesEqual(got, want, 1e-12) {
		t.Errorf("RollingSMA = %v, want %v", got, want)
	}
}

func TestRollingSMAInvalidationCounter(t *testing.T) {
	// A NaN poisons every window containing it, then the average recovers on
	// its own once the value ages out.
	v := Series{1, 2, Unset, 4, 5, 6, 7}
	got := RollingSMA(v, 3)
	for i := 0; i <= 4; i++ {
		if IsSet(got[i]) {
			t.Errorf("index %d = %v, want unset (window touches NaN)", i, got[i])
		}
	}
	if !approxEqual(got[5], 5, 1e-12) || !approxEqual(got[6], 6, 1e-12) {
		t.Errorf("SMA did not self-heal after NaN: %v", got)
	}
}

func TestRollingEMASeedAndReset(t *testing.T) {
	v := Series{1, 2, 3, 4}
	got := RollingEMA(v, 3)
	if IsSet(got[0]) || IsSet(got[1]) {
		t.Error("EMA emitted values before the seed window filled")
	}
	if !approxEqual(got[2], 2, 1e-12) {
		t.Errorf("EMA seed = %v, want 2 (mean of first 3)", got[2])
	}
	// alpha = 2/(3+1) = 0.5
	if !approxEqual(got[3], 0.5*4+0.5*2, 1e-12) {
		t.Errorf("EMA step = %v, want 3", got[3])
	}

	// A NaN resets the running state entirely: a fresh seed is required.
	v2 := Series{1, 2, 3, Unset, 10, 11, 12, 13}
	got2 := RollingEMA(v2, 3)
	if IsSet(got2[3]) || IsSet(got2[4]) || IsSet(got2[5]) {
		t.Error("EMA emitted values while reseeding after NaN")
	}
	if !approxEqual(got2[6], 11, 1e-12) {
		t.Errorf("EMA reseed = %v, want 11", got2[6])
	}
}

func TestRollingRSISeeding(t *testing.T) {
	closes := Series{44, 44.25, 44.5, 43.75, 44.5, 44.62, 45.12}
	got := RollingRSI(closes, 5)

	// No value before the fifth gain/loss pair is available.
	for i := 0; i < 5; i++ {
		if IsSet(got[i]) {
			t.Errorf("index %d = %v, want unset before seed completes", i, got[i])
		}
	}

	// Wilder's seed: avgGain = (0.25+0.25+0+0.75+0.12)/5, avgLoss = 0.75/5.
	avgGain := (0.25 + 0.25 + 0 + 0.75 + 0.12) / 5
	avgLoss := 0.75 / 5
	rs := avgGain / avgLoss
	want := 100 - 100/(1+rs)
	if !approxEqual(got[5], want, 1e-9) {
		t.Errorf("seeded RSI = %v, want %v", got[5], want)
	}

	// Next value uses the recursive smoothing.
	gain := 45.12 - 44.62
	avgGain = (avgGain*4 + gain) / 5
	avgLoss = (avgLoss * 4) / 5
	want = 100 - 100/(1+avgGain/avgLoss)
	if !approxEqual(got[6], want, 1e-9) {
		t.Errorf("smoothed RSI = %v, want %v", got[6], want)
	}
}

func TestRollingRSIAllGains(t *testing.T) {
	got := RollingRSI(Series{1, 2, 3, 4, 5}, 3)
	if !approxEqual(got[3], 100, 1e-12) {
		t.Errorf("RSI with zero losses = %v, want 100", got[3])
	}
}

func TestRollingStdDevScaling(t *testing.T) {
	v := Series{0.01, 0.03, 0.01, 0.03}
	got := RollingStdDev(v, 2)
	// Population stddev of {0.01, 0.03} is 0.01, scaled by 100.
	if !approxEqual(got[1], 1, 1e-9) {
		t.Errorf("scaled stddev = %v, want 1", got[1])
	}
	raw := RollingStdDevPrice(v, 2)
	if !approxEqual(raw[1], 0.01, 1e-9) {
		t.Errorf("unscaled stddev = %v, want 0.01", raw[1])
	}
}

func TestRollingCumulativeReturn(t *testing.T) {
	v := Series{100, 101, 102, 110}
	got := RollingCumulativeReturn(v, 3)
	if IsSet(got[2]) {
		t.Error("cumulative return emitted before the window start exists")
	}
	if !approxEqual(got[3], 0.10, 1e-12) {
		t.Errorf("cumulative return = %v, want 0.10", got[3])
	}
}

func TestMomentum13612(t *testing.T) {
	// Constant growth of 1% per day makes the horizon returns exact powers.
	n := 300
	v := NewSeries(n)
	for i := 0; i < n; i++ {
		v[i] = math.Pow(1.01, float64(i))
	}
	w := Momentum13612Weighted(v)
	u := Momentum13612Unweighted(v)

	for i := 0; i < 252; i++ {
		if IsSet(w[i]) || IsSet(u[i]) {
			t.Fatalf("momentum at %d defined before all offsets available", i)
		}
	}

	i := 260
	r := [4]float64{}
	for k, off := range [4]int{21, 63, 126, 252} {
		r[k] = math.Pow(1.01, float64(off)) - 1
	}
	wantW := (12*r[0] + 4*r[1] + 2*r[2] + r[3]) / 19
	wantU := (r[0] + r[1] + r[2] + r[3]) / 4
	if !approxEqual(w[i], wantW, 1e-9) {
		t.Errorf("weighted momentum = %v, want %v", w[i], wantW)
	}
	if !approxEqual(u[i], wantU, 1e-9) {
		t.Errorf("unweighted momentum = %v, want %v", u[i], wantU)
	}
}

func TestSMAMomentum13Flat(t *testing.T) {
	// A flat series has momentum exactly 0: 13*P/(13*P) - 1.
	n := 280
	v := NewSeries(n)
	for i := range v {
		v[i] = 42
	}
	got := SMAMomentum13(v)
	if IsSet(got[251]) {
		t.Error("SMA momentum defined before 12 months of history")
	}
	if !approxEqual(got[260], 0, 1e-12) {
		t.Errorf("flat SMA momentum = %v, want 0", got[260])
	}
}

func TestDrawdownFromATH(t *testing.T) {
	v := Series{100, 120, 90, Unset, 130, 110}
	got := DrawdownFromATH(v)
	if !approxEqual(got[0], 0, 1e-12) || !approxEqual(got[1], 0, 1e-12) {
		t.Error("drawdown at a new high should be 0")
	}
	if !approxEqual(got[2], 0.25, 1e-12) {
		t.Errorf("drawdown = %v, want 0.25", got[2])
	}
	if IsSet(got[3]) {
		t.Error("gap position should be unset")
	}
	// The all-time high persists across the gap.
	if !approxEqual(got[5], (130.0-110.0)/130.0, 1e-12) {
		t.Errorf("drawdown after gap = %v", got[5])
	}
}

func TestAroonTieRule(t *testing.T) {
	// Two equal highs: the later index must win (>= scan).
	v := Series{5, 9, 7, 9, 6}
	got := RollingAroonUp(v, 4)
	// Window 0..4, later high at index 3, daysSinceHigh = 1.
	want := 100 * float64(4-1) / 4
	if !approxEqual(got[4], want, 1e-12) {
		t.Errorf("Aroon-up with tie = %v, want %v", got[4], want)
	}

	down := RollingAroonDown(v, 4)
	osc := RollingAroonOsc(v, 4)
	if !approxEqual(osc[4], got[4]-down[4], 1e-12) {
		t.Errorf("Aroon oscillator = %v, want up-down = %v", osc[4], got[4]-down[4])
	}
}

func TestMACDAndPPOHistograms(t *testing.T) {
	n := 120
	v := NewSeries(n)
	for i := range v {
		v[i] = 100 + 10*math.Sin(float64(i)/8)
	}
	macd := MACDHistogram(v)
	ppo := PPOHistogram(v)

	// Both need the slow EMA (26) plus the signal EMA (9) to seed.
	if IsSet(macd[30]) {
		t.Error("MACD histogram defined before the signal line seeds")
	}
	if !IsSet(macd[n-1]) || !IsSet(ppo[n-1]) {
		t.Error("histograms undefined on clean data after warmup")
	}
}

func TestRollingTrendClarity(t *testing.T) {
	// A perfect line has r² of exactly 100; a flat window reports 0.
	line := Series{1, 2, 3, 4, 5, 6}
	got := RollingTrendClarity(line, 4)
	if !approxEqual(got[5], 100, 1e-9) {
		t.Errorf("trend clarity of a line = %v, want 100", got[5])
	}

	flat := Series{3, 3, 3, 3, 3}
	if got := RollingTrendClarity(flat, 4); !approxEqual(got[4], 0, 1e-12) {
		t.Errorf("trend clarity of a flat window = %v, want 0", got[4])
	}
}

func TestUltimateSmootherDCGain(t *testing.T) {
	// Unity DC gain: a constant series passes through unchanged.
	v := NewSeries(50)
	for i := range v {
		v[i] = 77
	}
	got := UltimateSmoother(v, 20)
	for i := range got {
		if !approxEqual(got[i], 77, 1e-9) {
			t.Fatalf("index %d = %v, want 77 (unity DC gain)", i, got[i])
		}
	}
}

func TestRollingMaxDrawdownPaths(t *testing.T) {
	// A 300-point synthetic series with period 80 crosses the small/large
	// algorithm boundary at 50: direct and incremental must agree exactly.
	n := 300
	v := NewSeries(n)
	for i := 0; i < n; i++ {
		v[i] = 100 + 30*math.Sin(float64(i)/11) + 10*math.Cos(float64(i)/3)
	}
	// Sprinkle a gap so the NaN-rebuild path is exercised too.
	v[140] = Unset

	direct := rollingMaxDrawdownDirect(v, 80)
	incremental := rollingMaxDrawdownIncremental(v, 80)
	for i := range v {
		a, b := direct[i], incremental[i]
		if IsSet(a) != IsSet(b) || (IsSet(a) && a != b) {
			t.Fatalf("paths disagree at %d: direct=%v incremental=%v", i, a, b)
		}
	}

	// The public wrapper picks the direct path at the boundary.
	small := RollingMaxDrawdown(v, 50)
	smallDirect := rollingMaxDrawdownDirect(v, 50)
	for i := range v {
		if IsSet(small[i]) != IsSet(smallDirect[i]) || (IsSet(small[i]) && small[i] != smallDirect[i]) {
			t.Fatalf("wrapper output differs from direct at %d", i)
		}
	}
}

func TestRollingMaxDrawdownValues(t *testing.T) {
	v := Series{100, 90, 95, 80, 85}
	got := RollingMaxDrawdown(v, 5)
	// Peak 100 at index 0, trough 80 at index 3.
	if !approxEqual(got[4], 0.20, 1e-12) {
		t.Errorf("max drawdown = %v, want 0.20", got[4])
	}

	rising := Series{1, 2, 3, 4, 5}
	if got := RollingMaxDrawdown(rising, 3); !approxEqual(got[4], 0, 1e-12) {
		t.Errorf("drawdown of a rising series = %v, want 0", got[4])
	}
}
