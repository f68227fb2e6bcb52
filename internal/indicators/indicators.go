package indicators

import "math"

// ---------------------------------------------------------------------------
// Moving averages
// ---------------------------------------------------------------------------

// RollingSMA computes a simple moving average over windows of p values. An
// invalidation counter tracks unset values inside the window, so the output
// recovers on its own once the bad value ages out.
func RollingSMA(v Series, p int) Series {
	out := NewSeries(len(v))
	if p < 1 {
		return out
	}
	sum := 0.0
	bad := 0
	for i := range v {
		if IsSet(v[i]) {
			sum += v[i]
		} else {
			bad++
		}
		if i >= p {
			if IsSet(v[i-p]) {
				sum -= v[i-p]
			} else {
				bad--
			}
		}
		if i >= p-1 && bad == 0 {
			out[i] = sum / float64(p)
		}
	}
	return out
}

// RollingEMA computes an exponential moving average with alpha = 2/(p+1),
// seeded by averaging the first p valid values. The running state resets
// whenever an unset input is encountered.
func RollingEMA(v Series, p int) Series {
	out := NewSeries(len(v))
	if p < 1 {
		return out
	}
	alpha := 2.0 / (float64(p) + 1.0)
	var ema, seedSum float64
	seedCount := 0
	seeded := false
	for i, x := range v {
		if !IsSet(x) {
			seeded = false
			seedSum, seedCount = 0, 0
			continue
		}
		if !seeded {
			seedSum += x
			seedCount++
			if seedCount == p {
				ema = seedSum / float64(p)
				seeded = true
				out[i] = ema
			}
			continue
		}
		ema = alpha*x + (1-alpha)*ema
		out[i] = ema
	}
	return out
}

// ---------------------------------------------------------------------------
// RSI
// ---------------------------------------------------------------------------

// RollingRSI computes Wilder's RSI over p periods: seeded by the average gain
// and loss over the first p deltas, then recursively smoothed. Zero average
// loss gives RS = infinity, reported as RSI 100. State resets on unset input.
func RollingRSI(v Series, p int) Series {
	out := NewSeries(len(v))
	if p < 1 {
		return out
	}
	var avgGain, avgLoss, gainSum, lossSum float64
	seedCount := 0
	seeded := false
	for i := 1; i < len(v); i++ {
		if !IsSet(v[i]) || !IsSet(v[i-1]) {
			seeded = false
			gainSum, lossSum, seedCount = 0, 0, 0
			continue
		}
		delta := v[i] - v[i-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		if !seeded {
			gainSum += gain
			lossSum += loss
			seedCount++
			if seedCount == p {
				avgGain = gainSum / float64(p)
				avgLoss = lossSum / float64(p)
				seeded = true
				out[i] = rsiValue(avgGain, avgLoss)
			}
			continue
		}
		avgGain = (avgGain*float64(p-1) + gain) / float64(p)
		avgLoss = (avgLoss*float64(p-1) + loss) / float64(p)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ---------------------------------------------------------------------------
// Dispersion
// ---------------------------------------------------------------------------

// RollingStdDev computes the rolling population standard deviation of raw
// values scaled by 100, the convention used for returns-percentage stats.
func RollingStdDev(v Series, p int) Series {
	return rollingStd(v, p, 100)
}

// RollingStdDevPrice is the unscaled variant for raw price dispersion.
func RollingStdDevPrice(v Series, p int) Series {
	return rollingStd(v, p, 1)
}

func rollingStd(v Series, p int, scale float64) Series {
	out := NewSeries(len(v))
	if p < 1 {
		return out
	}
	sum, sumSq := 0.0, 0.0
	bad := 0
	for i := range v {
		if IsSet(v[i]) {
			sum += v[i]
			sumSq += v[i] * v[i]
		} else {
			bad++
		}
		if i >= p {
			if IsSet(v[i-p]) {
				sum -= v[i-p]
				sumSq -= v[i-p] * v[i-p]
			} else {
				bad--
			}
		}
		if i >= p-1 && bad == 0 {
			mean := sum / float64(p)
			variance := sumSq/float64(p) - mean*mean
			if variance < 0 {
				variance = 0 // float cancellation
			}
			out[i] = math.Sqrt(variance) * scale
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Returns over fixed windows
// ---------------------------------------------------------------------------

// RollingCumulativeReturn computes (end-start)/start over a fixed window of p
// days. Only the endpoints participate, so a single interior gap does not
// invalidate the value.
func RollingCumulativeReturn(v Series, p int) Series {
	out := NewSeries(len(v))
	if p < 1 {
		return out
	}
	for i := p; i < len(v); i++ {
		if IsSet(v[i]) && IsSet(v[i-p]) && v[i-p] != 0 {
			out[i] = (v[i] - v[i-p]) / v[i-p]
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Fixed-horizon momentum (no user-configurable window)
// ---------------------------------------------------------------------------

// Hard-coded trading-day offsets for the 1/3/6/12-month horizons.
var momentumOffsets = [4]int{21, 63, 126, 252}

func horizonReturns(v Series, i int) (r [4]float64, ok bool) {
	if !IsSet(v[i]) {
		return r, false
	}
	for k, off := range momentumOffsets {
		if i-off < 0 {
			return r, false
		}
		base := v[i-off]
		if !IsSet(base) || base == 0 {
			return r, false
		}
		r[k] = v[i]/base - 1
	}
	return r, true
}

// Momentum13612Weighted computes (12*r1 + 4*r3 + 2*r6 + r12)/19 over the
// fixed 21/63/126/252-day horizons.
func Momentum13612Weighted(v Series) Series {
	out := NewSeries(len(v))
	for i := range v {
		if r, ok := horizonReturns(v, i); ok {
			out[i] = (12*r[0] + 4*r[1] + 2*r[2] + r[3]) / 19
		}
	}
	return out
}

// Momentum13612Unweighted computes the plain mean of the four horizon
// returns.
func Momentum13612Unweighted(v Series) Series {
	out := NewSeries(len(v))
	for i := range v {
		if r, ok := horizonReturns(v, i); ok {
			out[i] = (r[0] + r[1] + r[2] + r[3]) / 4
		}
	}
	return out
}

// SMAMomentum13 computes 13*P0 / sum(P0, P-21, ..., P-252) - 1, the SMA-based
// momentum over thirteen monthly samples.
func SMAMomentum13(v Series) Series {
	out := NewSeries(len(v))
	for i := 12 * 21; i < len(v); i++ {
		sum := 0.0
		ok := true
		for k := 0; k <= 12; k++ {
			x := v[i-21*k]
			if !IsSet(x) {
				ok = false
				break
			}
			sum += x
		}
		if ok && sum != 0 && IsSet(v[i]) {
			out[i] = 13*v[i]/sum - 1
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Drawdown from all-time high
// ---------------------------------------------------------------------------

// DrawdownFromATH computes the drawdown from the running all-time high,
// using the full history from the series start. The high persists across
// gaps; gap positions themselves are unset.
func DrawdownFromATH(v Series) Series {
	out := NewSeries(len(v))
	ath := Unset
	for i, x := range v {
		if !IsSet(x) {
			continue
		}
		if !IsSet(ath) || x > ath {
			ath = x
		}
		if ath > 0 {
			out[i] = (ath - x) / ath
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Aroon
// ---------------------------------------------------------------------------

// RollingAroonUp computes Aroon-up over p periods: 100*(p - daysSinceHigh)/p,
// scanning a window of p+1 values with ties resolved toward the later index.
func RollingAroonUp(v Series, p int) Series {
	return rollingAroon(v, p, true)
}

// RollingAroonDown computes Aroon-down over p periods against the window low.
func RollingAroonDown(v Series, p int) Series {
	return rollingAroon(v, p, false)
}

// RollingAroonOsc computes Aroon-up minus Aroon-down.
func RollingAroonOsc(v Series, p int) Series {
	up := rollingAroon(v, p, true)
	down := rollingAroon(v, p, false)
	out := NewSeries(len(v))
	for i := range v {
		if IsSet(up[i]) && IsSet(down[i]) {
			out[i] = up[i] - down[i]
		}
	}
	return out
}

func rollingAroon(v Series, p int, high bool) Series {
	out := NewSeries(len(v))
	if p < 1 {
		return out
	}
	for i := p; i < len(v); i++ {
		extremeIdx := -1
		extreme := 0.0
		ok := true
		for j := i - p; j <= i; j++ {
			x := v[j]
			if !IsSet(x) {
				ok = false
				break
			}
			// >= / <= keeps the later index on ties.
			if extremeIdx < 0 || (high && x >= extreme) || (!high && x <= extreme) {
				extreme = x
				extremeIdx = j
			}
		}
		if ok {
			out[i] = 100 * float64(p-(i-extremeIdx)) / float64(p)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// MACD / PPO histograms (fixed 12/26/9)
// ---------------------------------------------------------------------------

// MACDHistogram computes the MACD histogram at the fixed 12/26/9 periods:
// MACD line minus its 9-period signal EMA.
func MACDHistogram(v Series) Series {
	return oscillatorHistogram(v, false)
}

// PPOHistogram computes the PPO histogram at the fixed 12/26/9 periods. PPO
// is the percentage form of MACD: 100*(EMA12-EMA26)/EMA26.
func PPOHistogram(v Series) Series {
	return oscillatorHistogram(v, true)
}

func oscillatorHistogram(v Series, percentage bool) Series {
	fast := RollingEMA(v, 12)
	slow := RollingEMA(v, 26)
	line := NewSeries(len(v))
	for i := range v {
		if !IsSet(fast[i]) || !IsSet(slow[i]) {
			continue
		}
		if percentage {
			if slow[i] == 0 {
				continue
			}
			line[i] = 100 * (fast[i] - slow[i]) / slow[i]
		} else {
			line[i] = fast[i] - slow[i]
		}
	}
	signal := RollingEMA(line, 9)
	out := NewSeries(len(v))
	for i := range v {
		if IsSet(line[i]) && IsSet(signal[i]) {
			out[i] = line[i] - signal[i]
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Trend clarity (rolling R²)
// ---------------------------------------------------------------------------

// RollingTrendClarity regresses the value on its window index over p points
// and reports r-squared scaled by 100. A flat window (zero value variance)
// reports 0.
func RollingTrendClarity(v Series, p int) Series {
	out := NewSeries(len(v))
	if p < 2 {
		return out
	}
	// The x axis is always 0..p-1, so its moments are constant.
	n := float64(p)
	meanX := (n - 1) / 2
	varX := (n*n - 1) / 12
	for i := p - 1; i < len(v); i++ {
		sumY, sumXY := 0.0, 0.0
		ok := true
		for j := 0; j < p; j++ {
			y := v[i-p+1+j]
			if !IsSet(y) {
				ok = false
				break
			}
			sumY += y
			sumXY += float64(j) * y
		}
		if !ok {
			continue
		}
		meanY := sumY / n
		cov := sumXY/n - meanX*meanY
		sumYY := 0.0
		for j := 0; j < p; j++ {
			d := v[i-p+1+j] - meanY
			sumYY += d * d
		}
		varY := sumYY / n
		if varY == 0 {
			out[i] = 0
			continue
		}
		r2 := (cov * cov) / (varX * varY)
		out[i] = r2 * 100
	}
	return out
}

// ---------------------------------------------------------------------------
// Ehlers Ultimate Smoother
// ---------------------------------------------------------------------------

// UltimateSmoother applies Ehlers' Ultimate Smoother with coefficients
// derived from the user window and unity DC gain: c1 = (1 - c2 - c3)/4. The
// filter state resets on unset input; the first two values after a reset
// pass through unchanged.
func UltimateSmoother(v Series, p int) Series {
	out := NewSeries(len(v))
	if p < 1 {
		return out
	}
	arg := 1.414 * math.Pi / float64(p)
	a1 := math.Exp(-arg)
	b1 := 2 * a1 * math.Cos(arg)
	c2 := b1
	c3 := -a1 * a1
	c1 := (1 - c2 - c3) / 4

	var us1, us2, v1, v2 float64
	warm := 0 // values seen since the last reset
	for i, x := range v {
		if !IsSet(x) {
			warm = 0
			continue
		}
		var us float64
		if warm < 2 {
			us = x
		} else {
			us = (1-c1)*x + (2*c1-c2)*v1 - (c1+c3)*v2 + c2*us1 + c3*us2
		}
		us2, us1 = us1, us
		v2, v1 = v1, x
		warm++
		out[i] = us
	}
	return out
}
