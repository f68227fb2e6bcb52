package indicators

// smallDrawdownWindow is the boundary between the direct O(n*p) scan and the
// incremental peak-tracking algorithm. Both produce identical output; the
// incremental path just avoids the quadratic scan for large windows.
const smallDrawdownWindow = 50

// RollingMaxDrawdown computes the worst peak-to-trough drawdown inside each
// window of p values, reported as a positive fraction. A window touching an
// unset value yields Unset.
func RollingMaxDrawdown(v Series, p int) Series {
	if p < 1 {
		return NewSeries(len(v))
	}
	if p <= smallDrawdownWindow {
		return rollingMaxDrawdownDirect(v, p)
	}
	return rollingMaxDrawdownIncremental(v, p)
}

// rollingMaxDrawdownDirect rescans the full window at every position.
func rollingMaxDrawdownDirect(v Series, p int) Series {
	out := NewSeries(len(v))
	for i := p - 1; i < len(v); i++ {
		dd, _, _, ok := windowMaxDrawdown(v, i-p+1, i)
		if ok {
			out[i] = dd
		}
	}
	return out
}

// windowMaxDrawdown scans v[start..end] and returns the worst drawdown, the
// prefix-peak index and trough index realizing it, and whether the window was
// clean of unset values.
func windowMaxDrawdown(v Series, start, end int) (dd float64, peakIdx, troughIdx int, ok bool) {
	peak := 0.0
	pIdx := start
	peakIdx, troughIdx = start, start
	for j := start; j <= end; j++ {
		x := v[j]
		if !IsSet(x) {
			return 0, 0, 0, false
		}
		if j == start || x >= peak {
			peak = x
			pIdx = j
		}
		if peak > 0 {
			if d := (peak - x) / peak; d > dd {
				dd = d
				peakIdx = pIdx
				troughIdx = j
			}
		}
	}
	return dd, peakIdx, troughIdx, true
}

// rollingMaxDrawdownIncremental tracks the window peak and the best
// peak/trough pair incrementally, falling back to a full window recomputation
// whenever the tracked pair (or the peak) slides out of the window, an unset
// value passes through, or a step counter reaches max(p, 100). The periodic
// rebuild bounds float drift without changing any output.
func rollingMaxDrawdownIncremental(v Series, p int) Series {
	out := NewSeries(len(v))
	rebuildEvery := p
	if rebuildEvery < 100 {
		rebuildEvery = 100
	}

	bad := 0 // unset values inside the current window
	needRebuild := true
	steps := 0
	var best float64
	var peakIdx, bestPeakIdx, bestTroughIdx int

	for i := 0; i < len(v); i++ {
		if !IsSet(v[i]) {
			bad++
		}
		if i >= p && !IsSet(v[i-p]) {
			bad--
		}
		if i < p-1 {
			continue
		}
		start := i - p + 1
		if bad > 0 {
			needRebuild = true
			continue
		}
		if !needRebuild {
			if steps >= rebuildEvery || peakIdx < start || bestPeakIdx < start || bestTroughIdx < start {
				needRebuild = true
			}
		}
		if needRebuild {
			best, bestPeakIdx, bestTroughIdx, _ = windowMaxDrawdown(v, start, i)
			peakIdx = windowPeakIndex(v, start, i)
			needRebuild = false
			steps = 0
		} else {
			if v[i] >= v[peakIdx] {
				peakIdx = i
			}
			if v[peakIdx] > 0 {
				if d := (v[peakIdx] - v[i]) / v[peakIdx]; d > best {
					best = d
					bestPeakIdx = peakIdx
					bestTroughIdx = i
				}
			}
			steps++
		}
		out[i] = best
	}
	return out
}

// windowPeakIndex returns the index of the window maximum, preferring the
// later index on ties so the peak stays valid as the window slides.
func windowPeakIndex(v Series, start, end int) int {
	idx := start
	for j := start + 1; j <= end; j++ {
		if v[j] >= v[idx] {
			idx = j
		}
	}
	return idx
}
