package collect

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"treequant/internal/domain"
	"treequant/internal/tree"
)

func position(id string, tickers ...string) *tree.Node {
	return &tree.Node{ID: id, Kind: tree.KindPosition, Position: &tree.PositionSpec{Tickers: tickers}}
}

func gate(id string, conds []tree.Condition, then, els *tree.Node) *tree.Node {
	n := &tree.Node{ID: id, Kind: tree.KindIndicator, Gate: &tree.GateSpec{Conditions: conds}}
	n.SetChildren(tree.SlotThen, []*tree.Node{then})
	n.SetChildren(tree.SlotElse, []*tree.Node{els})
	return n
}

func basic(id string, kids ...*tree.Node) *tree.Node {
	n := &tree.Node{ID: id, Kind: tree.KindBasic, Weighting: tree.Weighting{Mode: tree.WeightEqual}}
	n.SetChildren(tree.SlotNext, kids)
	return n
}

func call(id, target string) *tree.Node {
	return &tree.Node{ID: id, Kind: tree.KindCall, Call: &tree.CallSpec{TargetID: target}}
}

func cond(ticker string, metric domain.Metric, window int) tree.Condition {
	return tree.Condition{Ticker: ticker, Metric: metric, Window: window, Op: tree.CmpGT}
}

func hasError(errs []ValidationError, nodeID, field, substr string) bool {
	for _, e := range errs {
		if e.NodeID == nodeID && e.Field == field && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestCollectTickersAndLookback(t *testing.T) {
	root := gate("g",
		[]tree.Condition{cond("spy", domain.MetricRSI, 10)},
		position("p1", "QQQ"),
		position("p2", "TLT/IEF"),
	)
	got := Collect(root, nil)
	wantTickers := []string{"IEF", "QQQ", "SPY", "TLT"}
	if !reflect.DeepEqual(got.Tickers, wantTickers) {
		t.Errorf("Tickers = %v, want %v", got.Tickers, wantTickers)
	}
	// RSI needs one extra point to seed its first gain/loss pair.
	if got.MaxLookback != 11 {
		t.Errorf("MaxLookback = %d, want 11", got.MaxLookback)
	}
	if len(got.Errors) != 0 {
		t.Errorf("Errors = %v, want none", got.Errors)
	}
	if ref := got.FirstUse["SPY"]; ref.NodeID != "g" || ref.Field != "conditions" {
		t.Errorf("FirstUse[SPY] = %+v", ref)
	}
}

func TestLookbackMonotonicity(t *testing.T) {
	base := func(window, forDays int) int {
		c := cond("SPY", domain.MetricSMA, window)
		c.ForDays = forDays
		root := gate("g", []tree.Condition{c}, position("p", "SPY"), nil)
		return Collect(root, nil).MaxLookback
	}
	prev := base(5, 1)
	for w := 6; w <= 20; w++ {
		cur := base(w, 1)
		if cur < prev {
			t.Fatalf("lookback decreased from %d to %d when window grew to %d", prev, cur, w)
		}
		prev = cur
	}
	if base(10, 4) != base(10, 1)+3 {
		t.Errorf("forDays=4 lookback = %d, want %d", base(10, 4), base(10, 1)+3)
	}
}

func TestWindowlessLookback(t *testing.T) {
	// Fixed-horizon momentum ignores the window field entirely.
	root := gate("g",
		[]tree.Condition{cond("SPY", domain.MetricMom13612W, 0)},
		position("p", "SPY"), nil)
	got := Collect(root, nil)
	if got.MaxLookback != 12*21+1 {
		t.Errorf("MaxLookback = %d, want %d", got.MaxLookback, 12*21+1)
	}
	if len(got.Errors) != 0 {
		t.Errorf("windowless metric with window 0 produced errors: %v", got.Errors)
	}
}

func TestCallResolution(t *testing.T) {
	lib := Library{"hedge": gate("h",
		[]tree.Condition{cond("VIX", domain.MetricSMA, 20)},
		position("hp", "GLD"), nil)}
	root := basic("root", call("c1", "hedge"), call("c2", "hedge"))
	got := Collect(root, lib)
	if len(got.Errors) != 0 {
		t.Fatalf("Errors = %v, want none", got.Errors)
	}
	want := []string{"GLD", "VIX"}
	if !reflect.DeepEqual(got.Tickers, want) {
		t.Errorf("Tickers = %v, want %v", got.Tickers, want)
	}
	// Sibling instantiations get fresh ids, so first use points at the first.
	if ref := got.FirstUse["VIX"]; ref.NodeID != "h@1" {
		t.Errorf("FirstUse[VIX].NodeID = %q, want h@1", ref.NodeID)
	}
}

func TestCallUnresolved(t *testing.T) {
	got := Collect(call("c", "missing"), nil)
	if !hasError(got.Errors, "c", "call", "not found") {
		t.Errorf("Errors = %v, want unresolved call error", got.Errors)
	}
}

func TestCallCycleSafety(t *testing.T) {
	// Self-reference.
	self := Library{"a": basic("a-root", call("a-call", "a"))}
	got := Collect(call("entry", "a"), self)
	if !hasError(got.Errors, "a-call@1", "call", "cycle") {
		t.Errorf("self-cycle Errors = %v", got.Errors)
	}

	// Mutual reference must also terminate.
	mutual := Library{
		"a": basic("a-root", call("a-call", "b")),
		"b": basic("b-root", call("b-call", "a")),
	}
	got = Collect(call("entry", "a"), mutual)
	found := false
	for _, e := range got.Errors {
		if strings.Contains(e.Message, "cycle") {
			found = true
		}
	}
	if !found {
		t.Errorf("mutual-cycle Errors = %v, want a cycle error", got.Errors)
	}
}

func TestValidationRules(t *testing.T) {
	pct := func(x float64) *float64 { return &x }

	missingTicker := gate("mt", []tree.Condition{cond("", domain.MetricSMA, 10)}, position("p", "SPY"), nil)

	badWindow := gate("bw", []tree.Condition{cond("SPY", domain.MetricSMA, 0)}, position("p", "SPY"), nil)

	badPick := &tree.Node{ID: "fn", Kind: tree.KindFunction,
		Function: &tree.FunctionSpec{Metric: domain.MetricRSI, Window: 10, Pick: 3}}
	badPick.SetChildren(tree.SlotNext, []*tree.Node{position("fp1", "SPY"), position("fp2", "QQQ")})

	nanPick := &tree.Node{ID: "fnan", Kind: tree.KindFunction,
		Function: &tree.FunctionSpec{Metric: domain.MetricRSI, Window: 10, Pick: math.NaN()}}
	nanPick.SetChildren(tree.SlotNext, []*tree.Node{position("fp", "SPY")})

	noWeight := basic("nw", position("nwp", "SPY"))
	noWeight.Weighting = tree.Weighting{Mode: tree.WeightDefined}

	overCap := basic("oc", position("ocp", "SPY"))
	overCap.Weighting = tree.Weighting{Mode: tree.WeightCapped, Fallback: "BIL"}
	overCap.Children(tree.SlotNext)[0].Weight = pct(150)

	noFallback := basic("nf", position("nfp", "SPY"))
	noFallback.Weighting = tree.Weighting{Mode: tree.WeightCapped}
	noFallback.Children(tree.SlotNext)[0].Weight = pct(50)

	badVol := basic("bv", position("bvp", "SPY"))
	badVol.Weighting = tree.Weighting{Mode: tree.WeightInverse}

	badScaling := &tree.Node{ID: "sc", Kind: tree.KindScaling,
		Scaling: &tree.ScalingSpec{Metric: domain.MetricRSI, Window: 0, Low: 30, High: 70}}
	badScaling.SetChildren(tree.SlotThen, []*tree.Node{position("sp1", "SPY")})
	badScaling.SetChildren(tree.SlotElse, []*tree.Node{position("sp2", "BIL")})

	cases := []struct {
		name   string
		root   *tree.Node
		nodeID string
		field  string
		substr string
	}{
		{"condition missing ticker", missingTicker, "mt", "conditions", "missing a ticker"},
		{"window below one", badWindow, "bw", "conditions", "window"},
		{"pick exceeds children", badPick, "fn", "pick", "exceeds"},
		{"pick not finite", nanPick, "fnan", "pick", "finite"},
		{"defined weight missing", noWeight, "nwp", "weight", "percentage"},
		{"capped weight over 100", overCap, "ocp", "weight", "exceed"},
		{"capped fallback missing", noFallback, "nf", "fallback", "fallback"},
		{"volatility window missing", badVol, "bv", "volWindow", "window"},
		{"scaling ticker missing", badScaling, "sc", "scaleTicker", "ticker"},
		{"scaling window invalid", badScaling, "sc", "scaleWindow", "window"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Collect(tc.root, nil)
			if !hasError(got.Errors, tc.nodeID, tc.field, tc.substr) {
				t.Errorf("Errors = %v, want one at (%s, %s) containing %q",
					got.Errors, tc.nodeID, tc.field, tc.substr)
			}
		})
	}
}

func TestTickerPasses(t *testing.T) {
	capped := basic("cw", position("cp", "UPRO"))
	capped.Weighting = tree.Weighting{Mode: tree.WeightCapped, Fallback: "BIL"}
	w := 40.0
	capped.Children(tree.SlotNext)[0].Weight = &w

	root := gate("g",
		[]tree.Condition{cond("SPY/SHY", domain.MetricCumulativeReturn, 60)},
		capped,
		position("else", "GLD"),
	)

	if got, want := PositionTickers(root, nil), []string{"BIL", "GLD", "UPRO"}; !reflect.DeepEqual(got, want) {
		t.Errorf("PositionTickers = %v, want %v", got, want)
	}
	if got, want := IndicatorTickers(root, nil), []string{"SHY", "SPY"}; !reflect.DeepEqual(got, want) {
		t.Errorf("IndicatorTickers = %v, want %v", got, want)
	}
	if got, want := AllTickers(root, nil), []string{"BIL", "GLD", "SHY", "SPY", "UPRO"}; !reflect.DeepEqual(got, want) {
		t.Errorf("AllTickers = %v, want %v", got, want)
	}
}

func TestMalformedRatioStaysWhole(t *testing.T) {
	root := gate("g",
		[]tree.Condition{cond("SPY/TLT/IEF", domain.MetricSMA, 5)},
		position("p", "QQQ"),
		nil,
	)
	got := Collect(root, nil)
	// A double-slash ticker is not a ratio; it collects as one (unknown)
	// ticker so the engine and collector agree on what data it needs.
	wantTickers := []string{"QQQ", "SPY/TLT/IEF"}
	if !reflect.DeepEqual(got.Tickers, wantTickers) {
		t.Errorf("Tickers = %v, want %v", got.Tickers, wantTickers)
	}
}

func TestCollectNilRoot(t *testing.T) {
	got := Collect(nil, nil)
	if len(got.Tickers) != 0 || got.MaxLookback != 0 || len(got.Errors) != 0 {
		t.Errorf("Collect(nil) = %+v, want empty", got)
	}
}
