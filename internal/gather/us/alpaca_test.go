package us

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"treequant/internal/gather"
	"treequant/internal/util"
)

// flakyBarsClient fails its first failures calls, then serves bars.
type flakyBarsClient struct {
	failures int
	calls    int
	bars     map[string][]marketdata.Bar
}

func (c *flakyBarsClient) GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, errors.New("transient api error")
	}
	return c.bars, nil
}

func testGatherer(client barsClient) *DailyBarGatherer {
	return &DailyBarGatherer{
		client:        client,
		limiter:       util.NewRateLimiter(600000),
		retryAttempts: 3,
	}
}

func TestSplitBatches(t *testing.T) {
	got := splitBatches([]string{"A", "B", "C", "D", "E"}, 2)
	if len(got) != 3 {
		t.Fatalf("splitBatches produced %d batches, want 3", len(got))
	}
	if len(got[2]) != 1 || got[2][0] != "E" {
		t.Errorf("last batch = %v, want [E]", got[2])
	}
}

func TestNormalizeSymbols(t *testing.T) {
	got := normalizeSymbols([]string{"spy", "SPY", " qqq ", ""})
	want := []string{"SPY", "QQQ"}
	if len(got) != len(want) {
		t.Fatalf("normalizeSymbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("normalizeSymbols[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFetchBatchRetriesTransientError(t *testing.T) {
	day := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)
	client := &flakyBarsClient{
		failures: 1,
		bars:     map[string][]marketdata.Bar{"SPY": {{Timestamp: day, Close: 100}}},
	}
	g := testGatherer(client)

	window := gather.DateRange{Start: day.AddDate(0, -1, 0), End: day}
	bars, err := g.fetchBatch(context.Background(), []string{"SPY"}, window)
	if err != nil {
		t.Fatalf("fetchBatch returned error after a single transient failure: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("fetchBatch produced %d bars, want 1", len(bars))
	}
	// One failed raw call, one retried raw call, one adjusted call.
	if client.calls != 3 {
		t.Errorf("client calls = %d, want 3", client.calls)
	}
}

func TestFetchBatchExhaustsRetries(t *testing.T) {
	client := &flakyBarsClient{failures: 100}
	g := testGatherer(client)

	window := gather.DateRange{End: time.Now()}
	if _, err := g.fetchBatch(context.Background(), []string{"SPY"}, window); err == nil {
		t.Fatal("fetchBatch succeeded despite a persistently failing API")
	}
	if client.calls != g.retryAttempts {
		t.Errorf("client calls = %d, want %d", client.calls, g.retryAttempts)
	}
}

func TestBarsRequest(t *testing.T) {
	window := gather.DateRange{
		Start: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	req := barsRequest(window, marketdata.All)
	if !req.Start.Equal(window.Start) || !req.End.Equal(window.End) {
		t.Errorf("request range = %v..%v, want %v..%v", req.Start, req.End, window.Start, window.End)
	}
	if req.Adjustment != marketdata.All || req.TimeFrame != marketdata.OneDay {
		t.Errorf("request = %+v, want daily bars with full adjustment", req)
	}
}

func TestMergeAdjusted(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC)
	raw := map[string][]marketdata.Bar{
		"spy": {
			{Timestamp: day1, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10},
			{Timestamp: day2, Open: 100, High: 102, Low: 100, Close: 102, Volume: 20},
		},
	}
	adjusted := map[string][]marketdata.Bar{
		"SPY": {
			{Timestamp: day1, Close: 50}, // post-split adjustment halves history
		},
	}

	bars := mergeAdjusted(raw, adjusted)
	if len(bars) != 2 {
		t.Fatalf("mergeAdjusted produced %d bars, want 2", len(bars))
	}
	bySymbolDay := make(map[string]float64)
	for _, b := range bars {
		if b.Symbol != "SPY" {
			t.Errorf("symbol = %q, want SPY", b.Symbol)
		}
		bySymbolDay[b.Timestamp.Format("2006-01-02")] = b.AdjClose
	}
	if bySymbolDay["2024-03-01"] != 50 {
		t.Errorf("AdjClose on split day = %v, want 50", bySymbolDay["2024-03-01"])
	}
	// No adjusted counterpart falls back to the raw close.
	if bySymbolDay["2024-03-04"] != 102 {
		t.Errorf("AdjClose fallback = %v, want 102", bySymbolDay["2024-03-04"])
	}
}
