// Package us fetches daily US equity bars from the Alpaca market-data API
// for the ticker set a strategy actually requires.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"treequant/internal/domain"
	"treequant/internal/gather"
	"treequant/internal/store"
	"treequant/internal/util"
)

var _ gather.Gatherer = (*DailyBarGatherer)(nil)

// barsClient is the slice of the Alpaca market-data client the gatherer
// needs. Narrowing it keeps the fetch path testable without the network.
type barsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

var _ barsClient = (*marketdata.Client)(nil)

// DailyBarGatherer fetches daily OHLCV bars for a fixed set of symbols via
// the Alpaca market-data API. Each symbol is fetched twice, raw and
// split/dividend adjusted, so that bars carry both the trade-price close and
// the adjusted close the indicator engine needs.
type DailyBarGatherer struct {
	client        barsClient
	store         store.BarWriter
	symbols       []string
	batchSize     int
	maxWorkers    int
	limiter       *util.RateLimiter
	retryAttempts int
	retryDelay    time.Duration
	startDate     string
	apiKey        string
	apiSecret     string
	baseURL       string // live trading API for the calendar
	log           *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer for the given symbols.
func NewDailyBarGatherer(apiKey, apiSecret, dataURL string, s store.BarWriter, symbols []string, batchSize, maxWorkers, rateLimitPerMin int, startDate, baseURL string) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	if batchSize < 1 {
		batchSize = 200
	}
	if maxWorkers < 1 {
		maxWorkers = 4
	}
	if rateLimitPerMin < 1 {
		rateLimitPerMin = 200
	}

	return &DailyBarGatherer{
		client:        marketdata.NewClient(opts),
		store:         s,
		symbols:       normalizeSymbols(symbols),
		batchSize:     batchSize,
		maxWorkers:    maxWorkers,
		limiter:       util.NewRateLimiter(rateLimitPerMin),
		retryAttempts: 3,
		retryDelay:    2 * time.Second,
		startDate:     startDate,
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		baseURL:       baseURL,
		log:           slog.Default().With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches bars for every configured symbol and writes them to the store.
// Failed batches are logged and skipped; the first store write error aborts
// the run.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}
	end, err := LatestFinishedTradingDay(g.apiKey, g.apiSecret, g.baseURL)
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}
	window := gather.DateRange{Start: start, End: end}

	batches := splitBatches(g.symbols, g.batchSize)
	g.log.Info("starting us-daily",
		"symbols", len(g.symbols),
		"batches", len(batches),
		"start", g.startDate,
		"end", end.Format("2006-01-02"),
	)

	batchCh := make(chan []string, len(batches))
	for _, b := range batches {
		batchCh <- b
	}
	close(batchCh)

	var (
		wg       sync.WaitGroup
		fetched  atomic.Int64
		failed   atomic.Int64
		writeErr atomic.Value
		runStart = time.Now()
	)

	workers := g.maxWorkers
	if workers > len(batches) {
		workers = len(batches)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batchCh {
				if ctx.Err() != nil {
					return
				}
				bars, err := g.fetchBatch(ctx, batch, window)
				if err != nil {
					failed.Add(int64(len(batch)))
					g.log.Error("batch fetch failed", "symbols", batch, "err", err)
					continue
				}
				if len(bars) == 0 {
					continue
				}
				if err := g.store.WriteBars(ctx, bars); err != nil {
					writeErr.Store(err)
					return
				}
				fetched.Add(int64(len(bars)))
			}
		}()
	}
	wg.Wait()

	if err, ok := writeErr.Load().(error); ok {
		return fmt.Errorf("writing bars: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	g.log.Info("complete",
		"bars", fetched.Load(),
		"failedSymbols", failed.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// fetchBatch fetches one batch of symbols, raw and adjusted, and merges the
// adjusted close into the raw bars.
func (g *DailyBarGatherer) fetchBatch(ctx context.Context, symbols []string, window gather.DateRange) ([]domain.Bar, error) {
	raw, err := g.getBars(ctx, symbols, barsRequest(window, marketdata.Raw))
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars raw: %w", err)
	}
	adjusted, err := g.getBars(ctx, symbols, barsRequest(window, marketdata.All))
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars adjusted: %w", err)
	}
	return mergeAdjusted(raw, adjusted), nil
}

// getBars performs one rate-limited GetMultiBars call, retrying transient
// API failures with backoff.
func (g *DailyBarGatherer) getBars(ctx context.Context, symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error) {
	var bars map[string][]marketdata.Bar
	err := util.Retry(ctx, g.retryAttempts, g.retryDelay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		var callErr error
		bars, callErr = g.client.GetMultiBars(symbols, req)
		return callErr
	})
	return bars, err
}

// barsRequest builds a daily-bar request over the fetch window.
func barsRequest(window gather.DateRange, adj marketdata.Adjustment) marketdata.GetBarsRequest {
	return marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      window.Start,
		End:        window.End,
		Adjustment: adj,
		Feed:       "sip",
	}
}

// mergeAdjusted turns raw per-symbol bars into domain bars, filling AdjClose
// from the adjusted fetch. A raw bar with no adjusted counterpart keeps its
// own close as the adjusted value.
func mergeAdjusted(raw, adjusted map[string][]marketdata.Bar) []domain.Bar {
	type key struct {
		symbol string
		day    string
	}
	adjClose := make(map[key]float64)
	for symbol, bars := range adjusted {
		sym := strings.ToUpper(symbol)
		for _, b := range bars {
			adjClose[key{sym, b.Timestamp.Format("2006-01-02")}] = b.Close
		}
	}

	var out []domain.Bar
	for symbol, bars := range raw {
		sym := strings.ToUpper(symbol)
		for _, b := range bars {
			bar := domain.Bar{
				Symbol:     sym,
				Timestamp:  b.Timestamp,
				Open:       b.Open,
				High:       b.High,
				Low:        b.Low,
				Close:      b.Close,
				AdjClose:   b.Close,
				Volume:     int64(b.Volume),
				TradeCount: int64(b.TradeCount),
				VWAP:       b.VWAP,
			}
			if ac, ok := adjClose[key{sym, b.Timestamp.Format("2006-01-02")}]; ok {
				bar.AdjClose = ac
			}
			out = append(out, bar)
		}
	}
	return out
}

func splitBatches(symbols []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(symbols); i += size {
		end := i + size
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[i:end])
	}
	return out
}

func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		sym := domain.NormalizeTicker(s)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
