// Command treequant-analyze compiles a strategy tree, validates it, and
// reports the inputs a backtest run needs: the compressed tree, required
// tickers, lookback, and current data coverage from the local price store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"treequant/internal/collect"
	"treequant/internal/config"
	"treequant/internal/domain"
	"treequant/internal/indicators"
	"treequant/internal/metrics"
	"treequant/internal/store"
	"treequant/internal/tree"
	"treequant/internal/util"
)

type signalReport struct {
	Ticker string  `json:"ticker"`
	Metric string  `json:"metric"`
	Window int     `json:"window,omitempty"`
	Value  float64 `json:"value"`
	AsOf   string  `json:"asOf"`
}

type holdingReport struct {
	Ticker      string   `json:"ticker"`
	Days        int      `json:"days"`
	CAGR        float64  `json:"cagr"`
	MaxDrawdown float64  `json:"maxDrawdown"`
	Sharpe      float64  `json:"sharpe"`
	Sortino     float64  `json:"sortino"`
	Beta        *float64 `json:"beta,omitempty"`
	Treynor     *float64 `json:"treynor,omitempty"`
}

type benchmarkReport struct {
	Ticker string `json:"ticker"`
	Days   int    `json:"days"`
}

type report struct {
	Tickers        []string                  `json:"tickers"`
	MaxLookback    int                       `json:"maxLookback"`
	Errors         []collect.ValidationError `json:"errors,omitempty"`
	Stats          tree.CompressionStats     `json:"compression"`
	EmptyStrategy  bool                      `json:"emptyStrategy"`
	LimitingTicker string                    `json:"limitingTicker,omitempty"`
	LimitingPoints int                       `json:"limitingPoints,omitempty"`
	Benchmark      *benchmarkReport          `json:"benchmark,omitempty"`
	Holdings       []holdingReport           `json:"holdings,omitempty"`
	Signals        []signalReport            `json:"signals,omitempty"`
	CompressedTree *tree.Node                `json:"compressedTree,omitempty"`
}

func main() {
	treePath := flag.String("tree", "", "path to the strategy tree JSON")
	storeKind := flag.String("store", "parquet", "price store backend: parquet or sqlite")
	withSignals := flag.Bool("signals", true, "evaluate each condition's indicator at the latest bar")
	flag.Parse()

	if *treePath == "" {
		log.Fatal("missing -tree")
	}

	cfgPath := "config/treequant.yaml"
	if p := os.Getenv("TREEQUANT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level))

	data, err := os.ReadFile(*treePath)
	if err != nil {
		log.Fatalf("failed to read tree: %v", err)
	}
	var root tree.Node
	if err := json.Unmarshal(data, &root); err != nil {
		log.Fatalf("failed to parse tree: %v", err)
	}

	lib, err := collect.LoadLibrary(cfg.Storage.LibraryDir)
	if err != nil {
		log.Fatalf("failed to load call-chain library: %v", err)
	}

	compressed, stats := tree.CompressForBacktest(&root)
	inputs := collect.Collect(&root, lib)

	rep := report{
		Tickers:        inputs.Tickers,
		MaxLookback:    inputs.MaxLookback,
		Errors:         inputs.Errors,
		Stats:          stats,
		EmptyStrategy:  compressed == nil,
		CompressedTree: compressed,
	}

	if len(inputs.Tickers) > 0 {
		ctx := context.Background()
		loader, err := openLoader(cfg, *storeKind)
		if err != nil {
			log.Fatalf("failed to open price store: %v", err)
		}

		bench := domain.NormalizeTicker(cfg.Analysis.Benchmark)
		symbols := inputs.Tickers
		if bench != "" && !containsTicker(symbols, bench) {
			symbols = append(append([]string{}, symbols...), bench)
		}

		end := time.Now()
		start := util.LookbackStart(end, inputs.MaxLookback+cfg.Analysis.MinLookbackPad)
		bars, err := loader.LoadBars(ctx, symbols, start, end)
		if err != nil {
			log.Fatalf("failed to load bars: %v", err)
		}
		db := store.BuildPriceDB(bars)
		rep.LimitingTicker, rep.LimitingPoints = db.Limiting()

		var benchReturns []float64
		if bench != "" {
			_, benchReturns = metrics.HoldSeries(db.AdjCloses(bench))
			if len(benchReturns) > 0 {
				rep.Benchmark = &benchmarkReport{Ticker: bench, Days: len(benchReturns) + 1}
			}
		}
		rep.Holdings = holdingSummaries(db, collect.PositionTickers(&root, lib), benchReturns)

		if *withSignals && len(db.Dates) > 0 {
			rep.Signals = latestSignals(db, collect.ConditionLines(&root, lib))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		log.Fatalf("failed to encode report: %v", err)
	}
}

func openLoader(cfg *config.Config, kind string) (store.BarLoader, error) {
	if kind == "sqlite" {
		return store.NewSQLiteStore(cfg.Storage.SQLitePath)
	}
	return store.NewParquetStore(cfg.Storage.DataDir), nil
}

// holdingSummaries reports buy-and-hold statistics per position ticker over
// the loaded window. Benchmark-relative fields appear only when benchmark
// return data is present.
func holdingSummaries(db *store.PriceDB, tickers []string, benchmark []float64) []holdingReport {
	var out []holdingReport
	for _, t := range tickers {
		equity, returns := metrics.HoldSeries(db.AdjCloses(t))
		if len(returns) == 0 {
			continue
		}
		s := metrics.ComputeSummary(equity, returns, nil, benchmark)
		h := holdingReport{
			Ticker:      t,
			Days:        len(returns),
			CAGR:        s.CAGR,
			MaxDrawdown: s.MaxDrawdown,
			Sharpe:      s.Sharpe,
			Sortino:     s.Sortino,
		}
		if len(benchmark) > 0 {
			h.Beta = &s.Beta
			h.Treynor = &s.Treynor
		}
		out = append(out, h)
	}
	return out
}

func containsTicker(tickers []string, t string) bool {
	for _, s := range tickers {
		if s == t {
			return true
		}
	}
	return false
}

// latestSignals evaluates each distinct indicator site at the newest bar.
func latestSignals(db *store.PriceDB, conds []tree.Condition) []signalReport {
	engine := indicators.NewEngine(db)
	asOf := db.Dates[len(db.Dates)-1].Format("2006-01-02")

	type site struct {
		ticker string
		metric string
		window int
	}
	seen := make(map[site]bool)
	var out []signalReport
	add := func(ticker string, metric domain.Metric, window int) {
		ticker = tree.NormalizeTicker(ticker)
		if ticker == "" {
			return
		}
		s := site{ticker, string(metric), window}
		if seen[s] {
			return
		}
		seen[s] = true
		series := engine.Metric(metric, ticker, window)
		if len(series) == 0 {
			return
		}
		// An unset latest value means not enough history; leave it out of
		// the report rather than emitting NaN, which JSON cannot carry.
		v := series[len(series)-1]
		if !indicators.IsSet(v) {
			return
		}
		out = append(out, signalReport{
			Ticker: ticker,
			Metric: string(metric),
			Window: window,
			Value:  v,
			AsOf:   asOf,
		})
	}
	for _, c := range conds {
		add(c.Ticker, c.Metric, c.Window)
		if c.RHS != nil {
			add(c.RHS.Ticker, c.RHS.Metric, c.RHS.Window)
		}
	}
	return out
}
