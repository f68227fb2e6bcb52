// Command treequant-fetch downloads daily bars for the tickers a strategy
// tree requires and persists them to the local price store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"treequant/internal/collect"
	"treequant/internal/config"
	"treequant/internal/gather/us"
	"treequant/internal/store"
	"treequant/internal/tree"
	"treequant/internal/util"
)

func main() {
	treePath := flag.String("tree", "", "path to the strategy tree JSON; fetches its required tickers")
	symbolsFlag := flag.String("symbols", "", "comma-separated tickers to fetch instead of a tree")
	storeKind := flag.String("store", "parquet", "price store backend: parquet or sqlite")
	flag.Parse()

	cfgPath := "config/treequant.yaml"
	if p := os.Getenv("TREEQUANT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level))

	symbols, startDate, err := resolveSymbols(cfg, *treePath, *symbolsFlag)
	if err != nil {
		log.Fatal(err)
	}
	if len(symbols) == 0 {
		log.Fatal("nothing to fetch: provide -tree or -symbols")
	}

	var writer store.BarWriter
	if *storeKind == "sqlite" {
		s, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite store: %v", err)
		}
		defer s.Close()
		writer = s
	} else {
		writer = store.NewParquetStore(cfg.Storage.DataDir)
	}

	gatherer := us.NewDailyBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		writer,
		symbols,
		cfg.Fetch.BatchSize,
		cfg.Fetch.MaxWorkers,
		cfg.Fetch.RateLimitPerMin,
		startDate,
		cfg.Alpaca.BaseURL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("fetch error: %v", err)
	}
}

// resolveSymbols determines the fetch universe and start date, either from a
// strategy tree (required tickers, computed lookback) or an explicit symbol
// list (configured start date).
func resolveSymbols(cfg *config.Config, treePath, symbolsFlag string) ([]string, string, error) {
	if symbolsFlag != "" {
		return strings.Split(symbolsFlag, ","), cfg.Fetch.StartDate, nil
	}
	if treePath == "" {
		return nil, "", nil
	}

	data, err := os.ReadFile(treePath)
	if err != nil {
		return nil, "", err
	}
	var root tree.Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, "", err
	}
	lib, err := collect.LoadLibrary(cfg.Storage.LibraryDir)
	if err != nil {
		return nil, "", err
	}
	inputs := collect.Collect(&root, lib)

	// Fetch from whichever is earlier: the configured backtest start or the
	// date the computed lookback requires.
	start := util.LookbackStart(time.Now(), inputs.MaxLookback+cfg.Analysis.MinLookbackPad)
	startDate := cfg.Fetch.StartDate
	if s := start.Format("2006-01-02"); startDate == "" || s < startDate {
		startDate = s
	}
	return inputs.Tickers, startDate, nil
}
