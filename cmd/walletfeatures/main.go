// Package main provides the batch feature extraction entry point.
// Executes: load wallets → build features → persist → render reports
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wallet-feature-lab/internal/ethereum"
	"wallet-feature-lab/internal/features"
	"wallet-feature-lab/internal/observability"
	"wallet-feature-lab/internal/orchestrator"
	"wallet-feature-lab/internal/pricing"
	"wallet-feature-lab/internal/reporting"
	"wallet-feature-lab/internal/storage"
	chstore "wallet-feature-lab/internal/storage/clickhouse"
	"wallet-feature-lab/internal/storage/migrations"
	pgstore "wallet-feature-lab/internal/storage/postgres"
	"wallet-feature-lab/internal/wallets"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	network := flag.String("network", envOr("ETH_NETWORK", "eth-mainnet"), "Alchemy network slug")
	apiKey := flag.String("api-key", os.Getenv("ALCHEMY_API_KEY"), "Alchemy API key")
	cmcAPIKey := flag.String("cmc-api-key", os.Getenv("CMC_API_KEY"), "CoinMarketCap API key")
	walletsList := flag.String("wallets", "", "Comma-separated wallet addresses or ENS names")
	inputPath := flag.String("input", "", "Wallets file (one per line, or .csv with addresses in the first column)")
	outputPath := flag.String("output", "wallet_features.csv", "Feature CSV output path")
	transfersDir := flag.String("transfers-dir", "", "Directory for per-wallet transfer CSVs (optional)")
	reportPath := flag.String("report", "", "Markdown run report output path (optional)")
	runID := flag.String("run-id", "", "Run identifier (defaults to a timestamp)")
	concurrency := flag.Int("concurrency", orchestrator.DefaultConcurrency, "Concurrent wallet builds")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL DSN for feature record persistence (optional)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse DSN for transfer archiving (optional)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	logger := log.New(os.Stdout, "[walletfeatures] ", log.LstdFlags)

	if *apiKey == "" {
		logger.Fatal("--api-key (or ALCHEMY_API_KEY) is required")
	}
	if *walletsList == "" && *inputPath == "" {
		logger.Fatal("provide wallets via --wallets or --input")
	}
	if *runID == "" {
		*runID = time.Now().UTC().Format("20060102T150405Z")
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling run...", sig)
		cancel()
	}()

	// Wallet inputs
	inputs, err := wallets.Load(*inputPath, *walletsList)
	if err != nil {
		logger.Fatalf("Load wallets: %v", err)
	}

	client := ethereum.NewHTTPClient(ethereum.Endpoint(*network, *apiKey))
	resolved := wallets.Resolve(ctx, client, inputs, logger)
	if len(resolved) == 0 {
		logger.Fatal("No valid wallets to process")
	}
	logger.Printf("Processing %d wallets (run %s)", len(resolved), *runID)

	fetcher := ethereum.NewFetcher(client, ethereum.FetcherOptions{})

	var source pricing.Source
	if *cmcAPIKey != "" {
		source = pricing.NewCoinMarketCapSource(*cmcAPIKey)
	} else {
		logger.Printf("No CoinMarketCap API key, all price lookups will miss")
		source = pricing.NewMemorySource()
	}
	oracle := pricing.NewOracle(source)

	builder := features.NewBuilder(fetcher, oracle, features.BuilderOptions{Logger: logger})

	// Optional persistence
	featureStore, transferStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("Create stores: %v", err)
	}
	defer cleanup()

	orch, err := orchestrator.New(orchestrator.Options{
		Builder:        builder,
		Concurrency:    *concurrency,
		FeatureStore:   featureStore,
		TransferStore:  transferStore,
		TransferSource: fetcher,
		Verbose:        *verbose,
	})
	if err != nil {
		logger.Fatalf("Create orchestrator: %v", err)
	}

	start := time.Now()
	result, err := orch.Run(ctx, *runID, resolved)
	if err != nil {
		observability.RecordRun("failure", time.Since(start).Seconds())
		logger.Fatalf("Run failed: %v", err)
	}
	observability.RecordRun("success", time.Since(start).Seconds())
	observability.DefaultMetrics.LastSuccessfulRun.SetToCurrentTime()

	logger.Printf("Run completed in %v: %d wallets, %d error records",
		time.Since(start), result.WalletsProcessed, result.ErrorRecords)
	for _, e := range result.Errors {
		logger.Printf("  warning: %s", e)
	}

	// Outputs
	report := reporting.BuildReport(*runID, result.Records, result.Errors, time.Now().UTC())

	if err := writeFile(*outputPath, reporting.RenderFeatureCSV(report.Records)); err != nil {
		logger.Fatalf("Write feature CSV: %v", err)
	}
	logger.Printf("Features written to %s", *outputPath)

	if *reportPath != "" {
		if err := writeFile(*reportPath, reporting.RenderMarkdown(report)); err != nil {
			logger.Fatalf("Write report: %v", err)
		}
		logger.Printf("Report written to %s", *reportPath)
	}

	if *transfersDir != "" {
		if err := writeTransferCSVs(ctx, *transfersDir, fetcher, report); err != nil {
			logger.Fatalf("Write transfer CSVs: %v", err)
		}
		logger.Printf("Transfer details written to %s/", *transfersDir)
	}
}

// createStores wires the optional persistence backends. Either DSN may be
// empty; missing backends simply disable that persistence phase.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string) (storage.FeatureRecordStore, storage.TransferArchiveStore, func(), error) {
	var featureStore storage.FeatureRecordStore
	var transferStore storage.TransferArchiveStore
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, nil, cleanup, fmt.Errorf("postgres migrations: %w", err)
		}
		featureStore = pgstore.NewFeatureRecordStore(pool)
	}

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("clickhouse migrations: %w", err)
		}
		cleanups = append(cleanups, func() { _ = conn.Close() })
		transferStore = chstore.NewTransferArchiveStore(conn)
	}

	return featureStore, transferStore, cleanup, nil
}

// writeTransferCSVs renders one CSV per successfully built wallet from the
// fetcher's memoized history.
func writeTransferCSVs(ctx context.Context, dir string, fetcher *ethereum.Fetcher, report *reporting.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i := range report.Records {
		rec := &report.Records[i]
		if rec.Error != "" {
			continue
		}
		transfers, err := fetcher.FetchTransfers(ctx, rec.Wallet)
		if err != nil {
			return fmt.Errorf("fetch transfers for %s: %w", rec.Wallet, err)
		}
		path := filepath.Join(dir, rec.Wallet+".csv")
		if err := writeFile(path, reporting.RenderTransferCSV(rec.Wallet, transfers)); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
