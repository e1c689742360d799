// Package main provides the long-running feature service:
// - Scheduled recompute: periodic feature runs over a fixed wallet set
// - Activity watch (optional): WebSocket log subscription marks wallets
//   dirty so the next check recomputes only what changed
// - HTTP: /health, /metrics, /status
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
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
	"wallet-feature-lab/internal/storage/memory"
	"wallet-feature-lab/internal/storage/migrations"
	pgstore "wallet-feature-lab/internal/storage/postgres"
	"wallet-feature-lab/internal/wallets"
)

// erc20TransferTopic is the keccak hash of Transfer(address,address,uint256).
const erc20TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// Server holds all components of the feature service.
type Server struct {
	// Configuration
	network     string
	runInterval time.Duration
	dirtyCheck  time.Duration
	outputDir   string

	// Components
	wallets          []string
	makeOrchestrator func(*ethereum.Fetcher) (*orchestrator.Orchestrator, error)
	fetcherReset     func() *ethereum.Fetcher
	logger           *log.Logger

	// State
	mu        sync.Mutex
	startedAt time.Time
	lastRun   time.Time
	lastRunID string
	running   bool
	runs      int
	dirty     map[string]struct{}
	watching  bool
}

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	network := flag.String("network", envOr("ETH_NETWORK", "eth-mainnet"), "Alchemy network slug")
	apiKey := flag.String("api-key", os.Getenv("ALCHEMY_API_KEY"), "Alchemy API key")
	cmcAPIKey := flag.String("cmc-api-key", os.Getenv("CMC_API_KEY"), "CoinMarketCap API key")
	walletsList := flag.String("wallets", "", "Comma-separated wallet addresses or ENS names")
	inputPath := flag.String("input", "", "Wallets file")
	outputDir := flag.String("output-dir", "output", "Output directory for run reports")
	runInterval := flag.Duration("run-interval", 6*time.Hour, "Full recompute interval")
	dirtyCheck := flag.Duration("dirty-check-interval", 15*time.Minute, "Dirty wallet recompute interval")
	watch := flag.Bool("watch", false, "Watch on-chain activity via WebSocket")
	concurrency := flag.Int("concurrency", orchestrator.DefaultConcurrency, "Concurrent wallet builds")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	httpAddr := flag.String("http-addr", ":9090", "HTTP address for health/metrics/status")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

	if *apiKey == "" {
		logger.Fatal("--api-key (or ALCHEMY_API_KEY) is required")
	}
	if *walletsList == "" && *inputPath == "" {
		logger.Fatal("provide wallets via --wallets or --input")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	}()

	// Wallet set
	inputs, err := wallets.Load(*inputPath, *walletsList)
	if err != nil {
		logger.Fatalf("Load wallets: %v", err)
	}
	client := ethereum.NewHTTPClient(ethereum.Endpoint(*network, *apiKey))
	watched := wallets.Resolve(ctx, client, inputs, logger)
	if len(watched) == 0 {
		logger.Fatal("No valid wallets to watch")
	}
	logger.Printf("Watching %d wallets on %s", len(watched), *network)

	// Pricing
	var source pricing.Source
	if *cmcAPIKey != "" {
		source = pricing.NewCoinMarketCapSource(*cmcAPIKey)
	} else {
		logger.Printf("No CoinMarketCap API key, all price lookups will miss")
		source = pricing.NewMemorySource()
	}
	oracle := pricing.NewOracle(source)

	// Stores
	featureStore, transferStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Create stores: %v", err)
	}
	defer cleanup()

	// A fresh fetcher per run drops the per-wallet memoization so each
	// scheduled recompute sees new history.
	fetcherReset := func() *ethereum.Fetcher {
		return ethereum.NewFetcher(client, ethereum.FetcherOptions{})
	}

	server := &Server{
		network:     *network,
		runInterval: *runInterval,
		dirtyCheck:  *dirtyCheck,
		outputDir:   *outputDir,
		wallets:     watched,
		logger:      logger,
		startedAt:   time.Now().UTC(),
		dirty:       make(map[string]struct{}),
		watching:    *watch,
	}

	makeOrchestrator := func(fetcher *ethereum.Fetcher) (*orchestrator.Orchestrator, error) {
		builder := features.NewBuilder(fetcher, oracle, features.BuilderOptions{Logger: logger})
		return orchestrator.New(orchestrator.Options{
			Builder:        builder,
			Concurrency:    *concurrency,
			FeatureStore:   featureStore,
			TransferStore:  transferStore,
			TransferSource: fetcher,
			Verbose:        *verbose,
		})
	}
	server.fetcherReset = fetcherReset
	server.makeOrchestrator = makeOrchestrator

	// Activity watch
	if *watch {
		go server.watchActivity(ctx, ethereum.WSEndpoint(*network, *apiKey))
	}

	// HTTP server
	go server.startHTTPServer(*httpAddr)

	// Scheduler
	if err := server.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// Run executes the recompute scheduler until the context is cancelled.
// A full run happens immediately, then on every runInterval tick. Dirty
// wallets picked up by the activity watch are recomputed on the shorter
// dirtyCheck tick.
func (s *Server) Run(ctx context.Context) error {
	s.runBatch(ctx, s.wallets, "full")

	fullTicker := time.NewTicker(s.runInterval)
	defer fullTicker.Stop()
	dirtyTicker := time.NewTicker(s.dirtyCheck)
	defer dirtyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-fullTicker.C:
			s.runBatch(ctx, s.wallets, "full")
		case <-dirtyTicker.C:
			if batch := s.takeDirty(); len(batch) > 0 {
				s.runBatch(ctx, batch, "dirty")
			}
		}
	}
}

// runBatch executes one feature run over the given wallets.
func (s *Server) runBatch(ctx context.Context, batch []string, kind string) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Printf("Skipping %s run, previous run still in progress", kind)
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runID := fmt.Sprintf("%s-%s", kind, time.Now().UTC().Format("20060102T150405Z"))
	s.logger.Printf("Starting %s run %s over %d wallets", kind, runID, len(batch))

	orch, err := s.makeOrchestrator(s.fetcherReset())
	if err != nil {
		s.logger.Printf("Run %s: create orchestrator: %v", runID, err)
		return
	}

	start := time.Now()
	result, err := orch.Run(ctx, runID, batch)
	if err != nil {
		observability.RecordRun("failure", time.Since(start).Seconds())
		s.logger.Printf("Run %s failed: %v", runID, err)
		return
	}
	observability.RecordRun("success", time.Since(start).Seconds())
	observability.DefaultMetrics.LastSuccessfulRun.SetToCurrentTime()

	report := reporting.BuildReport(runID, result.Records, result.Errors, time.Now().UTC())
	path := fmt.Sprintf("%s/%s.csv", s.outputDir, runID)
	if err := os.MkdirAll(s.outputDir, 0o755); err == nil {
		if err := os.WriteFile(path, []byte(reporting.RenderFeatureCSV(report.Records)), 0o644); err != nil {
			s.logger.Printf("Run %s: write csv: %v", runID, err)
		}
	}

	s.mu.Lock()
	s.lastRun = time.Now().UTC()
	s.lastRunID = runID
	s.runs++
	s.mu.Unlock()

	s.logger.Printf("Run %s completed in %v: %d wallets, %d error records",
		runID, time.Since(start), result.WalletsProcessed, result.ErrorRecords)
}

// watchActivity subscribes to ERC-20 Transfer logs and marks watched
// wallets dirty when they appear as sender or recipient topic.
func (s *Server) watchActivity(ctx context.Context, wsEndpoint string) {
	ws, err := ethereum.NewWSClient(ctx, wsEndpoint, nil)
	if err != nil {
		s.logger.Printf("Activity watch disabled: %v", err)
		return
	}
	defer ws.Close()

	events, err := ws.SubscribeLogs(ctx, ethereum.LogsFilter{
		Topics: []string{erc20TransferTopic},
	})
	if err != nil {
		s.logger.Printf("Activity watch disabled: subscribe logs: %v", err)
		return
	}
	s.logger.Printf("Activity watch started")

	// Wallet addresses padded to 32-byte topic form
	topicOf := make(map[string]string, len(s.wallets))
	for _, w := range s.wallets {
		topicOf["0x000000000000000000000000"+strings.TrimPrefix(w, "0x")] = w
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.logger.Printf("Activity watch stream closed")
				return
			}
			if ev.Removed {
				continue
			}
			for _, topic := range ev.Topics {
				if w, found := topicOf[strings.ToLower(topic)]; found {
					s.markDirty(w)
				}
			}
		}
	}
}

func (s *Server) markDirty(wallet string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.dirty[wallet]; !exists {
		s.dirty[wallet] = struct{}{}
		s.logger.Printf("Wallet %s marked dirty", wallet)
	}
}

func (s *Server) takeDirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirty) == 0 {
		return nil
	}
	batch := make([]string, 0, len(s.dirty))
	for w := range s.dirty {
		batch = append(batch, w)
	}
	s.dirty = make(map[string]struct{})
	return batch
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	Network       string    `json:"network"`
	Wallets       int       `json:"wallets"`
	Watching      bool      `json:"watching"`
	DirtyWallets  int       `json:"dirty_wallets"`
	LastRun       time.Time `json:"last_run,omitempty"`
	LastRunID     string    `json:"last_run_id,omitempty"`
	Runs          int       `json:"runs"`
	RunInProgress bool      `json:"run_in_progress"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.startedAt).String(),
		Network:       s.network,
		Wallets:       len(s.wallets),
		Watching:      s.watching,
		DirtyWallets:  len(s.dirty),
		LastRun:       s.lastRun,
		LastRunID:     s.lastRunID,
		Runs:          s.runs,
		RunInProgress: s.running,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// createStores creates the persistence backends.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.FeatureRecordStore, storage.TransferArchiveStore, func(), error) {
	if useMemory {
		return memory.NewFeatureRecordStore(), memory.NewTransferArchiveStore(), func() {}, nil
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, cleanup, fmt.Errorf("connect to postgres: %w", err)
	}
	cleanups = append(cleanups, pool.Close)
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return nil, nil, cleanup, fmt.Errorf("postgres migrations: %w", err)
	}
	featureStore := pgstore.NewFeatureRecordStore(pool)

	var transferStore storage.TransferArchiveStore
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

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
