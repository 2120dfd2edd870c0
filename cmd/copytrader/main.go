package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solana-copy-trader/internal/detector"
	"solana-copy-trader/internal/engine"
	"solana-copy-trader/internal/holdings"
	"solana-copy-trader/internal/jupiter"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/oracle"
	"solana-copy-trader/internal/orchestrator"
	"solana-copy-trader/internal/solana"
	"solana-copy-trader/internal/storage"
	chstore "solana-copy-trader/internal/storage/clickhouse"
	"solana-copy-trader/internal/storage/migrations"
	pgstore "solana-copy-trader/internal/storage/postgres"
	"solana-copy-trader/internal/wallet"
)

// privateKeyEnv names the env var carrying the follower's base58 signing
// key. Deliberately not a flag: flags leak through process listings.
const privateKeyEnv = "FOLLOWER_PRIVATE_KEY"

func main() {
	// .env is optional; real env vars win
	_ = godotenv.Load()

	rpcEndpoint := flag.String("rpc-endpoint", envOr("SOLANA_RPC_ENDPOINT", ""), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", envOr("SOLANA_WS_ENDPOINT", ""), "Solana WebSocket endpoint")
	targetWallet := flag.String("target-wallet", envOr("TARGET_WALLET", ""), "Counterparty wallet to copy")
	jupiterURL := flag.String("jupiter-url", envOr("JUPITER_BASE_URL", ""), "Quote API base URL (empty for default)")
	holdingsFile := flag.String("holdings-file", envOr("HOLDINGS_FILE", "holdings.json"), "Holdings state file")
	pendingFile := flag.String("pending-file", envOr("PENDING_SELLS_FILE", "pending_sells.json"), "Pending sell queue file")
	postgresDSN := flag.String("postgres-dsn", envOr("POSTGRES_DSN", ""), "PostgreSQL DSN for the trade audit store (empty to disable)")
	clickhouseDSN := flag.String("clickhouse-dsn", envOr("CLICKHOUSE_DSN", ""), "ClickHouse DSN for the observed swap archive (empty to disable)")
	metricsAddr := flag.String("metrics-addr", envOr("METRICS_ADDR", ":9090"), "Prometheus metrics HTTP address (empty to disable)")
	buyScale := flag.Float64("buy-scale", envFloat("BUY_SCALE", 1.0), "Multiplier applied to counterparty buy amounts")
	maxBuySOL := flag.Float64("max-buy-sol", envFloat("MAX_BUY_SOL", 0), "Cap on a single buy in SOL (0 = uncapped)")
	enableBuy := flag.Bool("enable-buy", envBool("ENABLE_BUY", true), "Allow buy execution")
	enableSell := flag.Bool("enable-sell", envBool("ENABLE_SELL", true), "Allow sell execution")
	disablePush := flag.Bool("disable-push", false, "Disable the push (log subscription) detector")
	disablePoll := flag.Bool("disable-poll", false, "Disable the poll (balance diff) detector")

	flag.Parse()

	logger := log.New(os.Stdout, "[copytrader] ", log.LstdFlags|log.Lshortfile)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err := run(ctx, logger, options{
		rpcEndpoint:   *rpcEndpoint,
		wsEndpoint:    *wsEndpoint,
		targetWallet:  *targetWallet,
		privateKey:    os.Getenv(privateKeyEnv),
		jupiterURL:    *jupiterURL,
		holdingsFile:  *holdingsFile,
		pendingFile:   *pendingFile,
		postgresDSN:   *postgresDSN,
		clickhouseDSN: *clickhouseDSN,
		buyScale:      *buyScale,
		maxBuySOL:     *maxBuySOL,
		enableBuy:     *enableBuy,
		enableSell:    *enableSell,
		disablePush:   *disablePush,
		disablePoll:   *disablePoll,
	})

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type options struct {
	rpcEndpoint   string
	wsEndpoint    string
	targetWallet  string
	privateKey    string
	jupiterURL    string
	holdingsFile  string
	pendingFile   string
	postgresDSN   string
	clickhouseDSN string
	buyScale      float64
	maxBuySOL     float64
	enableBuy     bool
	enableSell    bool
	disablePush   bool
	disablePoll   bool
}

func run(ctx context.Context, logger *log.Logger, opts options) error {
	if opts.rpcEndpoint == "" {
		return fmt.Errorf("--rpc-endpoint is required")
	}
	if opts.targetWallet == "" {
		return fmt.Errorf("--target-wallet is required")
	}
	if opts.privateKey == "" {
		return fmt.Errorf("%s is required", privateKeyEnv)
	}
	if !opts.disablePush && opts.wsEndpoint == "" {
		return fmt.Errorf("--ws-endpoint is required unless --disable-push is set")
	}
	if opts.disablePush && opts.disablePoll {
		return fmt.Errorf("at least one detector must stay enabled")
	}
	if err := wallet.ValidateAddress(opts.targetWallet); err != nil {
		return fmt.Errorf("invalid target wallet: %w", err)
	}

	kp, err := wallet.KeypairFromBase58(opts.privateKey)
	if err != nil {
		return fmt.Errorf("decode follower key: %w", err)
	}
	logger.Printf("Follower wallet: %s", kp.PublicKey())
	logger.Printf("Target wallet: %s", opts.targetWallet)

	rpc := solana.NewHTTPClient(opts.rpcEndpoint)

	hold := holdings.NewFileStore(opts.holdingsFile, logger)
	if err := hold.Load(ctx); err != nil {
		return fmt.Errorf("load holdings: %w", err)
	}

	pending := engine.NewPendingQueue(opts.pendingFile, logger)
	if err := pending.Load(ctx); err != nil {
		return fmt.Errorf("load pending sells: %w", err)
	}

	ora := oracle.NewCachedOracle(rpc)

	var clientOpts []jupiter.Option
	if opts.jupiterURL != "" {
		clientOpts = append(clientOpts, jupiter.WithBaseURL(opts.jupiterURL))
	}
	gateway := jupiter.NewGateway(
		jupiter.NewClient(clientOpts...),
		jupiter.NewExecutor(rpc, jupiter.WithLogger(logger)),
	)

	cfg := engine.DefaultConfig()
	cfg.EnableBuy = opts.enableBuy
	cfg.EnableSell = opts.enableSell

	eng, err := engine.New(engine.Options{
		Gateway:  gateway,
		Holdings: hold,
		Oracle:   ora,
		Keypair:  kp,
		Pending:  pending,
		Config:   cfg,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	orchOpts := orchestrator.Options{
		Engine:       eng,
		Keypair:      kp,
		TargetWallet: opts.targetWallet,
		BuyScale:     opts.buyScale,
		MaxBuySOL:    opts.maxBuySOL,
		Logger:       logger,
	}

	if !opts.disablePush {
		ws, err := solana.NewWSClient(ctx, opts.wsEndpoint, nil)
		if err != nil {
			return fmt.Errorf("create websocket client: %w", err)
		}
		defer ws.Close()

		push, err := detector.NewPush(detector.PushOptions{
			WS:           ws,
			RPC:          rpc,
			TargetWallet: opts.targetWallet,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("create push detector: %w", err)
		}
		orchOpts.Push = push
		orchOpts.Fatal = ws.Fatal()
	}

	if !opts.disablePoll {
		poll, err := detector.NewPoll(detector.PollOptions{
			Holdings:     hold,
			Oracle:       ora,
			TargetWallet: opts.targetWallet,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("create poll detector: %w", err)
		}
		orchOpts.Poll = poll
	}

	if opts.postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}
		var trades storage.CopyTradeStore = pgstore.NewCopyTradeStore(pool)
		orchOpts.Trades = trades
		logger.Println("Trade audit store: postgres")
	} else {
		logger.Println("Trade audit store disabled (no --postgres-dsn)")
	}

	if opts.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, opts.clickhouseDSN)
		if err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		defer conn.Close()

		var swaps storage.ObservedSwapStore = chstore.NewObservedSwapStore(conn)
		orchOpts.Swaps = swaps
		logger.Println("Observed swap archive: clickhouse")
	} else {
		logger.Println("Observed swap archive disabled (no --clickhouse-dsn)")
	}

	orch, err := orchestrator.New(orchOpts)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	logger.Println("Copy trading started")
	return orch.Run(ctx)
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envFloat(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
