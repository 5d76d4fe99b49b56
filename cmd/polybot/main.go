package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polybot/config"
	"github.com/alejandrodnm/polybot/internal/adapters/notify"
	"github.com/alejandrodnm/polybot/internal/adapters/polymarket"
	"github.com/alejandrodnm/polybot/internal/adapters/storage"
	"github.com/alejandrodnm/polybot/internal/application/basket"
	"github.com/alejandrodnm/polybot/internal/application/control"
	"github.com/alejandrodnm/polybot/internal/application/copy"
	"github.com/alejandrodnm/polybot/internal/application/corecontext"
	"github.com/alejandrodnm/polybot/internal/application/executor"
	"github.com/alejandrodnm/polybot/internal/application/ingestion"
	"github.com/alejandrodnm/polybot/internal/application/marketcache"
	"github.com/alejandrodnm/polybot/internal/application/position"
	"github.com/alejandrodnm/polybot/internal/application/registry"
	"github.com/alejandrodnm/polybot/internal/application/resolution"
	"github.com/alejandrodnm/polybot/internal/application/seeder"
	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	live := flag.Bool("live", false, "place real orders instead of SHADOW-only dry run (requires POLY_PRIVATE_KEY, POLYGON_RPC_URL)")
	reportFlag := flag.String("report", "", "print a report instead of running: status|whales|baskets|positions")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.OpenCoreStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "error", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rcfg, err := store.LoadRuntimeConfig(ctx)
	if err != nil {
		slog.Error("failed to load runtime config", "error", err)
		os.Exit(1)
	}
	if *live {
		rcfg.DryRun = false
	}
	core := corecontext.New(store, rcfg)

	publicClient := polymarket.NewClientWithDataBase(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.API.DataBase)

	var executorClient ports.CopyOrderExecutor
	var walletAddr string
	if !rcfg.DryRun {
		secrets, err := config.LoadSecrets()
		if err != nil {
			slog.Error("failed to load secrets for live trading", "error", err)
			os.Exit(1)
		}
		authClient, err := polymarket.NewAuthClient(cfg.API.CLOBBase, cfg.API.GammaBase, secrets.WalletPrivateKey)
		if err != nil {
			slog.Error("failed to build auth client", "error", err)
			os.Exit(1)
		}
		tradingClient, err := polymarket.NewTradingClient(authClient, secrets.RPCURL)
		if err != nil {
			slog.Error("failed to build trading client", "error", err)
			os.Exit(1)
		}
		executorClient = polymarket.NewCopyExecutor(authClient, tradingClient)
		walletAddr = authClient.Address()
		slog.Info("live trading enabled", "wallet", walletAddr)
	} else {
		slog.Info("running in dry-run/monitor-only mode; all orders will be SHADOW")
	}

	reg, err := registry.New(ctx, store)
	if err != nil {
		slog.Error("failed to build whale registry", "error", err)
		os.Exit(1)
	}

	notifier := notify.NewConsole()

	if *reportFlag != "" {
		ctrl := control.New(core, store, store, store, store, executorClient, walletAddr)
		if err := runReport(ctx, ctrl, *reportFlag); err != nil {
			slog.Error("report failed", "error", err)
			os.Exit(1)
		}
		return
	}

	markets := marketcache.New(publicClient)

	basketEngine, err := basket.New(ctx, store, reg, markets, core, notifier, slog.Default())
	if err != nil {
		slog.Error("failed to build basket engine", "error", err)
		os.Exit(1)
	}

	// The Position Manager is built first since both the Copy Engine and the
	// Executor need to fold fills into its book through ports.FillApplier.
	posManager := position.New(store, executorClient, core, notifier, slog.Default())
	copyEngine := copy.New(store, executorClient, posManager, reg, core, markets, notifier, slog.Default())
	exec := executor.New(store, executorClient, posManager, core, notifier, slog.Default())

	whaleHistory := polymarket.NewWalletHistory(publicClient, rcfg.TrackedWhaleMinNotional)
	stream := polymarket.NewStream(cfg.API.WSBase, rcfg.TrackedWhaleMinNotional, func(wallet string) bool {
		_, ok := reg.Lookup(wallet)
		return ok
	})
	ingestor := ingestion.New(stream, whaleHistory, reg, core, slog.Default())

	scorer := registry.NewScorer(reg, store, core, notifier)
	seed := seeder.New(publicClient, whaleHistory, reg, core, slog.Default())
	resolver := resolution.New(store, publicClient, posManager, slog.Default())

	// Fan in the Copy Engine's entries and the Position Manager's exits into
	// the single channel the Executor's worker pool drains.
	orders := make(chan domain.CopyOrder, 128)
	go fanIn(ctx, orders, copyEngine.Orders(), posManager.Exits())

	// Fan the ingestor's single trade feed out to both the Basket Engine and
	// the whale-exit watcher, since a channel can only have one reader.
	basketEvents := make(chan domain.WhaleTrade, 256)
	exitEvents := make(chan domain.WhaleTrade, 256)
	go fanOutTrades(ctx, ingestor.Events(), basketEvents, exitEvents)
	go runWhaleExitWatcher(ctx, posManager, exitEvents)

	run := func(name string, fn func() error) {
		go func() {
			if err := fn(); err != nil && ctx.Err() == nil {
				slog.Error("task exited with error", "task", name, "error", err)
			}
		}()
	}

	run("ingestion", func() error { return ingestor.Run(ctx) })
	run("basket", func() error { return basketEngine.Run(ctx, basketEvents) })
	run("copy", func() error { return copyEngine.Run(ctx, basketEngine.Signals()) })
	run("executor", func() error { return exec.Run(ctx, orders) })
	run("position", func() error { return posManager.Run(ctx) })

	go runMarketDiscoveryLoop(ctx, core, markets, stream)
	go runSeederLoop(ctx, core, seed)
	go runScorerLoop(ctx, core, scorer)
	go runWalletPollLoop(ctx, core, reg, ingestor)
	go runBankrollLoop(ctx, core, executorClient)
	go runResolutionLoop(ctx, core, cfg.Chain.PollInterval, resolver)

	slog.Info("polybot started", "config", *configPath, "dry_run", core.Config().DryRun)
	<-ctx.Done()
	slog.Info("polybot stopping")
}

func fanIn(ctx context.Context, dst chan<- domain.CopyOrder, a, b <-chan domain.CopyOrder) {
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-a:
			if !ok {
				a = nil
				continue
			}
			select {
			case dst <- o:
			case <-ctx.Done():
				return
			}
		case o, ok := <-b:
			if !ok {
				b = nil
				continue
			}
			select {
			case dst <- o:
			case <-ctx.Done():
				return
			}
		}
	}
}

// fanOutTrades copies every trade off src onto each of dsts until ctx is
// cancelled or src closes, since a channel can only be drained by one
// reader and both the Basket Engine and the whale-exit watcher need the
// same feed.
func fanOutTrades(ctx context.Context, src <-chan domain.WhaleTrade, dsts ...chan<- domain.WhaleTrade) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-src:
			if !ok {
				return
			}
			for _, d := range dsts {
				select {
				case d <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// runWhaleExitWatcher tells the Position Manager to exit in sympathy
// (spec's whale_exit exit reason) whenever a tracked whale sells out of a
// market/asset the operator holds a position copied from that same wallet.
func runWhaleExitWatcher(ctx context.Context, posManager *position.Manager, trades <-chan domain.WhaleTrade) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-trades:
			if !ok {
				return
			}
			if t.Side != "SELL" {
				continue
			}
			if err := posManager.OnWhaleExit(ctx, t.Wallet, t.MarketID, t.AssetID, t.Price); err != nil {
				slog.Error("whale exit watcher failed", "wallet", t.Wallet, "market_id", t.MarketID, "error", err)
			}
		}
	}
}

// runMarketDiscoveryLoop refreshes the market cache and keeps the whale
// trade stream subscribed to exactly the active markets' outcome tokens.
func runMarketDiscoveryLoop(ctx context.Context, core *corecontext.Core, markets *marketcache.Cache, stream *polymarket.Stream) {
	for {
		cfg := core.Config()
		if !cfg.MarketDiscoveryEnabled {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Minute):
				continue
			}
		}
		if err := markets.Refresh(ctx); err != nil {
			slog.Error("market discovery refresh failed", "error", err)
		} else {
			stream.SetAssetIDs(markets.AssetIDs())
		}
		select {
		case <-ctx.Done():
			return
		case <-core.VersionChanged():
		case <-time.After(cfg.MarketDiscoveryInterval):
		}
	}
}

func runSeederLoop(ctx context.Context, core *corecontext.Core, seed *seeder.Seeder) {
	for {
		cfg := core.Config()
		if cfg.WhaleSeederEnabled {
			n, err := seed.RunOnce(ctx)
			if err != nil {
				slog.Error("whale seeder run failed", "error", err)
			} else if n > 0 {
				slog.Info("whale seeder registered new candidates", "count", n)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Hour):
		}
	}
}

func runScorerLoop(ctx context.Context, core *corecontext.Core, scorer *registry.Scorer) {
	for {
		cfg := core.Config()
		select {
		case <-ctx.Done():
			return
		case <-core.VersionChanged():
			continue
		case <-time.After(cfg.ScorerInterval):
			if err := scorer.Run(ctx); err != nil {
				slog.Error("scorer run failed", "error", err)
			}
		}
	}
}

// runWalletPollLoop gap-fills every tracked whale's trade history on
// WhalePollerInterval, catching anything the live stream missed.
func runWalletPollLoop(ctx context.Context, core *corecontext.Core, reg *registry.Registry, ingestor *ingestion.Ingestor) {
	for {
		cfg := core.Config()
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.WhalePollerInterval):
			for _, w := range reg.ListActive() {
				if err := ingestor.PollWallet(ctx, w.Address); err != nil {
					slog.Warn("wallet poll failed", "wallet", w.Address, "error", err)
				}
			}
		}
	}
}

// runBankrollLoop refreshes the operator's USDC balance snapshot that Kelly
// sizing reads from, on the same cadence as position monitoring.
func runBankrollLoop(ctx context.Context, core *corecontext.Core, exchange ports.CopyOrderExecutor) {
	if exchange == nil {
		return
	}
	for {
		bal, err := exchange.GetBalance(ctx)
		if err != nil {
			slog.Warn("bankroll refresh failed", "error", err)
		} else {
			core.SetBankroll(bal)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(core.Config().PositionMonitorInterval):
		}
	}
}

// runResolutionLoop polls every open position's market for settlement on
// the static chain poll interval, gated on the operator's
// RuntimeConfig.ChainListenerEnabled toggle.
func runResolutionLoop(ctx context.Context, core *corecontext.Core, interval time.Duration, listener *resolution.Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			if !core.Config().ChainListenerEnabled {
				continue
			}
			n, err := listener.RunOnce(ctx)
			if err != nil {
				slog.Error("resolution listener run failed", "error", err)
			} else if n > 0 {
				slog.Info("resolution listener resolved positions", "count", n)
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
