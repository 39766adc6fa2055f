package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"virtual_market/internal/alert"
	"virtual_market/internal/config"
	"virtual_market/internal/infrastructure/health"
	"virtual_market/internal/infrastructure/server"
	"virtual_market/internal/market"
	"virtual_market/internal/news"
	"virtual_market/internal/query"
	"virtual_market/internal/round"
	"virtual_market/internal/store"
	"virtual_market/internal/stream"
	"virtual_market/internal/trading"
	"virtual_market/pkg/concurrency"
	"virtual_market/pkg/logging"
	"virtual_market/pkg/telemetry"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("server version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	tel, err := telemetry.Setup("virtual_market")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting virtual market server",
		"version", version,
		"port", cfg.Server.Port,
		"db_path", cfg.Store.DBPath,
		"tick_interval", cfg.TickInterval(),
		"round_duration", cfg.RoundDuration(),
	)

	st, err := store.New(cfg.Store.DBPath)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	now := time.Now()
	for _, seed := range cfg.SeedInstruments() {
		price := decimal.NewFromFloat(seed.Price)
		if err := st.SeedInstrument(context.Background(), seed.Symbol, seed.Name, price, now); err != nil {
			logger.Error("Failed to seed instrument", "symbol", seed.Symbol, "error", err)
			os.Exit(1)
		}
	}

	alerts := alert.NewManager(logger)
	if cfg.Alerts.TelegramBotToken != "" && cfg.Alerts.TelegramChatID != "" {
		alerts.AddChannel(alert.NewTelegramChannel(string(cfg.Alerts.TelegramBotToken), cfg.Alerts.TelegramChatID))
	}
	if cfg.Alerts.SlackWebhookURL != "" {
		alerts.AddChannel(alert.NewSlackChannel(string(cfg.Alerts.SlackWebhookURL)))
	}

	rounds := round.NewController(cfg.RoundDuration(), logger, alerts)

	var hub *stream.Hub
	var streamHandler http.Handler
	if cfg.Stream.Enabled {
		hub = stream.NewHub(logger)
		streamHandler = stream.NewHandler(hub, cfg.Stream.MaxClients, cfg.Stream.AllowedOrigins, logger)
	}

	var broadcaster market.Broadcaster
	if hub != nil {
		broadcaster = hub
	}
	simulator := market.NewSimulator(st, rounds, cfg.TickInterval(), broadcaster, logger)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "leaderboard",
		MaxWorkers:  8,
		MaxCapacity: 256,
	}, logger)
	defer pool.Stop()

	executor := trading.NewExecutor(st, rounds, trading.Options{
		Timeout:     cfg.TradeTimeout(),
		PriceImpact: cfg.Trading.PriceImpactEnabled,
	}, logger)
	queries := query.NewService(st, pool, logger)
	newsClient := news.NewClient(cfg.News.UpstreamURL, time.Duration(cfg.News.TimeoutMS)*time.Millisecond, logger)

	hm := health.NewManager(logger)
	hm.Register("store", func() error { return st.Ping(context.Background()) })
	hm.Register("simulator", simulator.HealthCheck)

	api := server.New(server.Options{
		Port:            cfg.Server.Port,
		OrganizerSecret: string(cfg.Server.OrganizerSecret),
		InitialCash:     decimal.NewFromFloat(cfg.Trading.InitialCash),
		StreamHandler:   streamHandler,
	}, st, executor, queries, rounds, newsClient, hm, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if hub != nil {
		g.Go(func() error { return hub.Run(ctx) })
	}
	g.Go(func() error { return simulator.Run(ctx) })
	g.Go(func() error { return api.Run(ctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Telemetry shutdown failed", "error", err)
	}

	logger.Info("Server shut down gracefully")
}
