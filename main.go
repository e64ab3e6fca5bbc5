package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"trade-agent/config"
	"trade-agent/internal/api"
	"trade-agent/internal/bot"
	"trade-agent/internal/broker"
	"trade-agent/internal/circuit"
	"trade-agent/internal/cooldown"
	"trade-agent/internal/database"
	"trade-agent/internal/events"
	"trade-agent/internal/execution"
	"trade-agent/internal/feed"
	"trade-agent/internal/ledger"
	"trade-agent/internal/logging"
	"trade-agent/internal/notification"
	"trade-agent/internal/reconcile"
	"trade-agent/internal/risk"
)

func main() {
	// .env is optional; environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().Str("mode", string(cfg.ExecutionConfig.Mode)).Msg("trade agent starting")

	// Event bus
	eventBus := events.NewEventBus()

	// Notifications
	var notifyManager *notification.Manager
	if cfg.NotificationConfig.Enabled {
		notifyManager = notification.NewManager()
		if cfg.NotificationConfig.Telegram.Enabled {
			notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.NotificationConfig.Telegram.BotToken,
				ChatID:   cfg.NotificationConfig.Telegram.ChatID,
				Enabled:  true,
			}))
			logger.Info().Msg("Telegram notifications enabled")
		}
		if cfg.NotificationConfig.Discord.Enabled {
			notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
				Enabled:    true,
			}))
			logger.Info().Msg("Discord notifications enabled")
		}
	}

	// PostgreSQL is the durable record; the agent will not start without it.
	db, err := database.NewDB(cfg.DatabaseConfig, logging.Component(logger, "database"))
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := db.RunMigrations(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}
	repo := database.NewRepository(db)

	// Redis mirror degrades to process memory when unreachable.
	mirror := database.NewStateMirror(cfg.RedisConfig, logging.Component(logger, "redis"))

	// Price book shared by the loop, the paper broker, and the execution
	// adapter's price sanity checks.
	book := feed.NewPriceBook(logging.Component(logger, "pricebook"))

	feedTimeout := time.Duration(cfg.FeedConfig.TimeoutSeconds) * time.Second
	signalFeed := feed.NewHTTPSignalFeed(cfg.FeedConfig.SignalURL, cfg.FeedConfig.SignalAPIKey,
		feedTimeout, logger)

	var regimeFeed feed.RegimeFeed
	if cfg.FeedConfig.SignalURL != "" {
		regimeFeed = feed.NewHTTPRegimeFeed(cfg.FeedConfig.SignalURL, cfg.FeedConfig.SignalAPIKey, feedTimeout)
	}

	staleAfter := time.Duration(cfg.FeedConfig.StaleAfterSecs) * time.Second
	stream := feed.NewStreamFeed(cfg.FeedConfig.PriceStreamURL, staleAfter,
		logging.Component(logger, "price_stream"))
	stream.Start()
	defer stream.Stop()

	// Broker: paper fills against the price book, live talks HTTP.
	var venue broker.Broker
	if cfg.ExecutionConfig.Mode == execution.ModeLive {
		venue = broker.NewHTTPBroker(cfg.BrokerConfig.BaseURL, cfg.BrokerConfig.APIKey,
			time.Duration(cfg.BrokerConfig.TimeoutSecs)*time.Second,
			logging.Component(logger, "broker"))
	} else {
		venue = broker.NewPaperBroker(book, cfg.BrokerConfig.StartingCash,
			cfg.ExecutionConfig.SlippageBPS, cfg.ExecutionConfig.CommissionPerShare,
			logging.Component(logger, "paper"))
	}

	// Risk plumbing
	cooldowns := cooldown.NewRegistry(time.Duration(cfg.CooldownMinutes) * time.Minute)

	var earningsChecker risk.EarningsChecker
	if cfg.EarningsConfig.Enabled && cfg.FeedConfig.EarningsURL != "" {
		provider := risk.NewHTTPEarningsProvider(cfg.FeedConfig.EarningsURL,
			cfg.FeedConfig.EarningsAPIKey, feedTimeout)
		earningsChecker = risk.NewEarningsCalendar(cfg.EarningsConfig, provider,
			logging.Component(logger, "earnings"))
	}

	gate, err := risk.NewGatekeeper(cfg.RiskConfig, cooldowns, earningsChecker,
		logging.Component(logger, "gatekeeper"))
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid risk configuration")
	}

	breaker := circuit.New(cfg.CircuitConfig)
	positions := ledger.New(cfg.LedgerConfig, logging.Component(logger, "ledger"))
	adapter := execution.NewAdapter(cfg.ExecutionConfig, venue, book,
		logging.Component(logger, "execution"))
	reconciler := reconcile.New(venue, logging.Component(logger, "reconcile"))

	agent := bot.New(cfg.LoopConfig, bot.Deps{
		Signals:  signalFeed,
		Prices:   stream,
		Regime:   regimeFeed,
		Book:     book,
		Broker:   venue,
		Gate:     gate,
		Breaker:  breaker,
		Ledger:   positions,
		Exec:     adapter,
		Recon:    reconciler,
		Cooldown: cooldowns,
		Store:    repo,
		Mirror:   mirror,
		Bus:      eventBus,
		Notify:   notifyManager,
	}, logging.Component(logger, "agent"))

	// Operator API
	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, agent, repo, logging.Component(logger, "api"))
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("api server stopped")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- agent.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
		agent.Stop()
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("agent exited with error")
		}
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}

	logger.Info().Msg("trade agent stopped")
}
