package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_trend_breakout/internal/config"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"github.com/vitos/crypto_trend_breakout/internal/infrastructure/events"
	"github.com/vitos/crypto_trend_breakout/internal/infrastructure/exchange"
	"github.com/vitos/crypto_trend_breakout/internal/infrastructure/logger"
	"github.com/vitos/crypto_trend_breakout/internal/infrastructure/storage"
	"github.com/vitos/crypto_trend_breakout/internal/usecase"
	"github.com/vitos/crypto_trend_breakout/internal/web"
	"go.uber.org/zap"
)

type repository interface {
	domain.TradeRepository
	Close() error
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, closeLog, err := logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level, logger.Rotation{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, log); err != nil {
		log.Error("Bot stopped with error", zap.Error(err))
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Init Storage
	repo, err := openRepository(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to init %s storage: %w", cfg.Storage.Driver, err)
	}
	defer repo.Close()

	// 4. Init Exchange
	venue := openExchange(cfg.Exchange, cfg.Trade.QtyDecimals)
	log.Info("Exchange selected",
		zap.String("exchange", venue.Name()),
		zap.String("symbol", cfg.Strategy.Symbol),
		zap.Duration("timeframe", cfg.Strategy.Timeframe))

	// 5. Event sinks
	var publishers []domain.EventPublisher
	var hub *web.Hub
	if cfg.Server.Enabled {
		hub = web.NewHub(log)
		go hub.Run(ctx)
		publishers = append(publishers, hub)
	}
	if cfg.Events.NatsURL != "" {
		nc, js, err := events.InitNATS(cfg.Events.NatsURL, cfg.Events.Subject, log)
		if err != nil {
			// Publishing is best effort; trading does not depend on it.
			log.Error("Failed to connect to NATS, events stay local", zap.Error(err))
		} else {
			defer nc.Drain()
			publishers = append(publishers, events.NewPublisher(js, cfg.Events.Subject))
			log.Info("Publishing events to NATS", zap.String("subject", cfg.Events.Subject))
		}
	}
	journal := usecase.NewEventJournal(repo, cfg.Strategy.Symbol, log, publishers...)

	// 6. Core components
	store := usecase.NewTradeStateStore(time.Now(), cfg.Location())
	risk := usecase.NewRiskManager(store, venue, journal, usecase.RiskLimits{
		Symbol:          cfg.Strategy.Symbol,
		QuoteCurrency:   cfg.Strategy.QuoteCurrency,
		MaxTradesPerDay: cfg.Risk.MaxTradesPerDay,
		MaxDailyLoss:    cfg.Risk.MaxDailyLoss,
		MaxSlippage:     cfg.Trade.MaxSlippage,
		MinBalance:      cfg.Risk.MinBalance,
		PanicDropPct:    cfg.Risk.PanicDropPct,
	}, log)
	executor := usecase.NewOrderExecutor(venue, store, risk, journal, usecase.ExecutorConfig{
		Symbol:          cfg.Strategy.Symbol,
		StopLossPct:     cfg.Trade.StopLossPct,
		RiskRewardRatio: cfg.Trade.RiskRewardRatio,
		OrderTimeout:    cfg.Trade.OrderTimeout,
		PollInterval:    cfg.Trade.PollInterval,
		ExitMode:        cfg.Trade.ExitMode,
		AllowShort:      cfg.Trade.AllowShort,
	}, log)
	risk.SetFlattener(executor)

	evaluator := usecase.NewBreakoutEvaluator(
		cfg.Strategy.ADXPeriod,
		cfg.Strategy.ADXLow,
		cfg.Strategy.ADXHigh,
		cfg.Strategy.BreakoutLookback,
		cfg.Trade.AllowShort,
	)
	scheduler := usecase.NewScheduler(venue, cfg.Strategy.Timeframe, cfg.Schedule.Lead, cfg.Schedule.Settle, log)

	trader := usecase.NewTrader(venue, evaluator, store, risk, executor, scheduler, journal, usecase.TraderConfig{
		Symbol:          cfg.Strategy.Symbol,
		QuoteCurrency:   cfg.Strategy.QuoteCurrency,
		Timeframe:       cfg.Strategy.Timeframe,
		CandleLimit:     cfg.Strategy.CandleLimit,
		MinCandles:      max(cfg.Strategy.MinCandles, evaluator.MinCandles()),
		Size:            cfg.Trade.Size,
		SizeUnit:        cfg.Trade.SizeUnit,
		QtyDecimals:     cfg.Trade.QtyDecimals,
		MonitorInterval: cfg.Schedule.MonitorInterval,
		ErrorBackoff:    cfg.Schedule.ErrorBackoff,
	}, log)

	// 7. Shutdown handling
	shutdown := usecase.NewShutdownController(cancel, executor, journal, log)
	stopSignals := shutdown.Listen()
	defer stopSignals()

	// 8. Startup checks
	if err := trader.CheckStartup(ctx); err != nil {
		return err
	}
	if err := trader.Reconcile(ctx); err != nil {
		return err
	}

	// 9. Start Server
	var server *web.Server
	if cfg.Server.Enabled {
		server = web.NewServer(cfg.Server.Port, cfg.Strategy.Symbol, store, repo, shutdown, hub, log)
		go func() {
			if err := server.Start(); err != nil {
				log.Error("Server failed", zap.Error(err))
			}
		}()
	}

	// 10. Trade until a signal arrives
	trader.Run(ctx)

	if shutdown.ShuttingDown() {
		<-shutdown.Done()
	}
	log.Info("Shutting down...")
	if server != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Server shutdown", zap.Error(err))
		}
	}
	return nil
}

func openRepository(ctx context.Context, cfg config.StorageConfig) (repository, error) {
	if cfg.Driver == "postgres" {
		return storage.NewPostgresStore(ctx, cfg.DSN)
	}
	return storage.NewSQLiteStore(cfg.DSN)
}

// openExchange returns the live venue or a paper venue backed by public market data.
func openExchange(cfg config.ExchangeConfig, qtyDecimals int32) domain.Exchange {
	if cfg.Name == "paper" {
		market := exchange.NewKrakenAdapter("", "", cfg.RESTEndpoint)
		return exchange.NewPaperAdapter(market, cfg.Paper.Balances, cfg.Paper.FillImmediately)
	}
	k := exchange.NewKrakenAdapter(cfg.APIKey, cfg.APISecret, cfg.RESTEndpoint)
	// Anything below one quantity step is dust; Reconcile decides what is ours.
	k.EnableSpotPositions(math.Pow10(-int(qtyDecimals)))
	return k
}
