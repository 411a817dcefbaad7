package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ajseidenfrau/NVSTWZ/internal/bot"
	"github.com/ajseidenfrau/NVSTWZ/internal/broker"
	"github.com/ajseidenfrau/NVSTWZ/internal/config"
	"github.com/ajseidenfrau/NVSTWZ/internal/feed"
	"github.com/ajseidenfrau/NVSTWZ/internal/indicators"
	"github.com/ajseidenfrau/NVSTWZ/internal/monitoring"
	"github.com/ajseidenfrau/NVSTWZ/internal/notifications"
	"github.com/ajseidenfrau/NVSTWZ/internal/order"
	"github.com/ajseidenfrau/NVSTWZ/internal/portfolio"
	"github.com/ajseidenfrau/NVSTWZ/internal/reporting"
	"github.com/ajseidenfrau/NVSTWZ/internal/risk"
	"github.com/ajseidenfrau/NVSTWZ/internal/signal"
	"github.com/ajseidenfrau/NVSTWZ/pkg/logger"
)

func main() {
	var (
		envFile = flag.String("env", ".env", "Environment file path (default: .env)")
		once    = flag.Bool("once", false, "Run a single decision cycle and exit")
	)
	flag.Parse()

	// Load environment variables from .env file, if present.
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load %s (%v), using environment variables", *envFile, err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFile)
	defer logger.Sync()
	zlog := logger.GetLogger()

	source, err := buildFeedSource(cfg)
	if err != nil {
		zlog.Fatal("feed source", zap.Error(err))
	}
	book := feed.NewBook(source, cfg.Feed.NewsLookbackHours, cfg.Feed.FetchTimeout, zlog)

	client, err := buildBrokerClient(cfg, book)
	if err != nil {
		zlog.Fatal("broker client", zap.Error(err))
	}
	producers := []indicators.Producer{
		indicators.NewMomentum(cfg.Signals.MomentumWindow),
		indicators.NewRSI(cfg.Signals.RSIPeriod),
		indicators.NewMACD(cfg.Signals.MACDFast, cfg.Signals.MACDSlow, cfg.Signals.MACDSignal),
		indicators.NewSentiment(cfg.Feed.NewsLookbackHours),
	}
	weights := map[indicators.Kind]float64{
		indicators.KindMomentum:  cfg.Signals.MomentumWeight,
		indicators.KindRSI:       cfg.Signals.RSIWeight,
		indicators.KindMACD:      cfg.Signals.MACDWeight,
		indicators.KindSentiment: cfg.Signals.SentimentWeight,
	}
	generator := signal.NewGenerator(producers, weights, cfg.Signals.MinConfidence, zlog)

	ledger := portfolio.NewLedger(cfg.Trading.InitialCapital)
	riskMgr := risk.NewManager(cfg.Trading, zlog)
	orders := order.NewManager(client, ledger, riskMgr, cfg.Orders, zlog)

	sink, err := buildSinks(cfg, zlog)
	if err != nil {
		zlog.Fatal("report sinks", zap.Error(err))
	}
	defer sink.Close()

	var notifier notifications.Notifier = notifications.Noop{}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		notifier = notifications.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
	}

	health := monitoring.NewHealthChecker(cfg.Trading.CycleInterval)
	startObservabilityServers(cfg, health, zlog)

	engine, err := bot.NewEngine(cfg, book, generator, riskMgr, orders, ledger, sink, notifier, health, zlog)
	if err != nil {
		zlog.Fatal("engine", zap.Error(err))
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		engine.RunOnce(ctx)
		return
	}
	if err := engine.Run(ctx); err != nil && err != context.Canceled {
		zlog.Error("engine exited", zap.Error(err))
	}
}

func buildFeedSource(cfg *config.Config) (feed.Source, error) {
	switch cfg.Feed.Source {
	case "simulator":
		return feed.NewSimulatedSource(cfg.Feed.SimulatorSeed, cfg.Feed.HistoryBars), nil
	case "alpaca":
		return feed.NewAlpacaSource(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Feed.HistoryBars), nil
	default:
		return nil, fmt.Errorf("unknown feed source %q", cfg.Feed.Source)
	}
}

func buildBrokerClient(cfg *config.Config, book *feed.Book) (broker.ExecutionClient, error) {
	switch cfg.Broker.Name {
	case "simulator":
		// Simulated fills happen at the latest snapshot price.
		return broker.NewSimulator(func(symbol string) (float64, bool) {
			snap, ok := book.Snapshot(symbol)
			if !ok {
				return 0, false
			}
			return snap.Price, true
		}), nil
	case "alpaca":
		return broker.NewAlpacaClient(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Broker.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker.Name)
	}
}

func buildSinks(cfg *config.Config, zlog *zap.Logger) (reporting.Sink, error) {
	var sinks []reporting.Sink
	if cfg.Reports.Console {
		sinks = append(sinks, reporting.NewConsoleSink())
	}
	if cfg.Reports.SQLitePath != "" {
		s, err := reporting.NewSQLiteSink(cfg.Reports.SQLitePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Reports.ExcelDir != "" {
		s, err := reporting.NewExcelSink(cfg.Reports.ExcelDir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return reporting.NewMulti(zlog, sinks...), nil
}

func startObservabilityServers(cfg *config.Config, health *monitoring.HealthChecker, zlog *zap.Logger) {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", monitoring.NewMetricsHandler())
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Monitor.PrometheusPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.Handle("/health", health)
	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Monitor.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Warn("health server stopped", zap.Error(err))
		}
	}()
}
