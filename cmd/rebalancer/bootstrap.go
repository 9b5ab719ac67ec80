package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"

	"llm-rebalancer/internal/agent"
	"llm-rebalancer/internal/engine"
	"llm-rebalancer/internal/eod"
	"llm-rebalancer/internal/eod/eodobs"
	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/ledger"
	"llm-rebalancer/internal/llm"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/market/static"
	"llm-rebalancer/internal/market/yahoo"
	"llm-rebalancer/internal/metrics"
	"llm-rebalancer/internal/news"
	"llm-rebalancer/internal/notify"
	"llm-rebalancer/internal/recommend"
	"llm-rebalancer/internal/store"
	"llm-rebalancer/internal/tradelog"
)

// initializeSystem loads .env and sets up the logger, which also installs
// the tracer
func initializeSystem(debug bool) error {
	_ = godotenv.Load()

	logCfg := logger.LoadConfigFromEnv()
	if debug {
		logCfg.Level = "DEBUG"
	}
	if err := logger.InitWithConfig(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// initializeMetrics never fails the process; a nil collector is a no-op.
func initializeMetrics(ctx context.Context) *metrics.Collector {
	m, err := metrics.New()
	if err != nil {
		logger.Warn(ctx, "Metrics disabled", "error", err)
		return nil
	}
	return m
}

// initializePrices picks the quote source named in the config
func initializePrices(ctx context.Context, cfg *store.Config, m *metrics.Collector) interfaces.PriceProvider {
	if cfg.Market.Source == "STATIC" {
		logger.Info(ctx, "Using STATIC prices from config", "symbols", len(cfg.Market.StaticPrices))
		return static.New(cfg.Market.StaticPrices)
	}
	logger.Info(ctx, "Using Yahoo Finance prices", "timeout", cfg.Market.Timeout)
	return yahoo.New(cfg.Market.Timeout, m)
}

// initializeAgent wires the recommendation pipeline, the engine and the
// ledger, seeding the ledger on first run
func initializeAgent(ctx context.Context, cfg *store.Config, m *metrics.Collector, ledgerStore interfaces.LedgerStore) (*agent.Agent, error) {
	advisor, err := llm.New(ctx, cfg, m)
	if err != nil {
		return nil, err
	}
	if cfg.LLM.Provider == "NOOP" {
		logger.Warn(ctx, "No LLM provider configured - every cycle will be skipped")
	}

	prices := initializePrices(ctx, cfg, m)
	newsService := news.NewServiceFromConfig(cfg, advisor, m)
	recommender := recommend.New(advisor, prices, newsService, recommend.ConfigFrom(cfg))

	return agent.New(ctx, recommender, prices, engine.New(), ledger.NewWriter(ledgerStore), agent.Options{
		MaxInvestment: cfg.MaxInvestment,
		Interval:      cfg.RebalanceInterval,
		Metrics:       m,
		Tradelog:      tradelog.New(cfg.Tradelog.Dir),
	})
}

// initializeEOD returns the EOD summarizer wrapped with observability
func initializeEOD(ctx context.Context, cfg *store.Config) (interfaces.EodSummarizer, error) {
	s, err := eod.NewSummarizer(cfg.Tradelog.Dir, cfg.Tradelog.EODCutoff)
	if err != nil {
		return nil, err
	}
	return eodobs.Wrap(ctx, s), nil
}

// initializeSender mails when notify is enabled and logs otherwise
func initializeSender(ctx context.Context, cfg *store.Config) (interfaces.Sender, error) {
	if !cfg.Notify.Enabled {
		logger.Info(ctx, "Notify disabled in config - reports go to the log")
		return notify.LogSender{}, nil
	}
	return notify.NewSMTPSender(cfg)
}

// compressOldLogs gzips trade logs past the retention window
func compressOldLogs(ctx context.Context, cfg *store.Config) {
	if cfg.Tradelog.RetentionDays <= 0 {
		return
	}
	n, err := tradelog.New(cfg.Tradelog.Dir).CompressOlder(cfg.Tradelog.RetentionDays)
	if err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "Compressed old trade logs", "files", n)
	}
}
