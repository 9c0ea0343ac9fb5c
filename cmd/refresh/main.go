// Package main runs a one-shot token-universe refresh from the command line.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/provider"
	"github.com/wallet-scanner/internal/service"
	"github.com/wallet-scanner/internal/storage"
)

func main() {
	var (
		chainID = flag.String("chain", "", "Chain ID to refresh (empty refreshes all active chains)")
		timeout = flag.Duration("timeout", 5*time.Minute, "Overall refresh timeout")
	)
	flag.Parse()

	logger := logging.MustNew()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	chainList, err := config.LoadChains(cfg.ChainsFile)
	if err != nil {
		logger.Fatal("failed to load chain directory", zap.Error(err))
	}
	directory := storage.NewChainDirectory(chainList)

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer postgres.Close()

	universeRepo := storage.NewUniverseRepository(postgres)

	primary := provider.NewMarketClient(provider.MarketClientConfig{
		BaseURL:           cfg.Providers.MarketBaseURL,
		APIKey:            cfg.Providers.MarketAPIKey,
		Timeout:           cfg.Providers.RequestTimeout,
		RequestsPerSecond: cfg.Providers.RequestsPerSecond,
		Concurrency:       cfg.Scan.Concurrency,
		IconCacheTTL:      cfg.Providers.IconCacheTTL,
	}, logger)
	fallback := provider.NewFallbackMarketClient(
		cfg.Providers.MarketFallbackURL,
		cfg.Providers.MarketFallbackKey,
		cfg.Providers.RequestTimeout,
		cfg.Providers.RequestsPerSecond,
	)

	universeSvc := service.NewUniverseService(universeRepo, directory, primary, fallback, cfg.Scan.UniverseSize, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	asOfDate := service.UniverseDate(time.Now())

	if *chainID != "" {
		chain, err := directory.GetChainByID(ctx, *chainID)
		if err != nil || chain == nil {
			logger.Fatal("unknown chain", zap.String("chain", *chainID))
		}
		snapshot, err := universeSvc.RefreshChain(ctx, chain, asOfDate)
		if err != nil {
			logger.Error("refresh failed", zap.String("chain", *chainID), zap.Error(err))
			os.Exit(1)
		}
		logger.Info("universe refreshed",
			zap.String("chain", chain.ID),
			zap.String("snapshot", snapshot.ID),
			zap.String("status", string(snapshot.Status)),
			zap.Int("items", snapshot.ItemCount),
		)
		return
	}

	outcomes, err := universeSvc.RefreshAllChains(ctx, asOfDate)
	if err != nil {
		logger.Fatal("refresh failed", zap.Error(err))
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			logger.Warn("chain refresh degraded",
				zap.String("chain", o.ChainID),
				zap.String("status", string(o.Status)),
				zap.Error(o.Err),
			)
			continue
		}
		logger.Info("chain refreshed",
			zap.String("chain", o.ChainID),
			zap.String("snapshot", o.ActiveSnapshotID),
			zap.String("status", string(o.Status)),
		)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
