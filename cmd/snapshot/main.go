// Package main runs a one-shot daily portfolio snapshot from the command line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/chains"
	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/provider"
	"github.com/wallet-scanner/internal/protocols"
	"github.com/wallet-scanner/internal/service"
	"github.com/wallet-scanner/internal/storage"
)

func main() {
	var (
		force   = flag.Bool("force", false, "Rerun even if today's snapshot exists")
		timeout = flag.Duration("timeout", 15*time.Minute, "Overall snapshot timeout")
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

	walletRepo := storage.NewWalletRepository(postgres)
	scanRepo := storage.NewScanRepository(postgres)
	snapshotRepo := storage.NewSnapshotRepository(postgres)
	protocolRepo := storage.NewProtocolRepository(postgres)

	var priceCache service.PriceCache
	if redisCache, err := storage.NewRedisCache(&cfg.Database.Redis); err != nil {
		logger.Warn("redis unavailable, price cache disabled", zap.Error(err))
	} else {
		defer redisCache.Close()
		cache, err := storage.NewPriceCache(redisCache, cfg.Providers.PriceMaxAge)
		if err != nil {
			logger.Fatal("failed to build price cache", zap.Error(err))
		}
		priceCache = cache
	}

	prices := provider.NewPriceClient(
		cfg.Providers.PriceBaseURL,
		cfg.Providers.MarketAPIKey,
		cfg.Providers.RequestTimeout,
		cfg.Providers.RequestsPerSecond,
	)
	pools := provider.NewDexPoolClient(
		cfg.Providers.DexPoolBaseURL,
		cfg.Providers.RequestTimeout,
		cfg.Providers.RequestsPerSecond,
	)

	evm := chains.NewEVMResolver(cfg.Providers.RequestTimeout, cfg.Scan.Concurrency, logger)
	defer evm.Close()
	reader := protocols.NewReader(evm, logger)

	valuator := service.NewValuationService(prices, pools, priceCache, 0, cfg.Scan.Concurrency, logger)
	snapshotSvc := service.NewSnapshotService(directory, walletRepo, scanRepo,
		snapshotRepo, protocolRepo, reader, valuator, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	snapshot, err := snapshotSvc.Run(ctx, *force)
	if err != nil {
		logger.Error("daily snapshot failed", zap.Error(err))
		if snapshot != nil {
			printJSON(snapshot)
		}
		os.Exit(1)
	}

	printJSON(snapshot)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
