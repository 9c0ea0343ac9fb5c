// Package main runs a one-shot wallet scan from the command line.
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
	"github.com/wallet-scanner/internal/models"
	"github.com/wallet-scanner/internal/provider"
	"github.com/wallet-scanner/internal/service"
	"github.com/wallet-scanner/internal/storage"
)

func main() {
	var (
		walletID = flag.String("wallet", "", "Wallet ID to scan")
		timeout  = flag.Duration("timeout", 10*time.Minute, "Overall scan timeout")
	)
	flag.Parse()

	logger := logging.MustNew()
	defer logger.Sync()

	if *walletID == "" {
		logger.Fatal("usage: scan -wallet <wallet-id>")
	}

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
	tokenRepo := storage.NewTokenRepository(postgres)
	universeRepo := storage.NewUniverseRepository(postgres)
	scanRepo := storage.NewScanRepository(postgres)

	// The price cache is optional for a CLI scan; without Redis the
	// valuation engine just has one fewer fallback.
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
	solana := chains.NewSolanaResolver(cfg.Providers.RequestTimeout, cfg.Scan.Concurrency, logger)
	resolver := chains.NewResolver(map[models.ChainFamily]chains.FamilyResolver{
		models.FamilyEVM:    evm,
		models.FamilySolana: solana,
	}, cfg.Scan.ChunkSize, cfg.Scan.Concurrency, logger)

	valuator := service.NewValuationService(prices, pools, priceCache, 0, cfg.Scan.Concurrency, logger)
	universeSvc := service.NewUniverseService(universeRepo, directory, primary, fallback, cfg.Scan.UniverseSize, logger)
	scanSvc := service.NewScanService(directory, walletRepo, tokenRepo, scanRepo,
		universeSvc, universeRepo, resolver, valuator, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	run, err := scanSvc.RunScan(ctx, *walletID)
	if err != nil {
		logger.Error("scan failed", zap.Error(err))
		if run != nil {
			printJSON(run)
		}
		os.Exit(1)
	}

	items, err := scanRepo.GetScanItems(ctx, run.ID)
	if err != nil {
		logger.Warn("failed to load scan items", zap.Error(err))
	}
	printJSON(map[string]interface{}{"run": run, "items": items})
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
