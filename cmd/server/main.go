// Package main is the wallet scanner server: HTTP API plus the scheduled
// daily universe refresh and portfolio snapshot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/api"
	"github.com/wallet-scanner/internal/chains"
	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/job"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/models"
	"github.com/wallet-scanner/internal/protocols"
	"github.com/wallet-scanner/internal/provider"
	"github.com/wallet-scanner/internal/service"
	"github.com/wallet-scanner/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	logger := logging.MustNew()
	defer logger.Sync()

	chainList, err := config.LoadChains(cfg.ChainsFile)
	if err != nil {
		logger.Fatal("failed to load chain directory", zap.Error(err))
	}
	directory := storage.NewChainDirectory(chainList)
	logger.Info("chain directory loaded", zap.Int("chains", len(chainList)))

	// Storage connections. ClickHouse is the analytical sink; the server
	// still runs without it, degraded to Postgres-only.
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer postgres.Close()

	redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisCache.Close()

	var history *storage.ScanHistoryRepository
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.Warn("clickhouse unavailable, scan history disabled", zap.Error(err))
	} else {
		defer clickhouse.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := clickhouse.EnsureScanHistorySchema(ctx); err != nil {
			logger.Warn("clickhouse schema failed, scan history disabled", zap.Error(err))
		} else {
			history = storage.NewScanHistoryRepository(clickhouse)
		}
		cancel()
	}

	priceCache, err := storage.NewPriceCache(redisCache, cfg.Providers.PriceMaxAge)
	if err != nil {
		logger.Fatal("failed to build price cache", zap.Error(err))
	}

	// Repositories
	walletRepo := storage.NewWalletRepository(postgres)
	tokenRepo := storage.NewTokenRepository(postgres)
	universeRepo := storage.NewUniverseRepository(postgres)
	scanRepo := storage.NewScanRepository(postgres)
	snapshotRepo := storage.NewSnapshotRepository(postgres)
	protocolRepo := storage.NewProtocolRepository(postgres)

	// Provider clients
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

	// Chain resolvers
	evm := chains.NewEVMResolver(cfg.Providers.RequestTimeout, cfg.Scan.Concurrency, logger)
	defer evm.Close()
	solana := chains.NewSolanaResolver(cfg.Providers.RequestTimeout, cfg.Scan.Concurrency, logger)
	resolver := chains.NewResolver(map[models.ChainFamily]chains.FamilyResolver{
		models.FamilyEVM:    evm,
		models.FamilySolana: solana,
	}, cfg.Scan.ChunkSize, cfg.Scan.Concurrency, logger)
	reader := protocols.NewReader(evm, logger)

	// Engines
	valuator := service.NewValuationService(prices, pools, priceCache, 0, cfg.Scan.Concurrency, logger)
	universeSvc := service.NewUniverseService(universeRepo, directory, primary, fallback, cfg.Scan.UniverseSize, logger)

	var historySink service.ScanHistorySink
	if history != nil {
		historySink = history
	}
	scanSvc := service.NewScanService(directory, walletRepo, tokenRepo, scanRepo,
		universeSvc, universeRepo, resolver, valuator, historySink, logger)
	snapshotSvc := service.NewSnapshotService(directory, walletRepo, scanRepo,
		snapshotRepo, protocolRepo, reader, valuator, logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := job.NewScheduler(rootCtx, universeSvc, snapshotSvc, logger)
	if err := scheduler.Register(os.Getenv("REFRESH_CRON"), os.Getenv("SNAPSHOT_CRON")); err != nil {
		logger.Fatal("failed to register scheduled jobs", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	var historyStore api.HistoryStore
	if history != nil {
		historyStore = history
	}
	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    5 * time.Minute, // scans run synchronously
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		RequestsPerSec:  20,
		Burst:           40,
	}, api.Deps{
		Chains:    directory,
		Wallets:   walletRepo,
		Tokens:    tokenRepo,
		Scans:     scanRepo,
		Universes: universeRepo,
		Snapshots: snapshotRepo,
		Protocols: protocolRepo,
		History:   historyStore,
		Scanner:   scanSvc,
		Refresher: universeSvc,
		Snapshot:  snapshotSvc,
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("api server stopped", zap.Error(err))
		}
	}

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
