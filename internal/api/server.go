// Package api provides the HTTP surface of the scanner: wallet and token
// registration, scan triggers, universe refresh, protocol contracts, and
// daily snapshot access.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/models"
	"github.com/wallet-scanner/internal/service"
	"github.com/wallet-scanner/internal/storage"
)

// Engine interfaces for dependency injection and testing.

// ScanRunner executes wallet scans.
type ScanRunner interface {
	RunScan(ctx context.Context, walletID string) (*models.ScanRun, error)
}

// UniverseRefresher refreshes token-universe snapshots.
type UniverseRefresher interface {
	RefreshChain(ctx context.Context, chain *models.Chain, asOfDate string) (*models.UniverseSnapshot, error)
	RefreshAllChains(ctx context.Context, asOfDate string) ([]service.RefreshOutcome, error)
}

// SnapshotRunner produces the daily portfolio snapshot.
type SnapshotRunner interface {
	Run(ctx context.Context, force bool) (*models.DailySnapshot, error)
}

// Store interfaces: the read/write subset the handlers need.

// ChainDirectory serves chain reference data.
type ChainDirectory interface {
	ListChains(ctx context.Context) ([]models.Chain, error)
	GetChainByID(ctx context.Context, id string) (*models.Chain, error)
}

// WalletStore persists wallets.
type WalletStore interface {
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	GetWalletByID(ctx context.Context, id string) (*models.Wallet, error)
	GetWalletByChainAndAddress(ctx context.Context, chainID, address string) (*models.Wallet, error)
	ListWallets(ctx context.Context, onlyActive bool) ([]models.Wallet, error)
}

// TokenStore persists tracked tokens.
type TokenStore interface {
	UpsertTrackedToken(ctx context.Context, token *models.TrackedToken) error
	ListTrackedTokens(ctx context.Context, chainID string, onlyActive bool) ([]models.TrackedToken, error)
}

// ScanStore reads persisted scan runs and items.
type ScanStore interface {
	GetScanRun(ctx context.Context, id string) (*models.ScanRun, error)
	GetScanItems(ctx context.Context, scanID string) ([]models.ScanItem, error)
}

// UniverseStore reads persisted universe snapshots.
type UniverseStore interface {
	GetLatestScanEligibleSnapshot(ctx context.Context, chainID string) (*models.UniverseSnapshot, error)
	GetSnapshotItems(ctx context.Context, snapshotID string) ([]models.UniverseItem, error)
}

// SnapshotStore reads persisted daily snapshots.
type SnapshotStore interface {
	GetDailySnapshotByDate(ctx context.Context, date string) (*models.DailySnapshot, error)
	GetSnapshotItems(ctx context.Context, snapshotID string) ([]models.SnapshotItem, error)
}

// ProtocolStore persists protocol contracts.
type ProtocolStore interface {
	CreateContract(ctx context.Context, contract *models.ProtocolContract) error
	UpdateValidationStatus(ctx context.Context, id string, status models.ValidationStatus) error
	GetContractByID(ctx context.Context, id string) (*models.ProtocolContract, error)
}

// HistoryStore reads the balance history time series.
type HistoryStore interface {
	GetBalanceHistory(ctx context.Context, walletID, contractOrMint string, from, to time.Time) ([]storage.BalanceHistoryPoint, error)
}

// Server is the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	logger     *zap.Logger
	config     *ServerConfig

	chains    ChainDirectory
	wallets   WalletStore
	tokens    TokenStore
	scans     ScanStore
	universes UniverseStore
	snapshots SnapshotStore
	protocols ProtocolStore
	history   HistoryStore

	scanner   ScanRunner
	refresher UniverseRefresher
	snapshot  SnapshotRunner
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  float64
	Burst           int
}

// Deps bundles the server's collaborators. History is optional; when nil
// the history endpoint returns 503.
type Deps struct {
	Chains    ChainDirectory
	Wallets   WalletStore
	Tokens    TokenStore
	Scans     ScanStore
	Universes UniverseStore
	Snapshots SnapshotStore
	Protocols ProtocolStore
	History   HistoryStore

	Scanner   ScanRunner
	Refresher UniverseRefresher
	Snapshot  SnapshotRunner
}

// NewServer creates an API server instance.
func NewServer(config *ServerConfig, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:    mux.NewRouter(),
		logger:    logger,
		config:    config,
		chains:    deps.Chains,
		wallets:   deps.Wallets,
		tokens:    deps.Tokens,
		scans:     deps.Scans,
		universes: deps.Universes,
		snapshots: deps.Snapshots,
		protocols: deps.Protocols,
		history:   deps.History,
		scanner:   deps.Scanner,
		refresher: deps.Refresher,
		snapshot:  deps.Snapshot,
	}

	s.setupRouter()

	return s
}

func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSec, s.config.Burst)

	// Middleware order matters: logging wraps everything, recovery must be
	// inside logging so panics still produce a logged 500.
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Wallets and scans
	api.HandleFunc("/wallets", s.handleRegisterWallet).Methods("POST")
	api.HandleFunc("/wallets", s.handleListWallets).Methods("GET")
	api.HandleFunc("/wallets/{id}", s.handleGetWallet).Methods("GET")
	api.HandleFunc("/wallets/{id}/scans", s.handleTriggerScan).Methods("POST")
	api.HandleFunc("/wallets/{id}/history", s.handleBalanceHistory).Methods("GET")
	api.HandleFunc("/scans/{id}", s.handleGetScan).Methods("GET")

	// Chains, tracked tokens, universe
	api.HandleFunc("/chains", s.handleListChains).Methods("GET")
	api.HandleFunc("/chains/{chainId}/tokens", s.handleListTokens).Methods("GET")
	api.HandleFunc("/chains/{chainId}/universe", s.handleGetUniverse).Methods("GET")
	api.HandleFunc("/tokens", s.handleRegisterToken).Methods("POST")
	api.HandleFunc("/universe/refresh", s.handleRefreshUniverse).Methods("POST")

	// Protocol contracts
	api.HandleFunc("/protocols", s.handleRegisterProtocol).Methods("POST")
	api.HandleFunc("/protocols/{id}", s.handleGetProtocol).Methods("GET")

	// Daily snapshots
	api.HandleFunc("/snapshots", s.handleTriggerSnapshot).Methods("POST")
	api.HandleFunc("/snapshots/{date}", s.handleGetSnapshot).Methods("GET")
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start begins listening for requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("api server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
