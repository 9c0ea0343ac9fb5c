// Package service contains the orchestration engines of the pipeline:
// token-universe refresh, wallet scanning, valuation, and the daily
// portfolio snapshot. Services depend on narrow store interfaces so the
// persistence layer stays swappable and tests run against in-memory fakes.
package service

import (
	"context"

	"github.com/wallet-scanner/internal/chains"
	"github.com/wallet-scanner/internal/models"
)

// ChainDirectory serves the immutable chain reference data.
type ChainDirectory interface {
	ListChains(ctx context.Context) ([]models.Chain, error)
	GetChainByID(ctx context.Context, id string) (*models.Chain, error)
}

// WalletStore persists tracked wallets. Lookups return nil without error
// when the wallet does not exist.
type WalletStore interface {
	GetWalletByID(ctx context.Context, id string) (*models.Wallet, error)
	GetWalletByChainAndAddress(ctx context.Context, chainID, address string) (*models.Wallet, error)
	ListWallets(ctx context.Context, onlyActive bool) ([]models.Wallet, error)
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
}

// TrackedTokenStore persists the tracked-token set per chain. Upsert keys on
// (chainID, contractOrMint) and must not overwrite non-null metadata with
// null values.
type TrackedTokenStore interface {
	UpsertTrackedToken(ctx context.Context, token *models.TrackedToken) error
	ListTrackedTokens(ctx context.Context, chainID string, onlyActive bool) ([]models.TrackedToken, error)
	CountTrackedTokensByChain(ctx context.Context, chainID string) (int, error)
}

// UniverseStore persists token-universe snapshots and their ranked items.
// GetLatestScanEligibleSnapshot returns nil without error when no eligible
// snapshot exists.
type UniverseStore interface {
	UpsertSnapshot(ctx context.Context, snapshot *models.UniverseSnapshot) error
	ReplaceSnapshotItems(ctx context.Context, snapshotID string, items []models.UniverseItem) error
	GetLatestScanEligibleSnapshot(ctx context.Context, chainID string) (*models.UniverseSnapshot, error)
	GetSnapshotByChainAndDate(ctx context.Context, chainID, asOfDate string) (*models.UniverseSnapshot, error)
	GetSnapshotItems(ctx context.Context, snapshotID string) ([]models.UniverseItem, error)
}

// ScanStore persists scan runs and their per-token items. UpsertScanItem
// keys on (scanID, contractOrMint) so retried writes are idempotent.
type ScanStore interface {
	CreateScanRun(ctx context.Context, run *models.ScanRun) error
	UpdateScanRun(ctx context.Context, run *models.ScanRun) error
	UpsertScanItem(ctx context.Context, item *models.ScanItem) error
	GetLatestSuccessfulScanItems(ctx context.Context, walletID string) ([]models.ScanItem, error)
}

// SnapshotStore persists daily portfolio snapshots.
type SnapshotStore interface {
	UpsertDailySnapshot(ctx context.Context, snapshot *models.DailySnapshot) error
	UpsertSnapshotItem(ctx context.Context, item *models.SnapshotItem) error
	GetDailySnapshotByDate(ctx context.Context, date string) (*models.DailySnapshot, error)
}

// ProtocolContractStore lists the protocol contracts eligible for the daily
// snapshot: active, with a mapping that passed validation.
type ProtocolContractStore interface {
	ListSnapshotEligibleContracts(ctx context.Context, chainID string) ([]models.ProtocolContract, error)
}

// BalanceResolver resolves wallet balances per chain family.
// *chains.Resolver satisfies it.
type BalanceResolver interface {
	ResolveBalances(ctx context.Context, chain *models.Chain, walletAddress string, tokens []chains.TokenDescriptor) ([]chains.BalanceRecord, error)
	ReadTokenMetadata(ctx context.Context, chain *models.Chain, contract string) (*chains.TokenMetadata, error)
}

// ProtocolReader resolves protocol contract positions through ABI mappings.
// *protocols.Reader satisfies it.
type ProtocolReader interface {
	ResolvePosition(ctx context.Context, chain *models.Chain, walletAddress string, contract *models.ProtocolContract) (*models.ProtocolPosition, error)
}

// PriceCache is the historical known-price fallback consulted when both live
// price sources miss a reference. Implementations enforce the configured
// max-age so arbitrarily stale prices are never reused; Get returns ok=false
// for absent or expired entries.
type PriceCache interface {
	GetPrice(ctx context.Context, chainID, ref string) (price float64, ok bool, err error)
	SetPrice(ctx context.Context, chainID, ref string, price float64) error
}

// ScanHistorySink receives finished scan items for long-term analytical
// storage. Failures are logged, never fatal to the scan.
type ScanHistorySink interface {
	RecordScanItems(ctx context.Context, run *models.ScanRun, items []models.ScanItem) error
}
