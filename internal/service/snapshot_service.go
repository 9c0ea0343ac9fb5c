package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/models"
)

// SnapshotService aggregates every wallet's held token positions and every
// eligible protocol contract's position into one daily portfolio snapshot.
// At most one snapshot is produced per UTC date unless forced.
type SnapshotService struct {
	chains    ChainDirectory
	wallets   WalletStore
	scans     ScanStore
	snapshots SnapshotStore
	protocols ProtocolContractStore
	reader    ProtocolReader
	valuator  Valuator
	logger    *zap.Logger
}

// NewSnapshotService creates the daily snapshot orchestrator.
func NewSnapshotService(
	chainDir ChainDirectory,
	wallets WalletStore,
	scans ScanStore,
	snapshots SnapshotStore,
	protocols ProtocolContractStore,
	reader ProtocolReader,
	valuator Valuator,
	logger *zap.Logger,
) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotService{
		chains:    chainDir,
		wallets:   wallets,
		scans:     scans,
		snapshots: snapshots,
		protocols: protocols,
		reader:    reader,
		valuator:  valuator,
		logger:    logger,
	}
}

// Run produces the daily snapshot for today (UTC). Without force, an
// existing non-failed snapshot for the date is returned as-is. Per-item
// failures are aggregated into the error message and degrade the status to
// partial; only a run-level failure marks the snapshot failed.
func (s *SnapshotService) Run(ctx context.Context, force bool) (*models.DailySnapshot, error) {
	date := UniverseDate(time.Now())

	existing, err := s.snapshots.GetDailySnapshotByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load daily snapshot: %w", err)
	}
	if existing != nil && existing.Status != models.RunFailed && !force {
		s.logger.Info("daily snapshot already exists",
			zap.String("date", date),
			zap.String("status", string(existing.Status)),
		)
		return existing, nil
	}

	snapshot := &models.DailySnapshot{
		ID:           uuid.NewString(),
		SnapshotDate: date,
		CreatedAt:    time.Now().UTC(),
	}
	if existing != nil {
		snapshot.ID = existing.ID
		snapshot.CreatedAt = existing.CreatedAt
	}

	result, err := s.collect(ctx, snapshot.ID)
	now := time.Now().UTC()
	snapshot.FinishedAt = &now
	if err != nil {
		return snapshot, s.failRun(ctx, snapshot, err)
	}

	for i := range result.items {
		if err := s.snapshots.UpsertSnapshotItem(ctx, &result.items[i]); err != nil {
			return snapshot, s.failRun(ctx, snapshot, fmt.Errorf("persist snapshot item: %w", err))
		}
	}

	snapshot.ItemCount = len(result.items)
	snapshot.TotalUSD = result.totalUSD
	snapshot.Status = models.RunSuccess
	if result.unknownCount > 0 || len(result.errs) > 0 {
		snapshot.Status = models.RunPartial
	}
	if len(result.errs) > 0 {
		msg := strings.Join(result.errs, "; ")
		snapshot.ErrorMessage = &msg
	}
	if err := s.snapshots.UpsertDailySnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persist daily snapshot: %w", err)
	}

	s.logger.Info("daily snapshot finished",
		zap.String("date", date),
		zap.String("status", string(snapshot.Status)),
		zap.Int("items", snapshot.ItemCount),
		zap.Float64("totalUsd", snapshot.TotalUSD),
		zap.Int("unknown", result.unknownCount),
		zap.Int("errors", len(result.errs)),
	)
	return snapshot, nil
}

// failRun persists the failed status record and returns the run error.
func (s *SnapshotService) failRun(ctx context.Context, snapshot *models.DailySnapshot, runErr error) error {
	msg := runErr.Error()
	snapshot.Status = models.RunFailed
	snapshot.ErrorMessage = &msg
	if err := s.snapshots.UpsertDailySnapshot(ctx, snapshot); err != nil {
		s.logger.Error("failed-snapshot write failed",
			zap.String("date", snapshot.SnapshotDate),
			zap.Error(err),
		)
	}
	return runErr
}

type snapshotResult struct {
	items        []models.SnapshotItem
	totalUSD     float64
	unknownCount int
	errs         []string
}

// collect gathers token and protocol positions for every active wallet and
// chain. Per-wallet and per-protocol failures land in errs and do not abort
// the remaining work.
func (s *SnapshotService) collect(ctx context.Context, snapshotID string) (*snapshotResult, error) {
	chainList, err := s.chains.ListChains(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	chainByID := make(map[string]*models.Chain, len(chainList))
	for i := range chainList {
		chainByID[chainList[i].ID] = &chainList[i]
	}

	wallets, err := s.wallets.ListWallets(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}

	result := &snapshotResult{}
	walletsByChain := make(map[string][]models.Wallet)
	for _, wallet := range wallets {
		chain, ok := chainByID[wallet.ChainID]
		if !ok || !chain.IsActive {
			continue
		}
		walletsByChain[wallet.ChainID] = append(walletsByChain[wallet.ChainID], wallet)
		s.collectWalletTokens(ctx, snapshotID, chain, wallet, result)
	}

	for chainID, chainWallets := range walletsByChain {
		s.collectProtocolPositions(ctx, snapshotID, chainByID[chainID], chainWallets, result)
	}
	return result, nil
}

// collectWalletTokens values the held items of a wallet's latest
// successful/partial scan and appends one token snapshot item each.
func (s *SnapshotService) collectWalletTokens(ctx context.Context, snapshotID string, chain *models.Chain, wallet models.Wallet, result *snapshotResult) {
	scanItems, err := s.scans.GetLatestSuccessfulScanItems(ctx, wallet.ID)
	if err != nil {
		result.errs = append(result.errs, fmt.Sprintf("wallet %s: load scan items: %v", wallet.ID, err))
		return
	}

	positions := make([]Position, 0, len(scanItems))
	for _, item := range scanItems {
		if !item.Held {
			continue
		}
		symbol := ""
		if item.Symbol != nil {
			symbol = *item.Symbol
		}
		ref := ""
		if models.IsNativeAssetID(item.ContractOrMint) {
			ref = chain.WrappedNativeContract
		}
		positions = append(positions, Position{
			ContractOrMint: item.ContractOrMint,
			ValuationRef:   ref,
			Symbol:         symbol,
			Quantity:       item.BalanceNorm,
		})
	}
	if len(positions) == 0 {
		return
	}

	valued, err := s.valuator.ValuatePositions(ctx, chain, positions)
	if err != nil {
		result.errs = append(result.errs, fmt.Sprintf("wallet %s: valuation: %v", wallet.ID, err))
		return
	}

	walletID := wallet.ID
	for _, v := range valued {
		item := models.SnapshotItem{
			SnapshotID:     snapshotID,
			ItemType:       models.ItemToken,
			WalletID:       &walletID,
			ChainID:        chain.ID,
			ContractOrMint: v.ContractOrMint,
			Quantity:       v.Quantity,
			USDPrice:       v.USDPrice,
			USDValue:       v.USDValue,
			Valuation:      v.Valuation,
		}
		if v.Symbol != "" {
			symbol := v.Symbol
			item.Symbol = &symbol
		}
		if v.Valuation == models.ValuationKnown {
			result.totalUSD += *v.USDValue
		} else {
			result.unknownCount++
		}
		result.items = append(result.items, item)
	}
}

// collectProtocolPositions resolves every snapshot-eligible protocol
// contract once per wallet on its chain and appends one protocol snapshot
// item per resolved position. Read failures are recorded and skipped.
func (s *SnapshotService) collectProtocolPositions(ctx context.Context, snapshotID string, chain *models.Chain, wallets []models.Wallet, result *snapshotResult) {
	contracts, err := s.protocols.ListSnapshotEligibleContracts(ctx, chain.ID)
	if err != nil {
		result.errs = append(result.errs, fmt.Sprintf("chain %s: list protocol contracts: %v", chain.Slug, err))
		return
	}
	if len(contracts) == 0 {
		return
	}

	for i := range contracts {
		contract := &contracts[i]
		for _, wallet := range wallets {
			address := models.NormalizeAddress(chain.Family, wallet.Address)
			position, err := s.reader.ResolvePosition(ctx, chain, address, contract)
			if err != nil {
				result.errs = append(result.errs, err.Error())
				continue
			}

			valued, err := s.valuator.ValuatePositions(ctx, chain, []Position{{
				ContractOrMint: position.ContractOrMint,
				Symbol:         position.Symbol,
				Quantity:       position.Quantity,
			}})
			if err != nil {
				result.errs = append(result.errs, fmt.Sprintf("protocol %s: valuation: %v", contract.Label, err))
				continue
			}

			v := valued[0]
			walletID := wallet.ID
			protocolID := contract.ID
			item := models.SnapshotItem{
				SnapshotID:     snapshotID,
				ItemType:       models.ItemProtocol,
				WalletID:       &walletID,
				ProtocolID:     &protocolID,
				ChainID:        chain.ID,
				ContractOrMint: v.ContractOrMint,
				Quantity:       v.Quantity,
				USDPrice:       v.USDPrice,
				USDValue:       v.USDValue,
				Valuation:      v.Valuation,
			}
			if v.Symbol != "" {
				symbol := v.Symbol
				item.Symbol = &symbol
			}
			if v.Valuation == models.ValuationKnown {
				result.totalUSD += *v.USDValue
			} else {
				result.unknownCount++
			}
			result.items = append(result.items, item)
		}
	}
}
