package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/apperrors"
	"github.com/wallet-scanner/internal/chains"
	"github.com/wallet-scanner/internal/models"
)

// ScanService runs the wallet scan pipeline: universe acquisition, scan-set
// construction with native-asset aliasing, chunked balance resolution,
// auto-tracking, valuation, and per-token persistence. Every run leaves an
// audit ScanRun; repeated scans of the same wallet never mutate prior runs.
type ScanService struct {
	chains    ChainDirectory
	wallets   WalletStore
	tokens    TrackedTokenStore
	scans     ScanStore
	universe  *UniverseService
	universes UniverseStore
	resolver  BalanceResolver
	valuator  Valuator
	history   ScanHistorySink
	logger    *zap.Logger
}

// NewScanService creates the scan engine. history may be nil when no
// analytical sink is configured.
func NewScanService(
	chainDir ChainDirectory,
	wallets WalletStore,
	tokens TrackedTokenStore,
	scans ScanStore,
	universe *UniverseService,
	universes UniverseStore,
	resolver BalanceResolver,
	valuator Valuator,
	history ScanHistorySink,
	logger *zap.Logger,
) *ScanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanService{
		chains:    chainDir,
		wallets:   wallets,
		tokens:    tokens,
		scans:     scans,
		universe:  universe,
		universes: universes,
		resolver:  resolver,
		valuator:  valuator,
		history:   history,
		logger:    logger,
	}
}

// RunScan scans one wallet. It fails fast without a run record when the
// wallet or chain is missing; any failure after the run is created marks the
// run failed with the captured message and returns the error.
func (s *ScanService) RunScan(ctx context.Context, walletID string) (*models.ScanRun, error) {
	wallet, err := s.wallets.GetWalletByID(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	if wallet == nil {
		return nil, apperrors.NewNotFound("wallet", walletID)
	}
	chain, err := s.chains.GetChainByID(ctx, wallet.ChainID)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	if chain == nil {
		return nil, apperrors.NewNotFound("chain", wallet.ChainID)
	}

	snapshot, err := s.acquireUniverse(ctx, chain)
	if err != nil {
		return nil, err
	}

	run := &models.ScanRun{
		ID:                 uuid.NewString(),
		WalletID:           wallet.ID,
		UniverseSnapshotID: snapshot.ID,
		Status:             models.ScanQueued,
		StartedAt:          time.Now().UTC(),
	}
	if err := s.scans.CreateScanRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create scan run: %w", err)
	}

	run.Status = models.ScanRunning
	if err := s.scans.UpdateScanRun(ctx, run); err != nil {
		return nil, fmt.Errorf("mark scan running: %w", err)
	}

	if err := s.executeScan(ctx, run, wallet, chain, snapshot); err != nil {
		now := time.Now().UTC()
		msg := err.Error()
		run.Status = models.ScanFailed
		run.FinishedAt = &now
		run.ErrorMessage = &msg
		if updateErr := s.scans.UpdateScanRun(ctx, run); updateErr != nil {
			s.logger.Error("failed to persist failed scan run",
				zap.String("run", run.ID),
				zap.Error(updateErr),
			)
		}
		return run, err
	}
	return run, nil
}

// RescanWallet is RunScan under its user-facing name. A rescan always
// creates a new ScanRun so the audit trail stays append-only.
func (s *ScanService) RescanWallet(ctx context.Context, walletID string) (*models.ScanRun, error) {
	return s.RunScan(ctx, walletID)
}

// acquireUniverse returns the scan-eligible universe snapshot for a chain,
// refreshing on demand when none exists. When the on-demand refresh also
// fails but the chain already has tracked tokens, a minimal empty partial
// snapshot is synthesized so the scan can proceed against tracked tokens
// alone.
func (s *ScanService) acquireUniverse(ctx context.Context, chain *models.Chain) (*models.UniverseSnapshot, error) {
	snapshot, err := s.universes.GetLatestScanEligibleSnapshot(ctx, chain.ID)
	if err != nil {
		return nil, fmt.Errorf("load universe snapshot: %w", err)
	}
	if snapshot.ScanEligible() {
		return snapshot, nil
	}

	today := UniverseDate(time.Now())
	refreshed, refreshErr := s.universe.RefreshChain(ctx, chain, today)
	if refreshErr == nil && refreshed.ScanEligible() {
		return refreshed, nil
	}

	tracked, err := s.tokens.CountTrackedTokensByChain(ctx, chain.ID)
	if err != nil {
		return nil, fmt.Errorf("count tracked tokens: %w", err)
	}
	if tracked > 0 {
		msg := fmt.Sprintf("universe refresh failed, scanning tracked tokens only: %v", refreshErr)
		synthesized := &models.UniverseSnapshot{
			ID:           uuid.NewString(),
			ChainID:      chain.ID,
			AsOfDate:     today,
			Source:       models.SourceFallback,
			Status:       models.SnapshotPartial,
			ItemCount:    0,
			ErrorMessage: &msg,
		}
		if upsertErr := s.universes.UpsertSnapshot(ctx, synthesized); upsertErr != nil {
			return nil, fmt.Errorf("persist synthesized universe snapshot: %w", upsertErr)
		}
		s.logger.Warn("synthesized empty universe snapshot",
			zap.String("chain", chain.Slug),
			zap.Int("trackedTokens", tracked),
			zap.Error(refreshErr),
		)
		return synthesized, nil
	}

	return nil, fmt.Errorf("no scan-eligible universe for chain %s: %w", chain.Slug, refreshErr)
}

// executeScan runs the body of a scan against an acquired snapshot.
func (s *ScanService) executeScan(ctx context.Context, run *models.ScanRun, wallet *models.Wallet, chain *models.Chain, snapshot *models.UniverseSnapshot) error {
	tracked, err := s.tokens.ListTrackedTokens(ctx, chain.ID, true)
	if err != nil {
		return fmt.Errorf("list tracked tokens: %w", err)
	}

	descriptors, err := s.buildScanSet(ctx, chain, snapshot, tracked)
	if err != nil {
		return err
	}

	address := models.NormalizeAddress(chain.Family, wallet.Address)
	records, err := s.resolver.ResolveBalances(ctx, chain, address, descriptors)
	if err != nil {
		// AllResolutionsFailed carries the per-item records; the scan still
		// fails outright so an unreachable chain never reads as an empty
		// wallet.
		return err
	}

	trackedByContract := make(map[string]*models.TrackedToken, len(tracked))
	for i := range tracked {
		key := models.NormalizeAddress(chain.Family, tracked[i].ContractOrMint)
		trackedByContract[key] = &tracked[i]
	}

	items := make([]models.ScanItem, len(records))
	autoTracked := 0
	held := 0
	for i, record := range records {
		item := models.ScanItem{
			ScanID:         run.ID,
			ContractOrMint: record.ContractOrMint,
			BalanceRaw:     record.BalanceRaw,
			BalanceNorm:    record.BalanceNorm,
			Held:           record.BalanceNorm > 0,
			Valuation:      models.ValuationUnknown,
			ResolutionErr:  record.ResolutionErr,
			CreatedAt:      time.Now().UTC(),
		}
		if record.Symbol != "" {
			symbol := record.Symbol
			item.Symbol = &symbol
		}
		if record.ErrorMessage != "" {
			msg := record.ErrorMessage
			item.ErrorMessage = &msg
		}

		if item.Held {
			held++
			token := trackedByContract[record.ContractOrMint]
			switch {
			case token == nil:
				if err := s.autoTrack(ctx, chain, record); err != nil {
					s.logger.Warn("auto-tracking failed",
						zap.String("chain", chain.Slug),
						zap.String("contract", record.ContractOrMint),
						zap.Error(err),
					)
				} else {
					item.AutoTracked = true
					autoTracked++
				}
			case token.Symbol == nil && !record.IsNative:
				s.refineMetadata(ctx, chain, token)
			}
		}
		items[i] = item
	}

	s.valuateHeld(ctx, chain, records, items)

	for i := range items {
		if err := s.scans.UpsertScanItem(ctx, &items[i]); err != nil {
			return fmt.Errorf("persist scan item %s: %w", items[i].ContractOrMint, err)
		}
	}

	now := time.Now().UTC()
	run.Status = models.ScanSuccess
	for _, item := range items {
		if item.Held && item.Valuation != models.ValuationKnown {
			run.Status = models.ScanPartial
			break
		}
	}
	run.FinishedAt = &now
	run.TokensScanned = len(items)
	run.TokensHeld = held
	run.AutoTrackedCount = autoTracked
	if err := s.scans.UpdateScanRun(ctx, run); err != nil {
		return fmt.Errorf("finish scan run: %w", err)
	}

	if s.history != nil {
		if err := s.history.RecordScanItems(ctx, run, items); err != nil {
			s.logger.Warn("scan history write failed", zap.String("run", run.ID), zap.Error(err))
		}
	}

	s.logger.Info("scan finished",
		zap.String("wallet", wallet.ID),
		zap.String("chain", chain.Slug),
		zap.String("run", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("scanned", run.TokensScanned),
		zap.Int("held", run.TokensHeld),
		zap.Int("autoTracked", run.AutoTrackedCount),
	)
	return nil
}

// buildScanSet merges tracked tokens, universe discovery items, and the
// native asset into one deduplicated descriptor list. Tracked tokens take
// precedence entirely: when any exist, discovery items are skipped. Tracked
// contracts that alias the native asset collapse into the single native
// entry.
func (s *ScanService) buildScanSet(ctx context.Context, chain *models.Chain, snapshot *models.UniverseSnapshot, tracked []models.TrackedToken) ([]chains.TokenDescriptor, error) {
	seen := make(map[string]struct{})
	descriptors := make([]chains.TokenDescriptor, 0, len(tracked)+1)

	if chain.NativeSymbol != "" {
		nativeDecimals := chain.NativeDecimals
		descriptors = append(descriptors, chains.TokenDescriptor{
			ContractOrMint: chain.NativeAssetID(),
			Decimals:       &nativeDecimals,
			IsNative:       true,
			ValuationRef:   chain.WrappedNativeContract,
			Symbol:         chain.NativeSymbol,
		})
		seen[chain.NativeAssetID()] = struct{}{}
	}

	add := func(contract, symbol string, decimals *int) {
		key := models.NormalizeAddress(chain.Family, contract)
		if models.IsNativeAssetID(key) || chain.IsNativeAlias(key) {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		descriptors = append(descriptors, chains.TokenDescriptor{
			ContractOrMint: key,
			Decimals:       decimals,
			Symbol:         symbol,
		})
	}

	if len(tracked) > 0 {
		for _, token := range tracked {
			symbol := ""
			if token.Symbol != nil {
				symbol = *token.Symbol
			}
			add(token.ContractOrMint, symbol, token.Decimals)
		}
		return descriptors, nil
	}

	items, err := s.universes.GetSnapshotItems(ctx, snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("load universe items: %w", err)
	}
	for _, item := range items {
		add(item.ContractOrMint, item.Symbol, item.Decimals)
	}
	return descriptors, nil
}

// autoTrack registers a newly-held token with auto metadata provenance.
func (s *ScanService) autoTrack(ctx context.Context, chain *models.Chain, record chains.BalanceRecord) error {
	now := time.Now().UTC()
	token := &models.TrackedToken{
		ID:             uuid.NewString(),
		ChainID:        chain.ID,
		ContractOrMint: record.ContractOrMint,
		MetadataSource: models.MetadataAuto,
		TrackingSource: models.TrackingScan,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if record.Symbol != "" {
		symbol := record.Symbol
		token.Symbol = &symbol
	}
	if record.Decimals > 0 || record.IsNative {
		decimals := record.Decimals
		token.Decimals = &decimals
	}
	return s.tokens.UpsertTrackedToken(ctx, token)
}

// refineMetadata fills a tracked token's missing symbol/name/decimals from
// an on-chain read, never overwriting values already known.
func (s *ScanService) refineMetadata(ctx context.Context, chain *models.Chain, token *models.TrackedToken) {
	meta, err := s.resolver.ReadTokenMetadata(ctx, chain, token.ContractOrMint)
	if err != nil || meta == nil {
		s.logger.Debug("token metadata read failed",
			zap.String("chain", chain.Slug),
			zap.String("contract", token.ContractOrMint),
			zap.Error(err),
		)
		return
	}

	changed := false
	if token.Symbol == nil && meta.Symbol != nil {
		token.Symbol = meta.Symbol
		changed = true
	}
	if token.Name == nil && meta.Name != nil {
		token.Name = meta.Name
		changed = true
	}
	if token.Decimals == nil && meta.Decimals != nil {
		token.Decimals = meta.Decimals
		changed = true
	}
	if !changed {
		return
	}
	token.UpdatedAt = time.Now().UTC()
	if err := s.tokens.UpsertTrackedToken(ctx, token); err != nil {
		s.logger.Warn("metadata refinement write failed",
			zap.String("contract", token.ContractOrMint),
			zap.Error(err),
		)
	}
}

// valuateHeld values held positions only and writes the outcome back onto
// the matching scan items. A valuation engine failure degrades every held
// item to unknown instead of failing the scan.
func (s *ScanService) valuateHeld(ctx context.Context, chain *models.Chain, records []chains.BalanceRecord, items []models.ScanItem) {
	positions := make([]Position, 0)
	indexByContract := make(map[string]int)
	for i, record := range records {
		if items[i].Held {
			positions = append(positions, Position{
				ContractOrMint: record.ContractOrMint,
				ValuationRef:   record.ValuationRef,
				Symbol:         record.Symbol,
				Quantity:       record.BalanceNorm,
			})
			indexByContract[record.ContractOrMint] = i
		}
	}
	if len(positions) == 0 {
		return
	}

	valued, err := s.valuator.ValuatePositions(ctx, chain, positions)
	if err != nil {
		s.logger.Warn("valuation failed, held items marked unknown",
			zap.String("chain", chain.Slug),
			zap.Error(err),
		)
		return
	}

	for _, v := range valued {
		i, ok := indexByContract[v.ContractOrMint]
		if !ok {
			continue
		}
		items[i].USDPrice = v.USDPrice
		items[i].USDValue = v.USDValue
		items[i].Valuation = v.Valuation
		items[i].PriceSource = v.PriceSource
	}
}
