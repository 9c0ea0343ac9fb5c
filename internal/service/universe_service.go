package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/apperrors"
	"github.com/wallet-scanner/internal/models"
	"github.com/wallet-scanner/internal/provider"
)

// DefaultUniverseSize is the target number of ranked tokens per chain
// snapshot.
const DefaultUniverseSize = 100

// UniverseDate formats a point in time as the UTC snapshot date key.
func UniverseDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RefreshOutcome is the per-chain result of a refresh sweep. ActiveSnapshotID
// is the snapshot scans should use for the date: the fresh one on success,
// the preserved prior scan-eligible one when both sources failed.
type RefreshOutcome struct {
	ChainID          string
	ActiveSnapshotID string
	Status           models.SnapshotStatus
	Err              error
}

// UniverseService maintains the ranked token universe per chain, one
// snapshot per UTC date, with a primary and a fallback market-data source.
type UniverseService struct {
	store    UniverseStore
	chains   ChainDirectory
	primary  provider.MarketSource
	fallback provider.MarketSource
	size     int
	logger   *zap.Logger
}

// NewUniverseService creates the universe refresh engine. fallback may be
// nil when only one market source is configured.
func NewUniverseService(store UniverseStore, chains ChainDirectory, primary, fallback provider.MarketSource, size int, logger *zap.Logger) *UniverseService {
	if size <= 0 {
		size = DefaultUniverseSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UniverseService{
		store:    store,
		chains:   chains,
		primary:  primary,
		fallback: fallback,
		size:     size,
		logger:   logger,
	}
}

// RefreshChain fetches the top tokens for one chain and persists the
// snapshot for the given date. The primary source is tried first; on its
// failure the fallback source, and when both fail the combined error carries
// both reasons and nothing is written.
func (s *UniverseService) RefreshChain(ctx context.Context, chain *models.Chain, asOfDate string) (*models.UniverseSnapshot, error) {
	tokens, source, err := s.fetchRanked(ctx, chain)
	if err != nil {
		return nil, err
	}

	status := models.SnapshotReady
	if len(tokens) < s.size {
		status = models.SnapshotPartial
	}

	snapshot := &models.UniverseSnapshot{
		ID:        uuid.NewString(),
		ChainID:   chain.ID,
		AsOfDate:  asOfDate,
		Source:    source,
		Status:    status,
		ItemCount: len(tokens),
	}
	if existing, lookErr := s.store.GetSnapshotByChainAndDate(ctx, chain.ID, asOfDate); lookErr == nil && existing != nil {
		snapshot.ID = existing.ID
		snapshot.CreatedAt = existing.CreatedAt
	}

	items := make([]models.UniverseItem, 0, len(tokens))
	for i, token := range tokens {
		items = append(items, models.UniverseItem{
			SnapshotID:     snapshot.ID,
			Rank:           i + 1,
			ContractOrMint: models.NormalizeAddress(chain.Family, token.ContractOrMint),
			Symbol:         token.Symbol,
			Name:           token.Name,
			Decimals:       token.Decimals,
			MarketCapUSD:   token.MarketCapUSD,
		})
	}

	if err := s.store.UpsertSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceSnapshotItems(ctx, snapshot.ID, items); err != nil {
		return nil, err
	}

	s.logger.Info("universe snapshot refreshed",
		zap.String("chain", chain.Slug),
		zap.String("date", asOfDate),
		zap.String("source", string(source)),
		zap.String("status", string(status)),
		zap.Int("items", len(items)),
	)
	return snapshot, nil
}

// fetchRanked runs the ordered source chain: each stage returns tokens or
// contributes its failure to the combined error.
func (s *UniverseService) fetchRanked(ctx context.Context, chain *models.Chain) ([]provider.MarketToken, models.SnapshotSource, error) {
	tokens, primaryErr := s.primary.TopTokens(ctx, chain.PlatformID, s.size)
	if primaryErr == nil {
		return tokens, models.SourcePrimary, nil
	}
	s.logger.Warn("primary market source failed",
		zap.String("chain", chain.Slug),
		zap.String("source", s.primary.Name()),
		zap.Error(primaryErr),
	)

	if s.fallback == nil {
		return nil, "", apperrors.NewDualSourceError("universe refresh "+chain.Slug, primaryErr)
	}

	tokens, fallbackErr := s.fallback.TopTokens(ctx, chain.PlatformID, s.size)
	if fallbackErr == nil {
		return tokens, models.SourceFallback, nil
	}
	return nil, "", apperrors.NewDualSourceError("universe refresh "+chain.Slug, primaryErr, fallbackErr)
}

// RefreshAllChains sweeps every active chain for the given date. A per-chain
// dual-source failure becomes a preserving write: an existing scan-eligible
// snapshot for that chain/date stays untouched and is reported as active;
// only when no eligible snapshot exists is an explicit failed, zero-item
// snapshot persisted.
func (s *UniverseService) RefreshAllChains(ctx context.Context, asOfDate string) ([]RefreshOutcome, error) {
	chainList, err := s.chains.ListChains(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]RefreshOutcome, 0, len(chainList))
	for i := range chainList {
		chain := &chainList[i]
		if !chain.IsActive {
			continue
		}

		snapshot, refreshErr := s.RefreshChain(ctx, chain, asOfDate)
		if refreshErr == nil {
			outcomes = append(outcomes, RefreshOutcome{
				ChainID:          chain.ID,
				ActiveSnapshotID: snapshot.ID,
				Status:           snapshot.Status,
			})
			continue
		}

		outcomes = append(outcomes, s.preserveOrFail(ctx, chain, asOfDate, refreshErr))
	}
	return outcomes, nil
}

// preserveOrFail converts a refresh failure into the preserving outcome.
func (s *UniverseService) preserveOrFail(ctx context.Context, chain *models.Chain, asOfDate string, refreshErr error) RefreshOutcome {
	existing, err := s.store.GetSnapshotByChainAndDate(ctx, chain.ID, asOfDate)
	if err == nil && existing.ScanEligible() {
		s.logger.Warn("universe refresh failed, preserving prior snapshot",
			zap.String("chain", chain.Slug),
			zap.String("date", asOfDate),
			zap.String("preserved", existing.ID),
			zap.Error(refreshErr),
		)
		return RefreshOutcome{
			ChainID:          chain.ID,
			ActiveSnapshotID: existing.ID,
			Status:           existing.Status,
			Err:              refreshErr,
		}
	}

	msg := refreshErr.Error()
	failed := &models.UniverseSnapshot{
		ID:           uuid.NewString(),
		ChainID:      chain.ID,
		AsOfDate:     asOfDate,
		Source:       models.SourcePrimary,
		Status:       models.SnapshotFailed,
		ItemCount:    0,
		ErrorMessage: &msg,
	}
	if existing != nil {
		failed.ID = existing.ID
		failed.CreatedAt = existing.CreatedAt
	}
	if upsertErr := s.store.UpsertSnapshot(ctx, failed); upsertErr != nil {
		s.logger.Error("failed-snapshot write failed",
			zap.String("chain", chain.Slug),
			zap.Error(upsertErr),
		)
	}
	return RefreshOutcome{
		ChainID:          chain.ID,
		ActiveSnapshotID: failed.ID,
		Status:           models.SnapshotFailed,
		Err:              refreshErr,
	}
}
