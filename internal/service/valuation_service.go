package service

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/models"
	"github.com/wallet-scanner/internal/provider"
)

// Price source labels recorded on valued positions.
const (
	PriceSourcePrimary = "primary"
	PriceSourcePool    = "pool"
	PriceSourceCache   = "cache"
)

// defaultPriceBatchSize bounds one primary price request.
const defaultPriceBatchSize = 50

// Position is one quantity awaiting valuation. ValuationRef, when set,
// overrides ContractOrMint for price lookups (native assets price against
// their wrapped-token market).
type Position struct {
	ContractOrMint string
	ValuationRef   string
	Symbol         string
	Quantity       float64
}

// ValuedPosition is the valuation outcome for one input position. Unknown
// positions keep their quantity and carry nil price/value.
type ValuedPosition struct {
	Position
	USDPrice    *float64
	USDValue    *float64
	Valuation   models.ValuationStatus
	PriceSource string
}

// Valuator resolves USD values for a batch of positions.
type Valuator interface {
	ValuatePositions(ctx context.Context, chain *models.Chain, positions []Position) ([]ValuedPosition, error)
}

// ValuationService resolves USD prices with an ordered fallback chain:
// primary batch lookup, then a per-reference liquidity-pool lookup, then the
// bounded-age historical cache. Missing prices degrade to explicit unknown
// markers; the only errors are malformed inputs.
type ValuationService struct {
	prices      provider.PriceSource
	pools       provider.PoolPriceSource
	cache       PriceCache
	batchSize   int
	concurrency int
	logger      *zap.Logger
}

// NewValuationService creates the valuation engine. pools and cache are
// optional; nil disables that fallback stage.
func NewValuationService(prices provider.PriceSource, pools provider.PoolPriceSource, cache PriceCache, batchSize, concurrency int, logger *zap.Logger) *ValuationService {
	if batchSize <= 0 {
		batchSize = defaultPriceBatchSize
	}
	if concurrency <= 0 {
		concurrency = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValuationService{
		prices:      prices,
		pools:       pools,
		cache:       cache,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ValuatePositions values every input position and returns one output per
// input, in input order. Native positions resolve once per chain through the
// dedicated native-price lookup; contract positions resolve in batches with
// per-reference pool and cache fallbacks. Missing prices are never an error.
func (s *ValuationService) ValuatePositions(ctx context.Context, chain *models.Chain, positions []Position) ([]ValuedPosition, error) {
	if chain == nil {
		return nil, fmt.Errorf("valuation requires a chain")
	}
	for _, p := range positions {
		if p.ContractOrMint == "" {
			return nil, fmt.Errorf("valuation position without a contract identity")
		}
	}
	if len(positions) == 0 {
		return []ValuedPosition{}, nil
	}

	nativePrice, nativeOK := s.resolveNativePrice(ctx, chain, positions)
	contractPrices := s.resolveContractPrices(ctx, chain, positions)

	out := make([]ValuedPosition, len(positions))
	for i, p := range positions {
		valued := ValuedPosition{Position: p, Valuation: models.ValuationUnknown}

		if models.IsNativeAssetID(p.ContractOrMint) {
			if nativeOK {
				valued = knownValue(p, nativePrice.price, nativePrice.source)
			} else if hit, ok := contractPrices[s.lookupRef(chain, p)]; ok {
				// Native lookup unavailable; the wrapped-token market stood in.
				valued = knownValue(p, hit.price, hit.source)
			}
		} else if hit, ok := contractPrices[s.lookupRef(chain, p)]; ok {
			valued = knownValue(p, hit.price, hit.source)
		}

		out[i] = valued
	}
	return out, nil
}

type resolvedPrice struct {
	price  float64
	source string
}

func knownValue(p Position, price float64, source string) ValuedPosition {
	value := p.Quantity * price
	return ValuedPosition{
		Position:    p,
		USDPrice:    &price,
		USDValue:    &value,
		Valuation:   models.ValuationKnown,
		PriceSource: source,
	}
}

// lookupRef is the price-lookup key for a position: the valuation reference
// when set, the scan identity otherwise, case-normalized per family.
func (s *ValuationService) lookupRef(chain *models.Chain, p Position) string {
	ref := p.ContractOrMint
	if p.ValuationRef != "" {
		ref = p.ValuationRef
	}
	return models.NormalizeAddress(chain.Family, ref)
}

// resolveNativePrice resolves the chain's native USD price once, preferring
// the dedicated coin-id lookup and falling back to the historical cache.
func (s *ValuationService) resolveNativePrice(ctx context.Context, chain *models.Chain, positions []Position) (resolvedPrice, bool) {
	hasNative := false
	for _, p := range positions {
		if models.IsNativeAssetID(p.ContractOrMint) {
			hasNative = true
			break
		}
	}
	if !hasNative {
		return resolvedPrice{}, false
	}

	nativeID := chain.NativeAssetID()
	if chain.NativeCoinID != "" {
		price, err := s.prices.NativePrice(ctx, chain.NativeCoinID)
		if err == nil {
			s.storeCached(ctx, chain.ID, nativeID, price)
			return resolvedPrice{price: price, source: PriceSourcePrimary}, true
		}
		s.logger.Warn("native price lookup failed",
			zap.String("chain", chain.Slug),
			zap.String("coin", chain.NativeCoinID),
			zap.Error(err),
		)
	}

	if price, ok := s.cachedPrice(ctx, chain.ID, nativeID); ok {
		return resolvedPrice{price: price, source: PriceSourceCache}, true
	}
	return resolvedPrice{}, false
}

// resolveContractPrices resolves prices for every distinct contract lookup
// reference: one batched primary call per chunk, then concurrent pool
// lookups for the misses, then the historical cache.
func (s *ValuationService) resolveContractPrices(ctx context.Context, chain *models.Chain, positions []Position) map[string]resolvedPrice {
	refSet := make(map[string]struct{})
	refs := make([]string, 0, len(positions))
	for _, p := range positions {
		ref := s.lookupRef(chain, p)
		if models.IsNativeAssetID(ref) {
			continue
		}
		if _, seen := refSet[ref]; seen {
			continue
		}
		refSet[ref] = struct{}{}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return map[string]resolvedPrice{}
	}

	resolved := make(map[string]resolvedPrice, len(refs))
	for start := 0; start < len(refs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(refs) {
			end = len(refs)
		}
		batch, err := s.prices.ContractPrices(ctx, chain.PlatformID, refs[start:end])
		if err != nil {
			// A failed primary batch leaves its refs to the fallbacks.
			s.logger.Warn("primary price batch failed",
				zap.String("chain", chain.Slug),
				zap.Int("batch", len(refs[start:end])),
				zap.Error(err),
			)
			continue
		}
		for ref, price := range batch {
			resolved[ref] = resolvedPrice{price: price, source: PriceSourcePrimary}
		}
	}

	s.poolFallback(ctx, chain, refs, resolved)

	for _, ref := range refs {
		hit, ok := resolved[ref]
		if ok {
			s.storeCached(ctx, chain.ID, ref, hit.price)
			continue
		}
		if price, cached := s.cachedPrice(ctx, chain.ID, ref); cached {
			resolved[ref] = resolvedPrice{price: price, source: PriceSourceCache}
		}
	}
	return resolved
}

// poolFallback queries the liquidity-pool source concurrently for every ref
// the primary missed. Individual failures are tolerated.
func (s *ValuationService) poolFallback(ctx context.Context, chain *models.Chain, refs []string, resolved map[string]resolvedPrice) {
	if s.pools == nil {
		return
	}
	missing := make([]string, 0)
	for _, ref := range refs {
		if _, ok := resolved[ref]; !ok {
			missing = append(missing, ref)
		}
	}
	if len(missing) == 0 {
		return
	}

	prices := make([]*float64, len(missing))
	pool := pond.NewPool(s.concurrency)
	for i, ref := range missing {
		i, ref := i, ref
		pool.Submit(func() {
			price, err := s.pools.PoolPrice(ctx, ref)
			if err != nil {
				s.logger.Debug("pool price lookup missed",
					zap.String("chain", chain.Slug),
					zap.String("contract", ref),
					zap.Error(err),
				)
				return
			}
			prices[i] = &price
		})
	}
	pool.StopAndWait()

	for i, ref := range missing {
		if prices[i] != nil {
			resolved[ref] = resolvedPrice{price: *prices[i], source: PriceSourcePool}
		}
	}
}

func (s *ValuationService) cachedPrice(ctx context.Context, chainID, ref string) (float64, bool) {
	if s.cache == nil {
		return 0, false
	}
	price, ok, err := s.cache.GetPrice(ctx, chainID, ref)
	if err != nil {
		s.logger.Warn("price cache read failed", zap.String("ref", ref), zap.Error(err))
		return 0, false
	}
	return price, ok
}

func (s *ValuationService) storeCached(ctx context.Context, chainID, ref string, price float64) {
	if s.cache == nil || price <= 0 {
		return
	}
	if err := s.cache.SetPrice(ctx, chainID, ref, price); err != nil {
		s.logger.Warn("price cache write failed", zap.String("ref", ref), zap.Error(err))
	}
}
