// Package chains implements family-dispatched balance resolution for tracked
// wallets. A Resolver splits the requested token set into fixed-size chunks,
// fans each chunk out to the chain-family resolver (EVM or Solana) on a
// bounded worker pool, and guarantees exactly one balance record per input
// token regardless of per-item failures.
package chains

import (
	"context"
	"math/big"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/apperrors"
	"github.com/wallet-scanner/internal/models"
)

// DefaultChunkSize is the number of tokens dispatched per RPC round.
const DefaultChunkSize = 50

// DefaultConcurrency bounds parallel chunk resolution.
const DefaultConcurrency = 6

// TokenDescriptor identifies one token to resolve for a wallet.
type TokenDescriptor struct {
	// ContractOrMint is the scan identity: a contract address, a mint, or a
	// reserved "native:<chain>" identifier.
	ContractOrMint string

	// Decimals, when known, avoids an on-demand decimals read.
	Decimals *int

	// IsNative selects the chain's native-balance RPC method.
	IsNative bool

	// ValuationRef is the contract used for price lookups when it differs
	// from the scan identity (e.g. wrapped-native for a native asset).
	ValuationRef string

	Symbol string
}

// BalanceRecord is the resolved balance of one token. BalanceRaw is the
// unsigned integer balance as base-16 text; BalanceNorm is raw / 10^decimals
// computed with arbitrary-precision division before float conversion.
type BalanceRecord struct {
	ContractOrMint string
	Symbol         string
	ValuationRef   string
	IsNative       bool
	BalanceRaw     string
	BalanceNorm    float64
	Decimals       int
	ResolutionErr  bool
	ErrorMessage   string
}

// FamilyResolver is the capability interface one chain family implements.
// ResolveChunk must return exactly one record per input descriptor; per-token
// failures become zero-balance records with ResolutionErr set.
type FamilyResolver interface {
	ResolveChunk(ctx context.Context, chain *models.Chain, walletAddress string, tokens []TokenDescriptor) []BalanceRecord
	ReadTokenMetadata(ctx context.Context, chain *models.Chain, contract string) (*TokenMetadata, error)
}

// TokenMetadata is a best-effort on-chain read of a token's descriptive
// fields. Nil members were not resolvable for the family.
type TokenMetadata struct {
	Symbol   *string
	Name     *string
	Decimals *int
}

// Resolver dispatches balance resolution by chain family.
type Resolver struct {
	families    map[models.ChainFamily]FamilyResolver
	chunkSize   int
	concurrency int
	logger      *zap.Logger
}

// NewResolver builds a Resolver over the given family implementations.
// Zero chunkSize/concurrency select the defaults.
func NewResolver(families map[models.ChainFamily]FamilyResolver, chunkSize, concurrency int, logger *zap.Logger) *Resolver {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		families:    families,
		chunkSize:   chunkSize,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ResolveBalances resolves every descriptor and returns one record per input,
// in input order. Chunks resolve independently so one bad RPC round cannot
// fail unrelated chunks. If every record carries a resolution error the whole
// operation fails with AllResolutionsFailedError: an all-error result means
// the chain is unreachable, not that the wallet is empty.
func (r *Resolver) ResolveBalances(ctx context.Context, chain *models.Chain, walletAddress string, tokens []TokenDescriptor) ([]BalanceRecord, error) {
	family, ok := r.families[chain.Family]
	if !ok {
		return nil, apperrors.NewNotFound("chain family resolver", string(chain.Family))
	}
	if len(tokens) == 0 {
		return []BalanceRecord{}, nil
	}

	records := make([]BalanceRecord, len(tokens))
	pool := pond.NewPool(r.concurrency)

	for start := 0; start < len(tokens); start += r.chunkSize {
		start := start
		end := start + r.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		pool.Submit(func() {
			chunk := family.ResolveChunk(ctx, chain, walletAddress, tokens[start:end])
			copy(records[start:end], chunk)
		})
	}
	pool.StopAndWait()

	failed := 0
	for _, rec := range records {
		if rec.ResolutionErr {
			failed++
		}
	}
	if failed == len(records) {
		r.logger.Warn("every balance resolution failed",
			zap.String("chain", chain.Slug),
			zap.String("wallet", walletAddress),
			zap.Int("tokens", len(records)),
		)
		return records, apperrors.NewAllResolutionsFailed(chain.ID, len(records))
	}

	return records, nil
}

// ReadTokenMetadata proxies a best-effort metadata read to the chain family.
func (r *Resolver) ReadTokenMetadata(ctx context.Context, chain *models.Chain, contract string) (*TokenMetadata, error) {
	family, ok := r.families[chain.Family]
	if !ok {
		return nil, apperrors.NewNotFound("chain family resolver", string(chain.Family))
	}
	return family.ReadTokenMetadata(ctx, chain, contract)
}

// NormalizeBalance converts a raw integer balance into a decimal quantity:
// raw / 10^decimals. Division happens in arbitrary precision before the
// float conversion so large balances do not lose integer digits early.
func NormalizeBalance(raw *big.Int, decimals int) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	if decimals <= 0 {
		f, _ := new(big.Float).SetInt(raw).Float64()
		return f
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quo := new(big.Float).Quo(new(big.Float).SetInt(raw), new(big.Float).SetInt(scale))
	f, _ := quo.Float64()
	return f
}

// errorRecord builds the zero-balance record used when one token's
// resolution fails.
func errorRecord(desc TokenDescriptor, err error) BalanceRecord {
	decimals := 0
	if desc.Decimals != nil {
		decimals = *desc.Decimals
	}
	return BalanceRecord{
		ContractOrMint: desc.ContractOrMint,
		Symbol:         desc.Symbol,
		ValuationRef:   desc.ValuationRef,
		IsNative:       desc.IsNative,
		BalanceRaw:     "0",
		BalanceNorm:    0,
		Decimals:       decimals,
		ResolutionErr:  true,
		ErrorMessage:   err.Error(),
	}
}

// successRecord builds the record for a resolved raw balance.
func successRecord(desc TokenDescriptor, raw *big.Int, decimals int) BalanceRecord {
	return BalanceRecord{
		ContractOrMint: desc.ContractOrMint,
		Symbol:         desc.Symbol,
		ValuationRef:   desc.ValuationRef,
		IsNative:       desc.IsNative,
		BalanceRaw:     raw.Text(16),
		BalanceNorm:    NormalizeBalance(raw, decimals),
		Decimals:       decimals,
	}
}
