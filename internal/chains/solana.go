package chains

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/apperrors"
	"github.com/wallet-scanner/internal/models"
)

// solanaNativeDecimals is the lamports-per-SOL scale.
const solanaNativeDecimals = 9

// SolanaResolver resolves balances on Solana through JSON-RPC. Native
// balances use getBalance; SPL token balances sum the wallet's parsed token
// accounts per mint.
type SolanaResolver struct {
	mu          sync.Mutex
	clients     map[string]*SolanaRPCClient
	callTimeout time.Duration
	concurrency int
	logger      *zap.Logger
}

// NewSolanaResolver creates a Solana family resolver.
func NewSolanaResolver(callTimeout time.Duration, concurrency int, logger *zap.Logger) *SolanaResolver {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolanaResolver{
		clients:     make(map[string]*SolanaRPCClient),
		callTimeout: callTimeout,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ValidateSolanaAddress checks that an address is 32 bytes of base58.
func ValidateSolanaAddress(address string) error {
	raw, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("invalid solana address %s: %w", address, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("invalid solana address %s: decoded to %d bytes, want 32", address, len(raw))
	}
	return nil
}

// ResolveChunk resolves one chunk of tokens concurrently, one record per
// descriptor.
func (r *SolanaResolver) ResolveChunk(ctx context.Context, chain *models.Chain, walletAddress string, tokens []TokenDescriptor) []BalanceRecord {
	records := make([]BalanceRecord, len(tokens))

	if err := ValidateSolanaAddress(walletAddress); err != nil {
		for i, desc := range tokens {
			records[i] = errorRecord(desc, err)
		}
		return records
	}

	pool := pond.NewPool(r.concurrency)
	for i, desc := range tokens {
		i, desc := i, desc
		pool.Submit(func() {
			records[i] = r.resolveOne(ctx, chain, walletAddress, desc)
		})
	}
	pool.StopAndWait()

	return records
}

func (r *SolanaResolver) resolveOne(ctx context.Context, chain *models.Chain, walletAddress string, desc TokenDescriptor) BalanceRecord {
	client := r.clientFor(chain.RPCURL)
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	if desc.IsNative {
		lamports, err := client.GetBalance(callCtx, walletAddress)
		if err != nil {
			return errorRecord(desc, apperrors.NewProviderError(chain.Slug+"-rpc", "getBalance", err))
		}
		decimals := solanaNativeDecimals
		if chain.NativeDecimals > 0 {
			decimals = chain.NativeDecimals
		}
		return successRecord(desc, new(big.Int).SetUint64(lamports), decimals)
	}

	if err := ValidateSolanaAddress(desc.ContractOrMint); err != nil {
		return errorRecord(desc, err)
	}

	amounts, err := client.GetTokenAccountsByOwner(callCtx, walletAddress, desc.ContractOrMint)
	if err != nil {
		return errorRecord(desc, apperrors.NewProviderError(chain.Slug+"-rpc", "getTokenAccountsByOwner", err))
	}

	total := new(big.Int)
	decimals := 0
	if desc.Decimals != nil {
		decimals = *desc.Decimals
	}
	for _, amt := range amounts {
		v, ok := new(big.Int).SetString(amt.Amount, 10)
		if !ok {
			return errorRecord(desc, fmt.Errorf("unparseable token amount %q for mint %s", amt.Amount, desc.ContractOrMint))
		}
		total.Add(total, v)
		if desc.Decimals == nil {
			decimals = amt.Decimals
		}
	}

	// No token account and unknown decimals: look the scale up from the
	// mint so the stored record is still normalizable.
	if desc.Decimals == nil && len(amounts) == 0 && total.Sign() > 0 {
		if d, derr := client.GetTokenSupplyDecimals(callCtx, desc.ContractOrMint); derr == nil {
			decimals = d
		}
	}

	return successRecord(desc, total, decimals)
}

// ReadTokenMetadata reads the mint's decimals. Symbol and name are not
// available through plain RPC, so they stay nil.
func (r *SolanaResolver) ReadTokenMetadata(ctx context.Context, chain *models.Chain, mint string) (*TokenMetadata, error) {
	if err := ValidateSolanaAddress(mint); err != nil {
		return nil, err
	}

	client := r.clientFor(chain.RPCURL)
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	d, err := client.GetTokenSupplyDecimals(callCtx, mint)
	if err != nil {
		return nil, apperrors.NewProviderError(chain.Slug+"-rpc", "getTokenSupply", err)
	}
	return &TokenMetadata{Decimals: &d}, nil
}

func (r *SolanaResolver) clientFor(endpoint string) *SolanaRPCClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[endpoint]; ok {
		return client
	}
	client := NewSolanaRPCClient(endpoint, r.callTimeout)
	r.clients[endpoint] = client
	return client
}
