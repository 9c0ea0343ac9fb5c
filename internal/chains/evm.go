package chains

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/abicodec"
	"github.com/wallet-scanner/internal/apperrors"
	"github.com/wallet-scanner/internal/models"
)

// evmDefaultDecimals is assumed when a token's decimals cannot be read.
const evmDefaultDecimals = 18

// EVMResolver resolves balances on EVM-family chains through ethclient.
// Calls go to the chain's primary endpoint first; on failure each fallback
// endpoint (configured, then the public table) is tried once. Clients are
// dialed lazily and reused.
type EVMResolver struct {
	mu          sync.Mutex
	clients     map[string]*ethclient.Client // keyed by endpoint URL
	callTimeout time.Duration
	concurrency int
	logger      *zap.Logger
}

// NewEVMResolver creates an EVM family resolver.
func NewEVMResolver(callTimeout time.Duration, concurrency int, logger *zap.Logger) *EVMResolver {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EVMResolver{
		clients:     make(map[string]*ethclient.Client),
		callTimeout: callTimeout,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ResolveChunk resolves one chunk of tokens concurrently. Exactly one record
// per descriptor comes back; a failed call produces a zero-balance record
// with ResolutionErr set instead of failing the chunk.
func (r *EVMResolver) ResolveChunk(ctx context.Context, chain *models.Chain, walletAddress string, tokens []TokenDescriptor) []BalanceRecord {
	records := make([]BalanceRecord, len(tokens))
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

func (r *EVMResolver) resolveOne(ctx context.Context, chain *models.Chain, walletAddress string, desc TokenDescriptor) BalanceRecord {
	var raw *big.Int
	var err error

	if desc.IsNative {
		raw, err = r.nativeBalance(ctx, chain, walletAddress)
	} else {
		raw, err = r.tokenBalance(ctx, chain, desc.ContractOrMint, walletAddress)
	}
	if err != nil {
		return errorRecord(desc, err)
	}

	decimals := evmDefaultDecimals
	if desc.IsNative && chain.NativeDecimals > 0 {
		decimals = chain.NativeDecimals
	}
	if desc.Decimals != nil {
		decimals = *desc.Decimals
	} else if !desc.IsNative && raw.Sign() > 0 {
		// Unknown decimals only matter once there is a balance to scale.
		if d, derr := r.readDecimals(ctx, chain, desc.ContractOrMint); derr == nil {
			decimals = d
		} else {
			r.logger.Debug("decimals read failed, assuming 18",
				zap.String("chain", chain.Slug),
				zap.String("contract", desc.ContractOrMint),
				zap.Error(derr),
			)
		}
	}

	return successRecord(desc, raw, decimals)
}

// nativeBalance reads the chain's base-currency balance.
func (r *EVMResolver) nativeBalance(ctx context.Context, chain *models.Chain, walletAddress string) (*big.Int, error) {
	if !common.IsHexAddress(walletAddress) {
		return nil, fmt.Errorf("invalid evm wallet address: %s", walletAddress)
	}
	addr := common.HexToAddress(walletAddress)

	var out *big.Int
	err := r.withEndpoints(ctx, chain, "eth_getBalance", func(callCtx context.Context, client *ethclient.Client) error {
		bal, err := client.BalanceAt(callCtx, addr, nil)
		if err != nil {
			return err
		}
		out = bal
		return nil
	})
	return out, err
}

// tokenBalance reads balanceOf(wallet) on a fungible token contract.
func (r *EVMResolver) tokenBalance(ctx context.Context, chain *models.Chain, contract, walletAddress string) (*big.Int, error) {
	word, err := abicodec.AddressWord(walletAddress)
	if err != nil {
		return nil, err
	}
	data, err := abicodec.EncodeCall("balanceOf(address)", word)
	if err != nil {
		return nil, err
	}

	ret, err := r.call(ctx, chain, contract, data)
	if err != nil {
		return nil, err
	}
	return abicodec.DecodeUint256(ret)
}

// readDecimals issues an on-demand decimals() read.
func (r *EVMResolver) readDecimals(ctx context.Context, chain *models.Chain, contract string) (int, error) {
	data, err := abicodec.EncodeCall("decimals()")
	if err != nil {
		return 0, err
	}
	ret, err := r.call(ctx, chain, contract, data)
	if err != nil {
		return 0, err
	}
	v, err := abicodec.DecodeUint256(ret)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() || v.Int64() > 255 {
		return 0, fmt.Errorf("implausible decimals value %s", v)
	}
	return int(v.Int64()), nil
}

// ReadTokenMetadata reads symbol/name/decimals best-effort. Individual read
// failures leave the corresponding field nil.
func (r *EVMResolver) ReadTokenMetadata(ctx context.Context, chain *models.Chain, contract string) (*TokenMetadata, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid evm contract address: %s", contract)
	}

	meta := &TokenMetadata{}

	if data, err := abicodec.EncodeCall("symbol()"); err == nil {
		if ret, err := r.call(ctx, chain, contract, data); err == nil {
			if s, err := abicodec.DecodeString(ret); err == nil && s != "" {
				meta.Symbol = &s
			}
		}
	}
	if data, err := abicodec.EncodeCall("name()"); err == nil {
		if ret, err := r.call(ctx, chain, contract, data); err == nil {
			if s, err := abicodec.DecodeString(ret); err == nil && s != "" {
				meta.Name = &s
			}
		}
	}
	if d, err := r.readDecimals(ctx, chain, contract); err == nil {
		meta.Decimals = &d
	}

	if meta.Symbol == nil && meta.Name == nil && meta.Decimals == nil {
		return nil, apperrors.NewProviderError(chain.Slug+"-rpc", "token metadata read", nil)
	}
	return meta, nil
}

// Call executes raw call data against a contract and returns the return
// payload. Used by the protocol reader as well as the balance path.
func (r *EVMResolver) Call(ctx context.Context, chain *models.Chain, contract string, data []byte) ([]byte, error) {
	return r.call(ctx, chain, contract, data)
}

func (r *EVMResolver) call(ctx context.Context, chain *models.Chain, contract string, data []byte) ([]byte, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid evm contract address: %s", contract)
	}
	to := common.HexToAddress(contract)
	msg := ethereum.CallMsg{To: &to, Data: data}

	var out []byte
	err := r.withEndpoints(ctx, chain, "eth_call", func(callCtx context.Context, client *ethclient.Client) error {
		ret, err := client.CallContract(callCtx, msg, nil)
		if err != nil {
			return err
		}
		out = ret
		return nil
	})
	return out, err
}

// withEndpoints runs fn against the primary endpoint, then retries once per
// fallback endpoint (configured first, public table last) until one succeeds.
func (r *EVMResolver) withEndpoints(ctx context.Context, chain *models.Chain, op string, fn func(context.Context, *ethclient.Client) error) error {
	endpoints := make([]string, 0, 1+len(chain.FallbackRPCURLs)+2)
	endpoints = append(endpoints, chain.RPCURL)
	endpoints = append(endpoints, chain.FallbackRPCURLs...)
	endpoints = append(endpoints, PublicFallbackEndpoints(chain.Slug)...)

	var lastErr error
	for i, endpoint := range endpoints {
		if endpoint == "" {
			continue
		}
		client, err := r.clientFor(endpoint)
		if err != nil {
			lastErr = err
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		err = fn(callCtx, client)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// Caller context expired; retrying other endpoints is pointless.
			break
		}
		if i == 0 && len(endpoints) > 1 {
			r.logger.Debug("primary rpc failed, trying fallbacks",
				zap.String("chain", chain.Slug),
				zap.String("op", op),
				zap.Error(err),
			)
		}
	}

	return apperrors.NewProviderError(chain.Slug+"-rpc", op, lastErr)
}

// clientFor returns the lazily dialed client for an endpoint.
func (r *EVMResolver) clientFor(endpoint string) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[endpoint]; ok {
		return client, nil
	}
	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint %s: %w", endpoint, err)
	}
	r.clients[endpoint] = client
	return client, nil
}

// Close closes every dialed client.
func (r *EVMResolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for endpoint, client := range r.clients {
		client.Close()
		delete(r.clients, endpoint)
	}
}
