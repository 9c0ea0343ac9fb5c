package protocols

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/abicodec"
	"github.com/wallet-scanner/internal/chains"
	"github.com/wallet-scanner/internal/models"
)

// defaultDecimals scales a position when no decimalsRead is declared.
const defaultDecimals = 18

// maxDecimals caps the scaling factor a decimalsRead may return. A larger
// value fails explicitly instead of silently truncating.
const maxDecimals = 36

// ContractCaller executes raw call data against a contract on a chain.
// *chains.EVMResolver satisfies it.
type ContractCaller interface {
	Call(ctx context.Context, chain *models.Chain, contract string, data []byte) ([]byte, error)
}

// Reader resolves protocol contract positions through validated ABI
// mappings.
type Reader struct {
	caller ContractCaller
	logger *zap.Logger
}

// NewReader creates a protocol position reader.
func NewReader(caller ContractCaller, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{caller: caller, logger: logger}
}

// ResolvePosition validates the contract's mapping, executes the position
// read (and the optional decimals read), and returns the normalized
// position. Failures carry the protocol label so the caller can attribute
// them.
func (r *Reader) ResolvePosition(ctx context.Context, chain *models.Chain, walletAddress string, contract *models.ProtocolContract) (*models.ProtocolPosition, error) {
	if chain.Family != models.FamilyEVM {
		return nil, fmt.Errorf("protocol %s (%s): abi mappings are only supported on evm chains", contract.Label, contract.ID)
	}
	if err := ValidateSchema(&contract.Mapping); err != nil {
		return nil, fmt.Errorf("protocol %s (%s): %w", contract.Label, contract.ID, err)
	}
	if err := AssertSupported(&contract.Mapping); err != nil {
		return nil, fmt.Errorf("protocol %s (%s): %w", contract.Label, contract.ID, err)
	}

	raw, err := r.execute(ctx, chain, walletAddress, contract.ContractAddress, contract.Mapping.PositionRead)
	if err != nil {
		return nil, fmt.Errorf("protocol %s (%s): position read failed: %w", contract.Label, contract.ID, err)
	}

	decimals := defaultDecimals
	if contract.Mapping.DecimalsRead != nil {
		dRaw, err := r.execute(ctx, chain, walletAddress, contract.ContractAddress, contract.Mapping.DecimalsRead)
		if err != nil {
			return nil, fmt.Errorf("protocol %s (%s): decimals read failed: %w", contract.Label, contract.ID, err)
		}
		if !dRaw.IsInt64() || dRaw.Int64() > maxDecimals {
			return nil, fmt.Errorf("protocol %s (%s): decimals value %s exceeds maximum %d", contract.Label, contract.ID, dRaw, maxDecimals)
		}
		decimals = int(dRaw.Int64())
	}

	r.logger.Debug("resolved protocol position",
		zap.String("protocol", contract.Label),
		zap.String("contract", contract.ContractAddress),
		zap.String("raw", raw.String()),
		zap.Int("decimals", decimals),
	)

	return &models.ProtocolPosition{
		ContractOrMint: contract.ContractAddress,
		Symbol:         contract.Symbol,
		Quantity:       chains.NormalizeBalance(raw, decimals),
	}, nil
}

// execute encodes one read, runs it, and decodes the unsigned integer
// result.
func (r *Reader) execute(ctx context.Context, chain *models.Chain, walletAddress, contractAddress string, read *models.AbiRead) (*big.Int, error) {
	sig, err := Signature(read)
	if err != nil {
		return nil, err
	}

	words := make([]abicodec.Word, 0, len(read.Args))
	for _, arg := range read.Args {
		word, err := r.encodeArg(arg, walletAddress)
		if err != nil {
			return nil, err
		}
		words = append(words, word)
	}

	data, err := abicodec.EncodeCall(sig, words...)
	if err != nil {
		return nil, err
	}

	ret, err := r.caller.Call(ctx, chain, contractAddress, data)
	if err != nil {
		return nil, err
	}
	return abicodec.DecodeUint256(ret)
}

// encodeArg converts one literal argument into its 32-byte word, resolving
// the wallet placeholder.
func (r *Reader) encodeArg(value, walletAddress string) (abicodec.Word, error) {
	argType, err := InferArgType(value)
	if err != nil {
		return abicodec.Word{}, err
	}

	switch argType {
	case "address":
		addr := value
		if value == WalletPlaceholder {
			addr = walletAddress
		}
		return abicodec.AddressWord(addr)
	case "uint256":
		var v *big.Int
		var ok bool
		if strings.HasPrefix(value, "0x") {
			v, ok = new(big.Int).SetString(value[2:], 16)
		} else {
			v, ok = new(big.Int).SetString(value, 10)
		}
		if !ok {
			return abicodec.Word{}, fmt.Errorf("unparseable numeric argument %q", value)
		}
		return abicodec.Uint256Word(v)
	default:
		return abicodec.Word{}, fmt.Errorf("unhandled argument type %s", argType)
	}
}
