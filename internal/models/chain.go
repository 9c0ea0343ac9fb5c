package models

import (
	"fmt"
	"strings"
)

// ChainFamily identifies the network family a chain belongs to.
// Family-specific behavior (balance resolution, call encoding, address
// normalization) is selected by this tag.
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilySolana ChainFamily = "solana"
)

// Valid returns true for a known chain family.
func (f ChainFamily) Valid() bool {
	return f == FamilyEVM || f == FamilySolana
}

// Chain is immutable reference data describing one tracked network.
// Chains are loaded from configuration and never mutated by the pipeline.
type Chain struct {
	ID              string      `json:"id" yaml:"id"`
	Slug            string      `json:"slug" yaml:"slug"`
	Name            string      `json:"name" yaml:"name"`
	Family          ChainFamily `json:"family" yaml:"family"`
	ChainID         int64       `json:"chainId,omitempty" yaml:"chainId,omitempty"` // EVM numeric chain id
	RPCURL          string      `json:"rpcUrl" yaml:"rpcUrl"`
	FallbackRPCURLs []string    `json:"fallbackRpcUrls,omitempty" yaml:"fallbackRpcUrls,omitempty"`

	// NativeSymbol and NativeDecimals describe the chain's base currency.
	NativeSymbol   string `json:"nativeSymbol" yaml:"nativeSymbol"`
	NativeDecimals int    `json:"nativeDecimals" yaml:"nativeDecimals"`

	// WrappedNativeContract is the valuation reference for the native asset
	// (e.g. WETH for Ethereum). The native asset has no contract of its own,
	// so prices are looked up against the wrapped market.
	WrappedNativeContract string `json:"wrappedNativeContract,omitempty" yaml:"wrappedNativeContract,omitempty"`

	// NativeAliases lists on-chain contract addresses that are chain-specific
	// representations of the native asset (e.g. 0x...1010 on Polygon). They
	// collapse into the single native scan entry.
	NativeAliases []string `json:"nativeAliases,omitempty" yaml:"nativeAliases,omitempty"`

	// PlatformID maps this chain onto the market-data source's platform
	// namespace (used to resolve contract addresses for universe items).
	PlatformID string `json:"platformId" yaml:"platformId"`

	// NativeCoinID is the price source's identifier for the chain's native
	// asset (e.g. "ethereum", "solana"). Empty means no dedicated native
	// price lookup is available.
	NativeCoinID string `json:"nativeCoinId,omitempty" yaml:"nativeCoinId,omitempty"`

	IsActive bool `json:"isActive" yaml:"isActive"`
}

// NativeAssetID is the reserved identifier prefix for native assets. A native
// position is keyed "native:<chain-slug>" so it can never collide with a real
// contract address.
const nativeIDPrefix = "native:"

// NativeAssetID returns the reserved scan identifier for a chain's native asset.
func NativeAssetID(chainSlug string) string {
	return nativeIDPrefix + chainSlug
}

// IsNativeAssetID reports whether id is a reserved native-asset identifier.
func IsNativeAssetID(id string) bool {
	return strings.HasPrefix(id, nativeIDPrefix)
}

// NormalizeAddress case-normalizes an address per chain family before any
// lookup or storage: lowercased for EVM, unchanged for Solana (base58 is
// case-sensitive).
func NormalizeAddress(family ChainFamily, address string) string {
	if family == FamilyEVM {
		return strings.ToLower(strings.TrimSpace(address))
	}
	return strings.TrimSpace(address)
}

// IsNativeAlias reports whether contract is one of the chain's configured
// native-asset aliases.
func (c *Chain) IsNativeAlias(contract string) bool {
	norm := NormalizeAddress(c.Family, contract)
	for _, alias := range c.NativeAliases {
		if NormalizeAddress(c.Family, alias) == norm {
			return true
		}
	}
	return false
}

// NativeAssetID returns the reserved identifier for this chain's native asset.
func (c *Chain) NativeAssetID() string {
	return NativeAssetID(c.Slug)
}

// Validate checks that the chain reference data is usable.
func (c *Chain) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("chain id is required")
	}
	if c.Slug == "" {
		return fmt.Errorf("chain %s: slug is required", c.ID)
	}
	if !c.Family.Valid() {
		return fmt.Errorf("chain %s: unknown family %q", c.Slug, c.Family)
	}
	if c.Family == FamilyEVM && c.ChainID == 0 {
		return fmt.Errorf("chain %s: evm chains require a numeric chainId", c.Slug)
	}
	if c.RPCURL == "" {
		return fmt.Errorf("chain %s: rpcUrl is required", c.Slug)
	}
	return nil
}
