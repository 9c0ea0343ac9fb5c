package models

import "time"

// MetadataSource records where a tracked token's symbol/name/decimals came from.
type MetadataSource string

const (
	MetadataAuto           MetadataSource = "auto"
	MetadataManualOverride MetadataSource = "manual_override"
)

// TrackingSource records how a token entered the tracked set.
type TrackingSource string

const (
	TrackingManual TrackingSource = "manual"
	TrackingScan   TrackingSource = "scan"
)

// TrackedToken is a token the system follows for a chain. The natural key is
// (ChainID, ContractOrMint). Rows are created explicitly (manual registration)
// or implicitly by the scan engine the first time a non-zero balance is seen.
//
// Symbol/Name/Decimals are filled best-effort and never overwritten once known
// unless an explicit manual override is supplied.
type TrackedToken struct {
	ID             string         `json:"id"`
	ChainID        string         `json:"chainId"`
	ContractOrMint string         `json:"contractOrMint"`
	Symbol         *string        `json:"symbol,omitempty"`
	Name           *string        `json:"name,omitempty"`
	Decimals       *int           `json:"decimals,omitempty"`
	MetadataSource MetadataSource `json:"metadataSource"`
	TrackingSource TrackingSource `json:"trackingSource"`
	IsActive       bool           `json:"isActive"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Wallet is one tracked account on one chain. The address is case-normalized
// per family (see NormalizeAddress) before any lookup or storage.
type Wallet struct {
	ID        string    `json:"id"`
	ChainID   string    `json:"chainId"`
	Address   string    `json:"address"`
	Label     string    `json:"label,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}
