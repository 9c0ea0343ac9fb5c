package models

import "time"

// SnapshotSource identifies which market-data provider produced a universe
// snapshot.
type SnapshotSource string

const (
	SourcePrimary  SnapshotSource = "primary"
	SourceFallback SnapshotSource = "fallback"
)

// SnapshotStatus is the lifecycle status of a token-universe snapshot.
type SnapshotStatus string

const (
	SnapshotReady   SnapshotStatus = "ready"
	SnapshotPartial SnapshotStatus = "partial"
	SnapshotFailed  SnapshotStatus = "failed"
)

// UniverseSnapshot is a ranked, versioned view of the top tokens on one chain
// for one UTC date. The (ChainID, AsOfDate) pair is unique; later writes to
// the same key replace status and items, except that a failed write never
// overwrites an existing scan-eligible snapshot for that date.
type UniverseSnapshot struct {
	ID           string         `json:"id"`
	ChainID      string         `json:"chainId"`
	AsOfDate     string         `json:"asOfDate"` // YYYY-MM-DD, UTC
	Source       SnapshotSource `json:"source"`
	Status       SnapshotStatus `json:"status"`
	ItemCount    int            `json:"itemCount"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// ScanEligible reports whether a scan may run against this snapshot.
func (s *UniverseSnapshot) ScanEligible() bool {
	return s != nil && (s.Status == SnapshotReady || s.Status == SnapshotPartial)
}

// UniverseItem is one ranked token inside a universe snapshot. Items belong to
// exactly one snapshot and are fully replaced on each successful refresh.
type UniverseItem struct {
	SnapshotID     string  `json:"snapshotId"`
	Rank           int     `json:"rank"`
	ContractOrMint string  `json:"contractOrMint"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Decimals       *int    `json:"decimals,omitempty"`
	MarketCapUSD   float64 `json:"marketCapUsd"`
}
