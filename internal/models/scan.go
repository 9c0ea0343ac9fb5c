package models

import "time"

// ScanStatus is the lifecycle status of a wallet scan run.
type ScanStatus string

const (
	ScanQueued  ScanStatus = "queued"
	ScanRunning ScanStatus = "running"
	ScanSuccess ScanStatus = "success"
	ScanPartial ScanStatus = "partial"
	ScanFailed  ScanStatus = "failed"
)

// ValuationStatus marks whether a USD value could be resolved for a position.
type ValuationStatus string

const (
	ValuationKnown   ValuationStatus = "known"
	ValuationUnknown ValuationStatus = "unknown"
)

// ScanRun is one execution of the wallet scan pipeline. The referenced
// universe snapshot id is captured at start and never changes afterwards;
// repeated scans of the same wallet always create new runs so the audit
// trail is append-only.
type ScanRun struct {
	ID                 string     `json:"id"`
	WalletID           string     `json:"walletId"`
	UniverseSnapshotID string     `json:"universeSnapshotId"`
	Status             ScanStatus `json:"status"`
	StartedAt          time.Time  `json:"startedAt"`
	FinishedAt         *time.Time `json:"finishedAt,omitempty"`
	ErrorMessage       *string    `json:"errorMessage,omitempty"`

	// Aggregates filled when the run finishes.
	TokensScanned    int `json:"tokensScanned"`
	TokensHeld       int `json:"tokensHeld"`
	AutoTrackedCount int `json:"autoTrackedCount"`
}

// ScanItem is the resolved state of one token within one scan run. The
// (ScanID, ContractOrMint) pair is unique; persistence uses upsert semantics
// so a retried write is idempotent.
type ScanItem struct {
	ScanID         string          `json:"scanId"`
	ContractOrMint string          `json:"contractOrMint"`
	Symbol         *string         `json:"symbol,omitempty"`
	BalanceRaw     string          `json:"balanceRaw"` // unsigned integer, base-16 text
	BalanceNorm    float64         `json:"balanceNormalized"`
	Held           bool            `json:"heldFlag"`
	AutoTracked    bool            `json:"autoTrackedFlag"`
	USDPrice       *float64        `json:"usdPrice,omitempty"`
	USDValue       *float64        `json:"usdValue,omitempty"`
	Valuation      ValuationStatus `json:"valuationStatus"`
	PriceSource    string          `json:"priceSource,omitempty"`
	ResolutionErr  bool            `json:"resolutionError"`
	ErrorMessage   *string         `json:"errorMessage,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}
