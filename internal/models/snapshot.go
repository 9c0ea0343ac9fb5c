package models

import "time"

// RunStatus is the aggregate outcome of an orchestrated run (daily snapshot).
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// SnapshotItemType distinguishes plain token positions from protocol
// positions within a daily snapshot.
type SnapshotItemType string

const (
	ItemToken    SnapshotItemType = "token"
	ItemProtocol SnapshotItemType = "protocol"
)

// DailySnapshot is the date-keyed aggregate of all wallets' token and
// protocol positions for one UTC day. Status mirrors the worst per-item
// outcome: success only if every item valued and every protocol read
// succeeded, partial if anything was unknown or failed, failed if the run
// itself errored.
type DailySnapshot struct {
	ID           string    `json:"id"`
	SnapshotDate string    `json:"snapshotDate"` // YYYY-MM-DD, UTC
	Status       RunStatus `json:"status"`
	ItemCount    int       `json:"itemCount"`
	TotalUSD     float64   `json:"totalUsd"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// SnapshotItem is one valued position inside a daily snapshot.
type SnapshotItem struct {
	SnapshotID     string           `json:"snapshotId"`
	ItemType       SnapshotItemType `json:"itemType"`
	WalletID       *string          `json:"walletId,omitempty"`
	ProtocolID     *string          `json:"protocolId,omitempty"`
	ChainID        string           `json:"chainId"`
	ContractOrMint string           `json:"contractOrMint"`
	Symbol         *string          `json:"symbol,omitempty"`
	Quantity       float64          `json:"quantity"`
	USDPrice       *float64         `json:"usdPrice,omitempty"`
	USDValue       *float64         `json:"usdValue,omitempty"`
	Valuation      ValuationStatus  `json:"valuationStatus"`
}
