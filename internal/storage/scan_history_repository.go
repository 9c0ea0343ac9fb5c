package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/wallet-scanner/internal/models"
)

// ScanHistoryRepository appends finished scan items to ClickHouse for
// long-term balance history queries. It implements service.ScanHistorySink.
type ScanHistoryRepository struct {
	db *ClickHouseDB
}

// NewScanHistoryRepository creates the scan history repository.
func NewScanHistoryRepository(db *ClickHouseDB) *ScanHistoryRepository {
	return &ScanHistoryRepository{db: db}
}

// RecordScanItems batch-inserts one history row per scan item.
func (r *ScanHistoryRepository) RecordScanItems(ctx context.Context, run *models.ScanRun, items []models.ScanItem) error {
	if len(items) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO scan_item_history (
			scan_id, wallet_id, contract_or_mint, symbol,
			balance_raw, balance_norm, held, auto_tracked,
			usd_price, usd_value, valuation_status, price_source,
			resolution_err, scanned_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare scan history batch: %w", err)
	}

	scannedAt := run.StartedAt
	if run.FinishedAt != nil {
		scannedAt = *run.FinishedAt
	}
	for _, item := range items {
		symbol := ""
		if item.Symbol != nil {
			symbol = *item.Symbol
		}
		if err := batch.Append(
			item.ScanID,
			run.WalletID,
			item.ContractOrMint,
			symbol,
			item.BalanceRaw,
			item.BalanceNorm,
			boolToUInt8(item.Held),
			boolToUInt8(item.AutoTracked),
			item.USDPrice,
			item.USDValue,
			string(item.Valuation),
			item.PriceSource,
			boolToUInt8(item.ResolutionErr),
			scannedAt,
		); err != nil {
			return fmt.Errorf("append scan history row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send scan history batch: %w", err)
	}
	return nil
}

// BalanceHistoryPoint is one observed balance of a contract in a wallet.
type BalanceHistoryPoint struct {
	ScannedAt   time.Time
	BalanceNorm float64
	USDValue    *float64
}

// GetBalanceHistory returns the observed balances of one contract in one
// wallet over a time range, oldest first.
func (r *ScanHistoryRepository) GetBalanceHistory(ctx context.Context, walletID, contractOrMint string, from, to time.Time) ([]BalanceHistoryPoint, error) {
	rows, err := r.db.Conn().Query(ctx, `
		SELECT scanned_at, balance_norm, usd_value
		FROM scan_item_history
		WHERE wallet_id = ? AND contract_or_mint = ?
		  AND scanned_at >= ? AND scanned_at < ?
		ORDER BY scanned_at ASC
	`, walletID, contractOrMint, from, to)
	if err != nil {
		return nil, fmt.Errorf("query balance history: %w", err)
	}
	defer rows.Close()

	var points []BalanceHistoryPoint
	for rows.Next() {
		var p BalanceHistoryPoint
		if err := rows.Scan(&p.ScannedAt, &p.BalanceNorm, &p.USDValue); err != nil {
			return nil, fmt.Errorf("scan balance history row: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
