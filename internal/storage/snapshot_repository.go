package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wallet-scanner/internal/models"
)

// SnapshotRepository persists daily portfolio snapshots. It implements
// service.SnapshotStore.
type SnapshotRepository struct {
	db *PostgresDB
}

// NewSnapshotRepository creates a new daily snapshot repository.
func NewSnapshotRepository(db *PostgresDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// UpsertDailySnapshot inserts or updates the snapshot keyed on its date.
func (r *SnapshotRepository) UpsertDailySnapshot(ctx context.Context, snapshot *models.DailySnapshot) error {
	query := `
		INSERT INTO daily_snapshots (
			id, snapshot_date, status, item_count, total_usd,
			error_message, created_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (snapshot_date) DO UPDATE SET
			status        = EXCLUDED.status,
			item_count    = EXCLUDED.item_count,
			total_usd     = EXCLUDED.total_usd,
			error_message = EXCLUDED.error_message,
			finished_at   = EXCLUDED.finished_at
	`
	_, err := r.db.Pool().Exec(ctx, query,
		snapshot.ID,
		snapshot.SnapshotDate,
		snapshot.Status,
		snapshot.ItemCount,
		snapshot.TotalUSD,
		snapshot.ErrorMessage,
		snapshot.CreatedAt,
		snapshot.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily snapshot: %w", err)
	}
	return nil
}

// UpsertSnapshotItem writes one snapshot position. A forced same-day rerun
// replaces the prior snapshot's items.
func (r *SnapshotRepository) UpsertSnapshotItem(ctx context.Context, item *models.SnapshotItem) error {
	query := `
		INSERT INTO daily_snapshot_items (
			snapshot_id, item_type, wallet_id, protocol_id, chain_id,
			contract_or_mint, symbol, quantity, usd_price, usd_value, valuation_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (snapshot_id, item_type, chain_id, contract_or_mint, wallet_key, protocol_key)
		DO UPDATE SET
			symbol           = EXCLUDED.symbol,
			quantity         = EXCLUDED.quantity,
			usd_price        = EXCLUDED.usd_price,
			usd_value        = EXCLUDED.usd_value,
			valuation_status = EXCLUDED.valuation_status
	`
	_, err := r.db.Pool().Exec(ctx, query,
		item.SnapshotID,
		item.ItemType,
		item.WalletID,
		item.ProtocolID,
		item.ChainID,
		item.ContractOrMint,
		item.Symbol,
		item.Quantity,
		item.USDPrice,
		item.USDValue,
		item.Valuation,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot item: %w", err)
	}
	return nil
}

// GetDailySnapshotByDate returns the snapshot for a date, or nil when
// absent.
func (r *SnapshotRepository) GetDailySnapshotByDate(ctx context.Context, date string) (*models.DailySnapshot, error) {
	query := `
		SELECT id, snapshot_date, status, item_count, total_usd,
		       error_message, created_at, finished_at
		FROM daily_snapshots
		WHERE snapshot_date = $1
	`
	var s models.DailySnapshot
	err := r.db.Pool().QueryRow(ctx, query, date).Scan(
		&s.ID, &s.SnapshotDate, &s.Status, &s.ItemCount, &s.TotalUSD,
		&s.ErrorMessage, &s.CreatedAt, &s.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily snapshot: %w", err)
	}
	return &s, nil
}

// GetSnapshotItems returns every position in one daily snapshot.
func (r *SnapshotRepository) GetSnapshotItems(ctx context.Context, snapshotID string) ([]models.SnapshotItem, error) {
	query := `
		SELECT snapshot_id, item_type, wallet_id, protocol_id, chain_id,
		       contract_or_mint, symbol, quantity, usd_price, usd_value, valuation_status
		FROM daily_snapshot_items
		WHERE snapshot_id = $1
		ORDER BY usd_value DESC NULLS LAST
	`
	rows, err := r.db.Pool().Query(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot items: %w", err)
	}
	defer rows.Close()

	var items []models.SnapshotItem
	for rows.Next() {
		var item models.SnapshotItem
		if err := rows.Scan(
			&item.SnapshotID, &item.ItemType, &item.WalletID, &item.ProtocolID, &item.ChainID,
			&item.ContractOrMint, &item.Symbol, &item.Quantity, &item.USDPrice, &item.USDValue, &item.Valuation,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot item row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
