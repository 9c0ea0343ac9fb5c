package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wallet-scanner/internal/models"
)

// UniverseRepository persists token-universe snapshots and their ranked
// items. It implements service.UniverseStore.
type UniverseRepository struct {
	db *PostgresDB
}

// NewUniverseRepository creates a new universe repository.
func NewUniverseRepository(db *PostgresDB) *UniverseRepository {
	return &UniverseRepository{db: db}
}

// UpsertSnapshot inserts or updates a snapshot keyed on (chain_id,
// as_of_date). Status, source, item count, and error message are replaced.
func (r *UniverseRepository) UpsertSnapshot(ctx context.Context, snapshot *models.UniverseSnapshot) error {
	now := time.Now().UTC()
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = now
	}
	snapshot.UpdatedAt = now

	query := `
		INSERT INTO universe_snapshots (
			id, chain_id, as_of_date, source, status, item_count,
			error_message, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chain_id, as_of_date) DO UPDATE SET
			source        = EXCLUDED.source,
			status        = EXCLUDED.status,
			item_count    = EXCLUDED.item_count,
			error_message = EXCLUDED.error_message,
			updated_at    = EXCLUDED.updated_at
	`
	_, err := r.db.Pool().Exec(ctx, query,
		snapshot.ID,
		snapshot.ChainID,
		snapshot.AsOfDate,
		snapshot.Source,
		snapshot.Status,
		snapshot.ItemCount,
		snapshot.ErrorMessage,
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert universe snapshot: %w", err)
	}
	return nil
}

// ReplaceSnapshotItems atomically replaces a snapshot's items: old items are
// deleted and the new set inserted in one transaction.
func (r *UniverseRepository) ReplaceSnapshotItems(ctx context.Context, snapshotID string, items []models.UniverseItem) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM universe_items WHERE snapshot_id = $1`, snapshotID); err != nil {
		return fmt.Errorf("failed to delete old universe items: %w", err)
	}

	query := `
		INSERT INTO universe_items (
			snapshot_id, rank, contract_or_mint, symbol, name, decimals, market_cap_usd
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, item := range items {
		if _, err := tx.Exec(ctx, query,
			snapshotID,
			item.Rank,
			item.ContractOrMint,
			item.Symbol,
			item.Name,
			item.Decimals,
			item.MarketCapUSD,
		); err != nil {
			return fmt.Errorf("failed to insert universe item %s: %w", item.ContractOrMint, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit universe items: %w", err)
	}
	return nil
}

const universeSnapshotColumns = `
	id, chain_id, as_of_date, source, status, item_count,
	error_message, created_at, updated_at
`

// GetLatestScanEligibleSnapshot returns the freshest ready/partial snapshot
// for a chain, or nil when none exists.
func (r *UniverseRepository) GetLatestScanEligibleSnapshot(ctx context.Context, chainID string) (*models.UniverseSnapshot, error) {
	query := `
		SELECT ` + universeSnapshotColumns + `
		FROM universe_snapshots
		WHERE chain_id = $1 AND status IN ('ready', 'partial')
		ORDER BY as_of_date DESC
		LIMIT 1
	`
	return r.scanSnapshot(r.db.Pool().QueryRow(ctx, query, chainID))
}

// GetSnapshotByChainAndDate returns the snapshot for a chain/date key, or
// nil when absent.
func (r *UniverseRepository) GetSnapshotByChainAndDate(ctx context.Context, chainID, asOfDate string) (*models.UniverseSnapshot, error) {
	query := `
		SELECT ` + universeSnapshotColumns + `
		FROM universe_snapshots
		WHERE chain_id = $1 AND as_of_date = $2
	`
	return r.scanSnapshot(r.db.Pool().QueryRow(ctx, query, chainID, asOfDate))
}

// GetSnapshotItems returns a snapshot's items in rank order.
func (r *UniverseRepository) GetSnapshotItems(ctx context.Context, snapshotID string) ([]models.UniverseItem, error) {
	query := `
		SELECT snapshot_id, rank, contract_or_mint, symbol, name, decimals, market_cap_usd
		FROM universe_items
		WHERE snapshot_id = $1
		ORDER BY rank ASC
	`
	rows, err := r.db.Pool().Query(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list universe items: %w", err)
	}
	defer rows.Close()

	var items []models.UniverseItem
	for rows.Next() {
		var item models.UniverseItem
		if err := rows.Scan(
			&item.SnapshotID, &item.Rank, &item.ContractOrMint,
			&item.Symbol, &item.Name, &item.Decimals, &item.MarketCapUSD,
		); err != nil {
			return nil, fmt.Errorf("failed to scan universe item row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *UniverseRepository) scanSnapshot(row pgx.Row) (*models.UniverseSnapshot, error) {
	var s models.UniverseSnapshot
	err := row.Scan(
		&s.ID, &s.ChainID, &s.AsOfDate, &s.Source, &s.Status, &s.ItemCount,
		&s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan universe snapshot: %w", err)
	}
	return &s, nil
}
