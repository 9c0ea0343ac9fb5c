package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wallet-scanner/internal/models"
)

// ScanRepository persists scan runs and their per-token items. It implements
// service.ScanStore.
type ScanRepository struct {
	db *PostgresDB
}

// NewScanRepository creates a new scan repository.
func NewScanRepository(db *PostgresDB) *ScanRepository {
	return &ScanRepository{db: db}
}

// CreateScanRun inserts a new run. Runs are append-only; a rescan always
// gets a fresh row.
func (r *ScanRepository) CreateScanRun(ctx context.Context, run *models.ScanRun) error {
	query := `
		INSERT INTO scan_runs (
			id, wallet_id, universe_snapshot_id, status, started_at,
			finished_at, error_message, tokens_scanned, tokens_held, auto_tracked_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		run.ID,
		run.WalletID,
		run.UniverseSnapshotID,
		run.Status,
		run.StartedAt,
		run.FinishedAt,
		run.ErrorMessage,
		run.TokensScanned,
		run.TokensHeld,
		run.AutoTrackedCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create scan run: %w", err)
	}
	return nil
}

// UpdateScanRun updates a run's lifecycle fields. The universe snapshot id
// is deliberately not part of the update: it never changes after creation.
func (r *ScanRepository) UpdateScanRun(ctx context.Context, run *models.ScanRun) error {
	query := `
		UPDATE scan_runs SET
			status             = $2,
			finished_at        = $3,
			error_message      = $4,
			tokens_scanned     = $5,
			tokens_held        = $6,
			auto_tracked_count = $7
		WHERE id = $1
	`
	tag, err := r.db.Pool().Exec(ctx, query,
		run.ID,
		run.Status,
		run.FinishedAt,
		run.ErrorMessage,
		run.TokensScanned,
		run.TokensHeld,
		run.AutoTrackedCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update scan run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan run %s does not exist", run.ID)
	}
	return nil
}

// UpsertScanItem writes one scan item keyed on (scan_id, contract_or_mint)
// so a retried write is idempotent.
func (r *ScanRepository) UpsertScanItem(ctx context.Context, item *models.ScanItem) error {
	query := `
		INSERT INTO scan_items (
			scan_id, contract_or_mint, symbol, balance_raw, balance_norm,
			held, auto_tracked, usd_price, usd_value, valuation_status,
			price_source, resolution_err, error_message, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (scan_id, contract_or_mint) DO UPDATE SET
			symbol           = EXCLUDED.symbol,
			balance_raw      = EXCLUDED.balance_raw,
			balance_norm     = EXCLUDED.balance_norm,
			held             = EXCLUDED.held,
			auto_tracked     = EXCLUDED.auto_tracked,
			usd_price        = EXCLUDED.usd_price,
			usd_value        = EXCLUDED.usd_value,
			valuation_status = EXCLUDED.valuation_status,
			price_source     = EXCLUDED.price_source,
			resolution_err   = EXCLUDED.resolution_err,
			error_message    = EXCLUDED.error_message
	`
	_, err := r.db.Pool().Exec(ctx, query,
		item.ScanID,
		item.ContractOrMint,
		item.Symbol,
		item.BalanceRaw,
		item.BalanceNorm,
		item.Held,
		item.AutoTracked,
		item.USDPrice,
		item.USDValue,
		item.Valuation,
		item.PriceSource,
		item.ResolutionErr,
		item.ErrorMessage,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert scan item: %w", err)
	}
	return nil
}

// GetLatestSuccessfulScanItems returns the items of a wallet's most recent
// success/partial run.
func (r *ScanRepository) GetLatestSuccessfulScanItems(ctx context.Context, walletID string) ([]models.ScanItem, error) {
	query := `
		SELECT i.scan_id, i.contract_or_mint, i.symbol, i.balance_raw, i.balance_norm,
		       i.held, i.auto_tracked, i.usd_price, i.usd_value, i.valuation_status,
		       i.price_source, i.resolution_err, i.error_message, i.created_at
		FROM scan_items i
		JOIN scan_runs r ON r.id = i.scan_id
		WHERE r.wallet_id = $1 AND r.status IN ('success', 'partial')
		  AND r.started_at = (
			SELECT MAX(started_at)
			FROM scan_runs
			WHERE wallet_id = $1 AND status IN ('success', 'partial')
		  )
	`
	rows, err := r.db.Pool().Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan items: %w", err)
	}
	defer rows.Close()

	var items []models.ScanItem
	for rows.Next() {
		var item models.ScanItem
		if err := rows.Scan(
			&item.ScanID, &item.ContractOrMint, &item.Symbol, &item.BalanceRaw, &item.BalanceNorm,
			&item.Held, &item.AutoTracked, &item.USDPrice, &item.USDValue, &item.Valuation,
			&item.PriceSource, &item.ResolutionErr, &item.ErrorMessage, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scan-item row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetScanRun returns one run by id, or nil when absent.
func (r *ScanRepository) GetScanRun(ctx context.Context, id string) (*models.ScanRun, error) {
	query := `
		SELECT id, wallet_id, universe_snapshot_id, status, started_at,
		       finished_at, error_message, tokens_scanned, tokens_held, auto_tracked_count
		FROM scan_runs
		WHERE id = $1
	`
	var run models.ScanRun
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&run.ID, &run.WalletID, &run.UniverseSnapshotID, &run.Status, &run.StartedAt,
		&run.FinishedAt, &run.ErrorMessage, &run.TokensScanned, &run.TokensHeld, &run.AutoTrackedCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan run: %w", err)
	}
	return &run, nil
}

// GetScanItems returns every item of one run.
func (r *ScanRepository) GetScanItems(ctx context.Context, scanID string) ([]models.ScanItem, error) {
	query := `
		SELECT scan_id, contract_or_mint, symbol, balance_raw, balance_norm,
		       held, auto_tracked, usd_price, usd_value, valuation_status,
		       price_source, resolution_err, error_message, created_at
		FROM scan_items
		WHERE scan_id = $1
		ORDER BY balance_norm DESC
	`
	rows, err := r.db.Pool().Query(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan items: %w", err)
	}
	defer rows.Close()

	var items []models.ScanItem
	for rows.Next() {
		var item models.ScanItem
		if err := rows.Scan(
			&item.ScanID, &item.ContractOrMint, &item.Symbol, &item.BalanceRaw, &item.BalanceNorm,
			&item.Held, &item.AutoTracked, &item.USDPrice, &item.USDValue, &item.Valuation,
			&item.PriceSource, &item.ResolutionErr, &item.ErrorMessage, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scan-item row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
