package storage

import (
	"context"
	"fmt"

	"github.com/wallet-scanner/internal/models"
)

// TokenRepository persists the tracked-token set. It implements
// service.TrackedTokenStore.
type TokenRepository struct {
	db *PostgresDB
}

// NewTokenRepository creates a new tracked-token repository.
func NewTokenRepository(db *PostgresDB) *TokenRepository {
	return &TokenRepository{db: db}
}

// UpsertTrackedToken inserts or updates a tracked token keyed on
// (chain_id, contract_or_mint). COALESCE keeps existing non-null metadata
// when the incoming row carries nulls, so a refinement can only add
// information, never erase it.
func (r *TokenRepository) UpsertTrackedToken(ctx context.Context, token *models.TrackedToken) error {
	query := `
		INSERT INTO tracked_tokens (
			id, chain_id, contract_or_mint, symbol, name, decimals,
			metadata_source, tracking_source, is_active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (chain_id, contract_or_mint) DO UPDATE SET
			symbol     = COALESCE(EXCLUDED.symbol, tracked_tokens.symbol),
			name       = COALESCE(EXCLUDED.name, tracked_tokens.name),
			decimals   = COALESCE(EXCLUDED.decimals, tracked_tokens.decimals),
			metadata_source = EXCLUDED.metadata_source,
			is_active  = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool().Exec(ctx, query,
		token.ID,
		token.ChainID,
		token.ContractOrMint,
		token.Symbol,
		token.Name,
		token.Decimals,
		token.MetadataSource,
		token.TrackingSource,
		token.IsActive,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tracked token: %w", err)
	}
	return nil
}

// ListTrackedTokens returns the tracked tokens for a chain.
func (r *TokenRepository) ListTrackedTokens(ctx context.Context, chainID string, onlyActive bool) ([]models.TrackedToken, error) {
	query := `
		SELECT id, chain_id, contract_or_mint, symbol, name, decimals,
		       metadata_source, tracking_source, is_active, created_at, updated_at
		FROM tracked_tokens
		WHERE chain_id = $1
	`
	if onlyActive {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Pool().Query(ctx, query, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.TrackedToken
	for rows.Next() {
		var t models.TrackedToken
		if err := rows.Scan(
			&t.ID, &t.ChainID, &t.ContractOrMint, &t.Symbol, &t.Name, &t.Decimals,
			&t.MetadataSource, &t.TrackingSource, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tracked token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// CountTrackedTokensByChain returns the number of active tracked tokens on a
// chain.
func (r *TokenRepository) CountTrackedTokensByChain(ctx context.Context, chainID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM tracked_tokens
		WHERE chain_id = $1 AND is_active = true
	`
	var count int
	if err := r.db.Pool().QueryRow(ctx, query, chainID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tracked tokens: %w", err)
	}
	return count, nil
}
