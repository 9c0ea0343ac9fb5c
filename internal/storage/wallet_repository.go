package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wallet-scanner/internal/models"
)

// WalletRepository persists tracked wallets. It implements
// service.WalletStore.
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository.
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

// CreateWallet inserts a wallet. The (chain_id, address) pair is unique.
func (r *WalletRepository) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	query := `
		INSERT INTO wallets (id, chain_id, address, label, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		wallet.ID,
		wallet.ChainID,
		wallet.Address,
		wallet.Label,
		wallet.IsActive,
		wallet.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetWalletByID returns a wallet or nil when absent.
func (r *WalletRepository) GetWalletByID(ctx context.Context, id string) (*models.Wallet, error) {
	query := `
		SELECT id, chain_id, address, label, is_active, created_at
		FROM wallets
		WHERE id = $1
	`
	return r.scanWallet(r.db.Pool().QueryRow(ctx, query, id))
}

// GetWalletByChainAndAddress returns a wallet by its natural key or nil.
// The address must already be case-normalized per family.
func (r *WalletRepository) GetWalletByChainAndAddress(ctx context.Context, chainID, address string) (*models.Wallet, error) {
	query := `
		SELECT id, chain_id, address, label, is_active, created_at
		FROM wallets
		WHERE chain_id = $1 AND address = $2
	`
	return r.scanWallet(r.db.Pool().QueryRow(ctx, query, chainID, address))
}

// ListWallets returns all wallets, optionally only active ones.
func (r *WalletRepository) ListWallets(ctx context.Context, onlyActive bool) ([]models.Wallet, error) {
	query := `
		SELECT id, chain_id, address, label, is_active, created_at
		FROM wallets
	`
	if onlyActive {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		var w models.Wallet
		if err := rows.Scan(&w.ID, &w.ChainID, &w.Address, &w.Label, &w.IsActive, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (r *WalletRepository) scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.ChainID, &w.Address, &w.Label, &w.IsActive, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	return &w, nil
}
