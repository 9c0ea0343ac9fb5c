package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wallet-scanner/internal/models"
)

// ProtocolRepository persists protocol contracts and their ABI mappings. The
// mapping is stored as JSONB. It implements service.ProtocolContractStore.
type ProtocolRepository struct {
	db *PostgresDB
}

// NewProtocolRepository creates a new protocol contract repository.
func NewProtocolRepository(db *PostgresDB) *ProtocolRepository {
	return &ProtocolRepository{db: db}
}

// CreateContract inserts a protocol contract.
func (r *ProtocolRepository) CreateContract(ctx context.Context, contract *models.ProtocolContract) error {
	mapping, err := json.Marshal(contract.Mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal abi mapping: %w", err)
	}

	query := `
		INSERT INTO protocol_contracts (
			id, chain_id, label, contract_address, symbol,
			abi_mapping, validation_status, is_active, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Pool().Exec(ctx, query,
		contract.ID,
		contract.ChainID,
		contract.Label,
		contract.ContractAddress,
		contract.Symbol,
		mapping,
		contract.ValidationStatus,
		contract.IsActive,
		contract.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create protocol contract: %w", err)
	}
	return nil
}

// UpdateValidationStatus records the outcome of a mapping validation.
func (r *ProtocolRepository) UpdateValidationStatus(ctx context.Context, id string, status models.ValidationStatus) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE protocol_contracts SET validation_status = $2 WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update validation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("protocol contract %s does not exist", id)
	}
	return nil
}

// GetContractByID returns one protocol contract, or nil when absent.
func (r *ProtocolRepository) GetContractByID(ctx context.Context, id string) (*models.ProtocolContract, error) {
	query := `
		SELECT id, chain_id, label, contract_address, symbol,
		       abi_mapping, validation_status, is_active, created_at
		FROM protocol_contracts
		WHERE id = $1
	`
	return r.scanContract(r.db.Pool().QueryRow(ctx, query, id))
}

// ListSnapshotEligibleContracts returns the active, validated contracts for
// a chain: the set the daily snapshot resolves positions for.
func (r *ProtocolRepository) ListSnapshotEligibleContracts(ctx context.Context, chainID string) ([]models.ProtocolContract, error) {
	query := `
		SELECT id, chain_id, label, contract_address, symbol,
		       abi_mapping, validation_status, is_active, created_at
		FROM protocol_contracts
		WHERE chain_id = $1 AND is_active = true AND validation_status = 'valid'
		ORDER BY created_at ASC
	`
	rows, err := r.db.Pool().Query(ctx, query, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocol contracts: %w", err)
	}
	defer rows.Close()

	var contracts []models.ProtocolContract
	for rows.Next() {
		contract, err := r.scanContractRow(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *contract)
	}
	return contracts, rows.Err()
}

func (r *ProtocolRepository) scanContract(row pgx.Row) (*models.ProtocolContract, error) {
	contract, err := r.scanContractRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return contract, err
}

func (r *ProtocolRepository) scanContractRow(row pgx.Row) (*models.ProtocolContract, error) {
	var c models.ProtocolContract
	var mapping []byte
	err := row.Scan(
		&c.ID, &c.ChainID, &c.Label, &c.ContractAddress, &c.Symbol,
		&mapping, &c.ValidationStatus, &c.IsActive, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan protocol contract: %w", err)
	}
	if err := json.Unmarshal(mapping, &c.Mapping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal abi mapping for %s: %w", c.ID, err)
	}
	return &c, nil
}
