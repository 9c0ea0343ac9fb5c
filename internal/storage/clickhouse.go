package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/wallet-scanner/internal/config"
)

// ClickHouseDB wraps the ClickHouse connection used for scan-item history.
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse connection.
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection.
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// EnsureScanHistorySchema creates the scan history table if it is missing.
func (db *ClickHouseDB) EnsureScanHistorySchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS scan_item_history (
			scan_id          String,
			wallet_id        String,
			contract_or_mint String,
			symbol           String,
			balance_raw      String,
			balance_norm     Float64,
			held             UInt8,
			auto_tracked     UInt8,
			usd_price        Nullable(Float64),
			usd_value        Nullable(Float64),
			valuation_status LowCardinality(String),
			price_source     LowCardinality(String),
			resolution_err   UInt8,
			scanned_at       DateTime
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(scanned_at)
		ORDER BY (wallet_id, contract_or_mint, scanned_at)
	`
	if err := db.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create scan_item_history: %w", err)
	}
	return nil
}
