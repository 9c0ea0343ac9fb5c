// Package main runs database schema migrations.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down")
		path   = flag.String("path", "migrations", "Path to migration files")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	databaseURL := cfg.Database.Postgres.PostgresURL() + "?sslmode=disable"

	switch *action {
	case "up":
		if err := storage.RunMigrations(databaseURL, *path); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("Postgres migrations applied")
	case "down":
		if err := storage.RollbackMigrations(databaseURL, *path); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Postgres migrations rolled back")
	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	// ClickHouse schema is idempotent DDL, applied alongside the SQL files.
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		log.Printf("Skipping ClickHouse schema: %v", err)
		return
	}
	defer clickhouse.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if *action == "up" {
		if err := clickhouse.EnsureScanHistorySchema(ctx); err != nil {
			log.Fatalf("ClickHouse schema failed: %v", err)
		}
		log.Println("ClickHouse schema ensured")
	}
}
