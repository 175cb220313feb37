package repository

import (
	"context"
	"fmt"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/database"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS portfolios (
		id           UUID PRIMARY KEY,
		owner_id     UUID NOT NULL UNIQUE,
		cash_balance NUMERIC(20,2) NOT NULL CHECK (cash_balance >= 0),
		initial_cash NUMERIC(20,2) NOT NULL,
		version      BIGINT NOT NULL DEFAULT 0,
		created_at   BIGINT NOT NULL,
		updated_at   BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		portfolio_id UUID NOT NULL REFERENCES portfolios(id),
		symbol       VARCHAR(10) NOT NULL,
		quantity     NUMERIC(20,4) NOT NULL CHECK (quantity > 0),
		average_cost NUMERIC(24,6) NOT NULL,
		updated_at   BIGINT NOT NULL,
		UNIQUE (portfolio_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id           UUID PRIMARY KEY,
		portfolio_id UUID NOT NULL REFERENCES portfolios(id),
		sequence     BIGINT NOT NULL,
		symbol       VARCHAR(10) NOT NULL,
		type         VARCHAR(4) NOT NULL CHECK (type IN ('BUY', 'SELL')),
		quantity     NUMERIC(20,4) NOT NULL CHECK (quantity > 0),
		price        NUMERIC(20,2) NOT NULL,
		amount       NUMERIC(20,2) NOT NULL,
		executed_at  BIGINT NOT NULL,
		UNIQUE (portfolio_id, sequence)
	)`,
	`CREATE OR REPLACE FUNCTION transactions_append_only() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'transactions are append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS transactions_append_only ON transactions`,
	`CREATE TRIGGER transactions_append_only
		BEFORE UPDATE OR DELETE ON transactions
		FOR EACH ROW EXECUTE FUNCTION transactions_append_only()`,
}

// sqlite stores decimals as TEXT so nothing is lost to floating point.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS portfolios (
		id           TEXT PRIMARY KEY,
		owner_id     TEXT NOT NULL UNIQUE,
		cash_balance TEXT NOT NULL,
		initial_cash TEXT NOT NULL,
		version      INTEGER NOT NULL DEFAULT 0,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
		symbol       TEXT NOT NULL,
		quantity     TEXT NOT NULL,
		average_cost TEXT NOT NULL,
		updated_at   INTEGER NOT NULL,
		UNIQUE (portfolio_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id           TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
		sequence     INTEGER NOT NULL,
		symbol       TEXT NOT NULL,
		type         TEXT NOT NULL CHECK (type IN ('BUY', 'SELL')),
		quantity     TEXT NOT NULL,
		price        TEXT NOT NULL,
		amount       TEXT NOT NULL,
		executed_at  INTEGER NOT NULL,
		UNIQUE (portfolio_id, sequence)
	)`,
	`CREATE TRIGGER IF NOT EXISTS transactions_no_update
		BEFORE UPDATE ON transactions
		BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS transactions_no_delete
		BEFORE DELETE ON transactions
		BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END`,
}

// Migrate creates the ledger tables for the connection's dialect. It is
// safe to run repeatedly.
func Migrate(ctx context.Context, db *database.DB) error {
	statements := postgresSchema
	if db.Dialect == database.SQLite {
		statements = sqliteSchema
	}

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
