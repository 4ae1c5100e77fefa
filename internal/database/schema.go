package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		balance_usd   NUMERIC(14,4) NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS web_sessions (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token_hash TEXT NOT NULL UNIQUE,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS websites (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		file_name  TEXT NOT NULL,
		url        TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, name)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS websites_file_name_key ON websites (lower(file_name))`,
	`CREATE TABLE IF NOT EXISTS chat_histories (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		hashchat   TEXT NOT NULL UNIQUE,
		title      TEXT NOT NULL DEFAULT '',
		history    JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_wallets (
		id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id        UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		wallet_address TEXT NOT NULL UNIQUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS token_deposits (
		id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id        UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		wallet_address TEXT NOT NULL,
		amount_tokens  NUMERIC(30,9) NOT NULL DEFAULT 0,
		amount_usd     NUMERIC(14,4) NOT NULL,
		signature_tx   TEXT NOT NULL UNIQUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS token_metrics (
		token_address  TEXT PRIMARY KEY,
		price_usd      NUMERIC(30,12) NOT NULL DEFAULT 0,
		market_cap_usd NUMERIC(30,2) NOT NULL DEFAULT 0,
		fdv_usd        NUMERIC(30,2) NOT NULL DEFAULT 0,
		liquidity_usd  NUMERIC(30,2) NOT NULL DEFAULT 0,
		volume24_usd   NUMERIC(30,2) NOT NULL DEFAULT 0,
		last_update    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates any missing tables. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}
	return nil
}
