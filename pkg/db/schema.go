package db

import (
	"context"
	"fmt"
)

// ApplyMigrations creates the engine tables when missing. Statements are
// idempotent so the call is safe on every startup.
func (d *Database) ApplyMigrations(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			instrument   TEXT PRIMARY KEY,
			strategy_id  TEXT NOT NULL,
			direction    TEXT NOT NULL,
			quantity     REAL NOT NULL,
			original_qty REAL NOT NULL,
			scaled_qty   REAL NOT NULL DEFAULT 0,
			avg_entry    REAL NOT NULL,
			stop_loss    REAL NOT NULL DEFAULT 0,
			target       REAL NOT NULL DEFAULT 0,
			opened_at    TIMESTAMP NOT NULL,
			booked_tiers TEXT NOT NULL DEFAULT '',
			last_price   REAL NOT NULL DEFAULT 0,
			recovered    INTEGER NOT NULL DEFAULT 0,
			updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id          TEXT PRIMARY KEY,
			order_ref   TEXT NOT NULL DEFAULT '',
			instrument  TEXT NOT NULL,
			strategy_id TEXT NOT NULL DEFAULT '',
			side        TEXT NOT NULL,
			order_type  TEXT NOT NULL,
			qty         REAL NOT NULL,
			price       REAL NOT NULL,
			status      TEXT NOT NULL,
			reason      TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_instrument ON orders(instrument)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			topic      TEXT NOT NULL,
			instrument TEXT NOT NULL DEFAULT '',
			detail     TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_topic ON audit_events(topic)`,
	}

	for _, stmt := range stmts {
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
