package db

import (
	"context"
	"fmt"
)

// UpsertPosition writes the full position row, replacing any existing row
// for the instrument.
func (d *Database) UpsertPosition(ctx context.Context, p PositionRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (
			instrument, strategy_id, direction, quantity, original_qty, scaled_qty,
			avg_entry, stop_loss, target, opened_at, booked_tiers, last_price, recovered, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(instrument) DO UPDATE SET
			strategy_id  = excluded.strategy_id,
			direction    = excluded.direction,
			quantity     = excluded.quantity,
			original_qty = excluded.original_qty,
			scaled_qty   = excluded.scaled_qty,
			avg_entry    = excluded.avg_entry,
			stop_loss    = excluded.stop_loss,
			target       = excluded.target,
			opened_at    = excluded.opened_at,
			booked_tiers = excluded.booked_tiers,
			last_price   = excluded.last_price,
			recovered    = excluded.recovered,
			updated_at   = CURRENT_TIMESTAMP
	`,
		p.Instrument, p.StrategyID, p.Direction, p.Quantity, p.OriginalQty, p.ScaledQty,
		p.AvgEntry, p.StopLoss, p.Target, p.OpenedAt, p.BookedTiers, p.LastPrice, boolToInt(p.Recovered),
	)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.Instrument, err)
	}
	return nil
}

// DeletePosition removes the row for an instrument.
func (d *Database) DeletePosition(ctx context.Context, instrument string) error {
	if _, err := d.DB.ExecContext(ctx, `DELETE FROM positions WHERE instrument = ?`, instrument); err != nil {
		return fmt.Errorf("delete position %s: %w", instrument, err)
	}
	return nil
}

// ListPositions returns all persisted positions.
func (d *Database) ListPositions(ctx context.Context) ([]PositionRow, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT instrument, strategy_id, direction, quantity, original_qty, scaled_qty,
		       avg_entry, stop_loss, target, opened_at, booked_tiers, last_price, recovered
		FROM positions
	`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRow
	for rows.Next() {
		var p PositionRow
		var recovered int
		if err := rows.Scan(
			&p.Instrument, &p.StrategyID, &p.Direction, &p.Quantity, &p.OriginalQty, &p.ScaledQty,
			&p.AvgEntry, &p.StopLoss, &p.Target, &p.OpenedAt, &p.BookedTiers, &p.LastPrice, &recovered,
		); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Recovered = recovered == 1
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertOrder appends one order row.
func (d *Database) InsertOrder(ctx context.Context, o OrderRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (id, order_ref, instrument, strategy_id, side, order_type, qty, price, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.OrderRef, o.Instrument, o.StrategyID, o.Side, o.OrderType, o.Qty, o.Price, o.Status, o.Reason)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

// ListOrders returns the most recent orders, newest first.
func (d *Database) ListOrders(ctx context.Context, limit int) ([]OrderRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_ref, instrument, strategy_id, side, order_type, qty, price, status, reason, created_at
		FROM orders ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []OrderRow
	for rows.Next() {
		var o OrderRow
		if err := rows.Scan(&o.ID, &o.OrderRef, &o.Instrument, &o.StrategyID, &o.Side,
			&o.OrderType, &o.Qty, &o.Price, &o.Status, &o.Reason, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// InsertAudit appends one audit event.
func (d *Database) InsertAudit(ctx context.Context, topic, instrument, detail string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO audit_events (topic, instrument, detail) VALUES (?, ?, ?)
	`, topic, instrument, detail)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAudit returns recent audit events for a topic, newest first. An empty
// topic returns events across all topics.
func (d *Database) ListAudit(ctx context.Context, topic string, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, topic, instrument, detail, created_at FROM audit_events`
	args := []any{}
	if topic != "" {
		query += ` WHERE topic = ?`
		args = append(args, topic)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var a AuditRow
		if err := rows.Scan(&a.ID, &a.Topic, &a.Instrument, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
