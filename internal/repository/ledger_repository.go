package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/museum-checkout/internal/database"
)

// Outcome is the result of a conditional reservation.  Insufficient and
// Cancelled are normal results, not errors: the counter was left untouched.
type Outcome int

const (
	Reserved Outcome = iota
	Insufficient
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Reserved:
		return "reserved"
	case Insufficient:
		return "insufficient"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// LedgerRepo owns the two shared counters of the museum: gift-shop stock
// and event attendance.  Every mutation is a single UPDATE whose WHERE
// clause carries the bound, so the check and the write are applied by the
// store atomically.  There is deliberately no read-then-write method here.
type LedgerRepo struct {
	db *sql.DB
}

// NewLedgerRepo returns a LedgerRepo bound to the provided database.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

const (
	reserveStockSQL = `UPDATE giftshop_items SET stock_quantity = stock_quantity - ? WHERE id = ? AND stock_quantity >= ?`
	restockSQL      = `UPDATE giftshop_items SET stock_quantity = stock_quantity + ? WHERE id = ?`

	reserveCapacitySQL = `UPDATE events SET current_attendees = current_attendees + ?
                          WHERE id = ? AND is_cancelled = 0
                            AND (max_capacity IS NULL OR current_attendees + ? <= max_capacity)`
)

// ReserveStockTx takes qty units of a gift-shop item inside tx.  It returns
// Insufficient without touching the row when fewer than qty units are left
// (or the item does not exist).  The caller owns the transaction.
func (r *LedgerRepo) ReserveStockTx(ctx context.Context, tx *sql.Tx, itemID uint64, qty int) (Outcome, error) {
	if qty <= 0 {
		return Insufficient, fmt.Errorf("reserve stock: quantity must be positive, got %d", qty)
	}
	res, err := tx.ExecContext(ctx, reserveStockSQL, qty, itemID, qty)
	if err != nil {
		return Insufficient, database.Classify(fmt.Errorf("reserve stock item=%d: %w", itemID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Insufficient, err
	}
	if n == 0 {
		return Insufficient, nil
	}
	return Reserved, nil
}

// ReserveCapacityTx adds count attendees to an event inside tx, provided
// the event is not cancelled and the cap (if any) is not exceeded.  When
// the UPDATE matches nothing the event row is read once, in the same
// transaction, only to tell Cancelled from Insufficient; ErrNotFound is
// returned for an unknown event.
func (r *LedgerRepo) ReserveCapacityTx(ctx context.Context, tx *sql.Tx, eventID uint64, count int) (Outcome, error) {
	if count <= 0 {
		return Insufficient, fmt.Errorf("reserve capacity: count must be positive, got %d", count)
	}
	res, err := tx.ExecContext(ctx, reserveCapacitySQL, count, eventID, count)
	if err != nil {
		return Insufficient, database.Classify(fmt.Errorf("reserve capacity event=%d: %w", eventID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Insufficient, err
	}
	if n > 0 {
		return Reserved, nil
	}

	var cancelled bool
	err = tx.QueryRowContext(ctx, `SELECT is_cancelled FROM events WHERE id = ?`, eventID).Scan(&cancelled)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Insufficient, ErrNotFound
	case err != nil:
		return Insufficient, database.Classify(err)
	case cancelled:
		return Cancelled, nil
	}
	return Insufficient, nil
}

// AdjustStockTx applies a signed stock correction.  Negative deltas go
// through the same conditional decrement as a sale, so an admin edit can
// never push stock below zero or race a concurrent checkout.  Positive
// deltas are plain increments; ErrNotFound is returned when no row matched.
func (r *LedgerRepo) AdjustStockTx(ctx context.Context, tx *sql.Tx, itemID uint64, delta int) (Outcome, error) {
	if delta < 0 {
		return r.ReserveStockTx(ctx, tx, itemID, -delta)
	}
	if delta == 0 {
		return Reserved, nil
	}
	res, err := tx.ExecContext(ctx, restockSQL, delta, itemID)
	if err != nil {
		return Insufficient, database.Classify(fmt.Errorf("restock item=%d: %w", itemID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Insufficient, err
	}
	if n == 0 {
		return Insufficient, ErrNotFound
	}
	return Reserved, nil
}

// StockLevel reads the current stock of a gift-shop item through the pool.
// It is meant to be called after a unit of work has finished, e.g. to tell
// a rejected customer how many units are actually left.
func (r *LedgerRepo) StockLevel(ctx context.Context, itemID uint64) (int, error) {
	var qty int
	err := r.db.QueryRowContext(ctx, `SELECT stock_quantity FROM giftshop_items WHERE id = ?`, itemID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, database.Classify(err)
	}
	return qty, nil
}

// RemainingCapacity reads the free spots of an event through the pool.  A
// nil result means the event has no cap.  Cancelled events report zero.
func (r *LedgerRepo) RemainingCapacity(ctx context.Context, eventID uint64) (*int, error) {
	var (
		maxCap    sql.NullInt64
		current   int
		cancelled bool
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT max_capacity, current_attendees, is_cancelled FROM events WHERE id = ?`, eventID,
	).Scan(&maxCap, &current, &cancelled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	if cancelled {
		zero := 0
		return &zero, nil
	}
	if !maxCap.Valid {
		return nil, nil
	}
	left := int(maxCap.Int64) - current
	if left < 0 {
		left = 0
	}
	return &left, nil
}
