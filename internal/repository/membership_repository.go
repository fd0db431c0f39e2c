package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/museum-checkout/internal/database"
	"github.com/iliyamo/museum-checkout/internal/model"
)

// MembershipRepo reads member discounts and writes memberships created by
// signup checkouts.  A user holds at most one membership row; a renewal
// updates it in place and records a new purchase line.
type MembershipRepo struct {
	db *sql.DB
}

// NewMembershipRepo returns a MembershipRepo bound to the provided database.
func NewMembershipRepo(db *sql.DB) *MembershipRepo { return &MembershipRepo{db: db} }

const activeMembershipWhere = `m.user_id = ? AND m.is_active = 1
           AND m.start_date <= UTC_DATE() AND m.expiration_date >= UTC_DATE()`

// ActiveDiscount returns the discount percentage granted by the user's
// active, unexpired membership, or zero when there is none.
func (r *MembershipRepo) ActiveDiscount(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	var pct decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT b.discount_percentage
         FROM memberships m
         JOIN membership_benefits b ON b.membership_type = m.membership_type
         WHERE `+activeMembershipWhere+` LIMIT 1`, userID,
	).Scan(&pct)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, database.Classify(err)
	}
	return pct, nil
}

// HasActive reports whether the user has an active, unexpired membership.
func (r *MembershipRepo) HasActive(ctx context.Context, userID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memberships m WHERE `+activeMembershipWhere, userID,
	).Scan(&n)
	if err != nil {
		return false, database.Classify(err)
	}
	return n > 0, nil
}

// UpsertTx creates the user's membership or renews the existing one with
// the new plan and dates.  The existing row is locked for the rest of the
// transaction.  It reports whether the write was a renewal.
func (r *MembershipRepo) UpsertTx(ctx context.Context, tx *sql.Tx, m *model.Membership) (renewal bool, err error) {
	var id uint64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM memberships WHERE user_id = ? FOR UPDATE`, m.UserID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO memberships (user_id, membership_type, start_date, expiration_date, is_active)
             VALUES (?,?,?,?,1)`,
			m.UserID, string(m.PlanType), m.StartDate.Format(dateLayout), m.ExpirationDate.Format(dateLayout))
		if err != nil {
			return false, database.Classify(fmt.Errorf("insert membership: %w", err))
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return false, err
		}
		m.ID = uint64(newID)
		m.IsActive = true
		return false, nil
	case err != nil:
		return false, database.Classify(err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE memberships SET membership_type = ?, start_date = ?, expiration_date = ?, is_active = 1 WHERE id = ?`,
		string(m.PlanType), m.StartDate.Format(dateLayout), m.ExpirationDate.Format(dateLayout), id,
	); err != nil {
		return false, database.Classify(fmt.Errorf("renew membership: %w", err))
	}
	m.ID = id
	m.IsActive = true
	return true, nil
}

// InsertPurchaseLineTx records the membership fee line of an order.
func (r *MembershipRepo) InsertPurchaseLineTx(ctx context.Context, tx *sql.Tx, l *model.MembershipPurchaseLine) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO membership_transactions (transaction_id, membership_id, is_renewal, line_total) VALUES (?,?,?,?)`,
		l.OrderID, l.MembershipID, l.IsRenewal, money(l.LineTotal))
	if err != nil {
		return 0, database.Classify(fmt.Errorf("insert membership line: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	l.ID = uint64(id)
	return l.ID, nil
}

const dateLayout = "2006-01-02"
