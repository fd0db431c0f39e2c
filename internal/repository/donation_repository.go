package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/museum-checkout/internal/database"
	"github.com/iliyamo/museum-checkout/internal/model"
)

// AnonymousDonor is the name shown on public reads for anonymous gifts.
const AnonymousDonor = "Anonymous"

// PublicDonation is the shape of a donation on the public donor wall.  It
// never carries a user id.
type PublicDonation struct {
	DonorName         string          `json:"donor_name"`
	Amount            decimal.Decimal `json:"amount"`
	DonationType      string          `json:"donation_type"`
	DedicationMessage *string         `json:"dedication_message,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// DonationRepo persists donation lines and serves the donor wall.
type DonationRepo struct {
	db *sql.DB
}

// NewDonationRepo returns a DonationRepo bound to the provided database.
func NewDonationRepo(db *sql.DB) *DonationRepo { return &DonationRepo{db: db} }

// CreateTx inserts the single donation line of a donation order.
func (r *DonationRepo) CreateTx(ctx context.Context, tx *sql.Tx, d *model.DonationLine) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO donations (transaction_id, user_id, amount, donation_type, is_anonymous, dedication_message)
         VALUES (?,?,?,?,?,?)`,
		d.OrderID, d.UserID, money(d.Amount), string(d.DonationType), d.IsAnonymous, d.DedicationMessage)
	if err != nil {
		return 0, database.Classify(fmt.Errorf("insert donation: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	d.ID = uint64(id)
	return d.ID, nil
}

// ListPublic returns the most recent donations, newest first.  The donor
// name of anonymous donations is blanked in SQL so it never leaves the
// database.
func (r *DonationRepo) ListPublic(ctx context.Context, limit int) ([]PublicDonation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT IF(d.is_anonymous = 1, NULL, NULLIF(TRIM(CONCAT_WS(' ', u.first_name, u.last_name)), '')),
                d.amount, d.donation_type, d.dedication_message, d.created_at
         FROM donations d
         JOIN transactions t ON t.id = d.transaction_id AND t.status = 'Completed'
         LEFT JOIN users u ON u.id = d.user_id
         ORDER BY d.created_at DESC, d.id DESC
         LIMIT ?`, limit)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()

	var out []PublicDonation
	for rows.Next() {
		var (
			p    PublicDonation
			name sql.NullString
			msg  sql.NullString
		)
		if err := rows.Scan(&name, &p.Amount, &p.DonationType, &msg, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.DonorName = AnonymousDonor
		if name.Valid {
			p.DonorName = name.String
		}
		if msg.Valid {
			p.DedicationMessage = &msg.String
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
