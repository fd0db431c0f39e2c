package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/museum-checkout/internal/database"
	"github.com/iliyamo/museum-checkout/internal/model"
)

// NotificationRepo is the staff notification queue.  The table carries a
// unique index over the item id of unresolved rows, so "insert unless an
// open one exists" is a single INSERT IGNORE.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a NotificationRepo bound to the provided database.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// InsertIfNoneOpen appends a notification for itemID unless one is already
// unresolved.  It reports whether a row was created.
func (r *NotificationRepo) InsertIfNoneOpen(ctx context.Context, itemID uint64, message string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO notifications (item_id, message, is_resolved) VALUES (?, ?, 0)`,
		itemID, message)
	if err != nil {
		return false, database.Classify(fmt.Errorf("insert notification: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUnresolved returns open notifications, oldest first.
func (r *NotificationRepo) ListUnresolved(ctx context.Context) ([]model.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, item_id, message, is_resolved, created_at, resolved_at
         FROM notifications WHERE is_resolved = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var (
			n        model.Notification
			resolved sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.ItemID, &n.Message, &n.IsResolved, &n.CreatedAt, &resolved); err != nil {
			return nil, err
		}
		if resolved.Valid {
			n.ResolvedAt = &resolved.Time
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
