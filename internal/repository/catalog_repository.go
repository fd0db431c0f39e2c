package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/museum-checkout/internal/database"
	"github.com/iliyamo/museum-checkout/internal/model"
)

// CatalogRepo is the read-only view of the catalog the checkout engine
// prices against.  It never writes; stock changes go through LedgerRepo.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo returns a CatalogRepo bound to the provided database.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

var catalogQueries = map[model.LineKind]string{
	model.LineTicket:    `SELECT id, name, base_price, is_available, NULL, event_id FROM ticket_types WHERE id IN (%s)`,
	model.LineGiftShop:  `SELECT id, name, price, is_available, stock_quantity, NULL FROM giftshop_items WHERE id IN (%s)`,
	model.LineCafeteria: `SELECT id, name, price, is_available, NULL, NULL FROM cafeteria_items WHERE id IN (%s)`,
}

// ListByIDs loads the catalog rows of one kind keyed by id.  Ids that do
// not exist are simply absent from the result; callers decide whether
// that is an error.  Duplicate ids are collapsed.
func (r *CatalogRepo) ListByIDs(ctx context.Context, kind model.LineKind, ids []uint64) (map[uint64]model.CatalogItem, error) {
	tmpl, ok := catalogQueries[kind]
	if !ok {
		return nil, fmt.Errorf("catalog: unsupported kind %q", kind)
	}
	out := make(map[uint64]model.CatalogItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	seen := make(map[uint64]bool, len(ids))
	placeholders := make([]string, 0, len(ids))
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(tmpl, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it      model.CatalogItem
			stock   sql.NullInt64
			eventID sql.NullInt64
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.IsAvailable, &stock, &eventID); err != nil {
			return nil, err
		}
		it.Kind = kind
		if stock.Valid {
			n := int(stock.Int64)
			it.Stock = &n
		}
		if eventID.Valid {
			id := uint64(eventID.Int64)
			it.EventID = &id
		}
		out[it.ID] = it
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEvent fetches an event by id.  ErrNotFound is returned when it does
// not exist.
func (r *CatalogRepo) GetEvent(ctx context.Context, id uint64) (model.Event, error) {
	var (
		ev     model.Event
		maxCap sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, is_members_only, is_cancelled, max_capacity, current_attendees FROM events WHERE id = ?`,
		id).Scan(&ev.ID, &ev.Title, &ev.IsMembersOnly, &ev.IsCancelled, &maxCap, &ev.CurrentAttendees)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, database.Classify(err)
	}
	if maxCap.Valid {
		n := int(maxCap.Int64)
		ev.MaxCapacity = &n
	}
	return ev, nil
}
