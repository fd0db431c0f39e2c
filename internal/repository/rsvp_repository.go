package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/museum-checkout/internal/database"
)

// RSVPRecord is one free event reservation.  It carries no money.
type RSVPRecord struct {
	ID        uint64  // event_rsvps.id
	EventID   uint64  // event_rsvps.event_id
	UserID    *uint64 // event_rsvps.user_id (nullable for guests)
	Name      string  // event_rsvps.name
	Attendees int     // event_rsvps.attendees
}

// RSVPRepo persists RSVP rows next to the capacity increment.
type RSVPRepo struct {
	db *sql.DB
}

// NewRSVPRepo returns an RSVPRepo bound to the provided database.
func NewRSVPRepo(db *sql.DB) *RSVPRepo { return &RSVPRepo{db: db} }

// CreateTx inserts an RSVP inside the caller's transaction.
func (r *RSVPRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec *RSVPRecord) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO event_rsvps (event_id, user_id, name, attendees) VALUES (?,?,?,?)`,
		rec.EventID, rec.UserID, rec.Name, rec.Attendees)
	if err != nil {
		return 0, database.Classify(fmt.Errorf("insert rsvp: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	rec.ID = uint64(id)
	return rec.ID, nil
}
