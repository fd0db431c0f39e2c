package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/museum-checkout/internal/metrics"
	"github.com/iliyamo/museum-checkout/internal/repository"
)

const (
	minAttendees = 1
	maxAttendees = 20
)

// RSVPRequest reserves spots at a free event.
type RSVPRequest struct {
	EventID   uint64 `json:"-"`
	Name      string `json:"name" validate:"required,max=150"`
	Attendees int    `json:"attendees" validate:"min=1,max=20"`
}

// RSVPResult is the event's attendance after a granted reservation.
type RSVPResult struct {
	RSVPID           uint64 `json:"rsvp_id"`
	EventID          uint64 `json:"event_id"`
	CurrentAttendees int    `json:"current_attendees"`
	MaxCapacity      *int   `json:"max_capacity"`
}

// Availability is the public view of an event's capacity.
type Availability struct {
	EventID          uint64 `json:"event_id"`
	Title            string `json:"title"`
	CurrentAttendees int    `json:"current_attendees"`
	MaxCapacity      *int   `json:"max_capacity"`
	RemainingSpots   *int   `json:"remaining_spots"`
	IsCancelled      bool   `json:"is_cancelled"`
	IsMembersOnly    bool   `json:"is_members_only"`
}

// RSVPService reserves capacity for free events.  It uses the same
// conditional increment as ticket sales but creates no order.
type RSVPService struct {
	tx          TxRunner
	ledger      Ledger
	catalog     Catalog
	memberships MembershipStore
	rsvps       RSVPStore
	metrics     *metrics.Checkout
}

// NewRSVPService wires an RSVPService.  m may be nil.
func NewRSVPService(tx TxRunner, ledger Ledger, catalog Catalog, memberships MembershipStore, rsvps RSVPStore, m *metrics.Checkout) *RSVPService {
	return &RSVPService{tx: tx, ledger: ledger, catalog: catalog, memberships: memberships, rsvps: rsvps, metrics: m}
}

// Reserve validates the attempt, then grants or rejects it with a single
// conditional increment.  A rejection for lack of room is an
// *InsufficientError whose Remaining was read after the failed attempt.
func (s *RSVPService) Reserve(ctx context.Context, actor Actor, req RSVPRequest) (*RSVPResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > 150 {
		return nil, invalid("name", "name is required and at most 150 characters")
	}
	if req.Attendees < minAttendees || req.Attendees > maxAttendees {
		return nil, invalid("attendees", "attendees must be between %d and %d", minAttendees, maxAttendees)
	}
	ev, err := s.catalog.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, classify(err)
	}
	if ev.IsCancelled {
		return nil, fmt.Errorf("%w: event %d is cancelled", ErrUnavailable, ev.ID)
	}
	if ev.IsMembersOnly {
		if !actor.Authenticated() {
			return nil, ErrMembershipRequired
		}
		ok, err := s.memberships.HasActive(ctx, actor.UserID)
		if err != nil {
			return nil, classify(err)
		}
		if !ok {
			return nil, ErrMembershipRequired
		}
	}

	rec := &repository.RSVPRecord{EventID: ev.ID, Name: name, Attendees: req.Attendees}
	if actor.Authenticated() {
		uid := actor.UserID
		rec.UserID = &uid
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		out, err := s.ledger.ReserveCapacityTx(ctx, tx, ev.ID, req.Attendees)
		if err != nil {
			return err
		}
		s.metrics.ReservationOutcome(resourceEvent, out.String())
		switch out {
		case repository.Insufficient:
			return &InsufficientError{Resource: resourceEvent, ID: ev.ID, Requested: req.Attendees}
		case repository.Cancelled:
			return fmt.Errorf("%w: event %d is cancelled", ErrUnavailable, ev.ID)
		}
		_, err = s.rsvps.CreateTx(ctx, tx, rec)
		return err
	})
	if err != nil {
		var ins *InsufficientError
		if errors.As(err, &ins) {
			if left, rerr := s.ledger.RemainingCapacity(ctx, ev.ID); rerr == nil {
				ins.Remaining = left
			} else {
				log.Printf("rsvp: re-read capacity of event %d failed: %v", ev.ID, rerr)
			}
			return nil, ins
		}
		return nil, classify(err)
	}

	res := &RSVPResult{RSVPID: rec.ID, EventID: ev.ID, MaxCapacity: ev.MaxCapacity}
	if fresh, err := s.catalog.GetEvent(ctx, ev.ID); err == nil {
		res.CurrentAttendees = fresh.CurrentAttendees
		res.MaxCapacity = fresh.MaxCapacity
	} else {
		res.CurrentAttendees = ev.CurrentAttendees + req.Attendees
	}
	return res, nil
}

// Availability reports an event's current capacity.
func (s *RSVPService) Availability(ctx context.Context, eventID uint64) (*Availability, error) {
	ev, err := s.catalog.GetEvent(ctx, eventID)
	if err != nil {
		return nil, classify(err)
	}
	a := &Availability{
		EventID:          ev.ID,
		Title:            ev.Title,
		CurrentAttendees: ev.CurrentAttendees,
		MaxCapacity:      ev.MaxCapacity,
		RemainingSpots:   ev.RemainingSpots(),
		IsCancelled:      ev.IsCancelled,
		IsMembersOnly:    ev.IsMembersOnly,
	}
	if ev.IsCancelled {
		zero := 0
		a.RemainingSpots = &zero
	}
	return a, nil
}
