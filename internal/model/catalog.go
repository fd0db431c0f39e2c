package model

import "github.com/shopspring/decimal"

// CatalogItem is the read-only view of a sellable item the checkout engine
// needs: its current price and whether it may be sold at all.  Stock is
// only present for gift-shop items; EventID only for ticket types that
// admit to a capacity-tracked event.
type CatalogItem struct {
    ID          uint64
    Kind        LineKind
    Name        string
    Price       decimal.Decimal
    IsAvailable bool
    Stock       *int
    EventID     *uint64
}

// Event is a scheduled museum event with optional attendance cap.
//
// Fields:
//  ID               – primary key identifier.
//  Title            – display name.
//  IsMembersOnly    – RSVP requires an active membership.
//  IsCancelled      – cancelled events accept no reservations.
//  MaxCapacity      – attendance cap (nil means unlimited).
//  CurrentAttendees – reserved spots so far.
type Event struct {
    ID               uint64 // events.id
    Title            string // events.title
    IsMembersOnly    bool   // events.is_members_only
    IsCancelled      bool   // events.is_cancelled
    MaxCapacity      *int   // events.max_capacity (nullable)
    CurrentAttendees int    // events.current_attendees
}

// RemainingSpots returns the free capacity, or nil when the event is
// unlimited.
func (e Event) RemainingSpots() *int {
    if e.MaxCapacity == nil {
        return nil
    }
    left := *e.MaxCapacity - e.CurrentAttendees
    if left < 0 {
        left = 0
    }
    return &left
}
