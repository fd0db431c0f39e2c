package service

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/museum-checkout/internal/model"
	"github.com/iliyamo/museum-checkout/internal/queue"
	"github.com/iliyamo/museum-checkout/internal/repository"
)

// The services depend on these narrow interfaces rather than on the
// concrete repositories so that the commit protocol can be exercised
// against in-memory stores in tests.  The *sql.Tx handed to the Tx methods
// is the one opened by TxRunner; fakes may ignore it.

// TxRunner opens a unit of work (see database.TxManager).
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
}

// Ledger is the conditional-mutation surface over stock and capacity.
type Ledger interface {
	ReserveStockTx(ctx context.Context, tx *sql.Tx, itemID uint64, qty int) (repository.Outcome, error)
	ReserveCapacityTx(ctx context.Context, tx *sql.Tx, eventID uint64, count int) (repository.Outcome, error)
	AdjustStockTx(ctx context.Context, tx *sql.Tx, itemID uint64, delta int) (repository.Outcome, error)
	StockLevel(ctx context.Context, itemID uint64) (int, error)
	RemainingCapacity(ctx context.Context, eventID uint64) (*int, error)
}

// Catalog is the read-only price and availability lookup.
type Catalog interface {
	ListByIDs(ctx context.Context, kind model.LineKind, ids []uint64) (map[uint64]model.CatalogItem, error)
	GetEvent(ctx context.Context, id uint64) (model.Event, error)
}

// OrderStore persists order headers and priced lines.
type OrderStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) (uint64, error)
	InsertTicketLinesTx(ctx context.Context, tx *sql.Tx, orderID uint64, lines []model.TicketLine) error
	InsertGiftShopLinesTx(ctx context.Context, tx *sql.Tx, orderID uint64, lines []model.GiftShopLine) error
	InsertCafeteriaLinesTx(ctx context.Context, tx *sql.Tx, orderID uint64, lines []model.CafeteriaLine) error
	FindByIdempotencyKey(ctx context.Context, key string) (model.Order, error)
	Lines(ctx context.Context, orderID uint64) (repository.OrderLines, error)
}

// DonationStore persists donation lines and serves the donor wall.
type DonationStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, d *model.DonationLine) (uint64, error)
	ListPublic(ctx context.Context, limit int) ([]repository.PublicDonation, error)
}

// MembershipStore reads discounts and writes memberships.
type MembershipStore interface {
	ActiveDiscount(ctx context.Context, userID uint64) (decimal.Decimal, error)
	HasActive(ctx context.Context, userID uint64) (bool, error)
	UpsertTx(ctx context.Context, tx *sql.Tx, m *model.Membership) (bool, error)
	InsertPurchaseLineTx(ctx context.Context, tx *sql.Tx, l *model.MembershipPurchaseLine) (uint64, error)
}

// UserStore creates accounts during a membership signup.
type UserStore interface {
	GetByEmailTx(ctx context.Context, tx *sql.Tx, email string) (model.User, error)
	CreateTx(ctx context.Context, tx *sql.Tx, u *model.User) (uint64, error)
}

// NotificationStore is the staff notification queue.
type NotificationStore interface {
	InsertIfNoneOpen(ctx context.Context, itemID uint64, message string) (bool, error)
	ListUnresolved(ctx context.Context) ([]model.Notification, error)
}

// RSVPStore persists RSVP rows.
type RSVPStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, rec *repository.RSVPRecord) (uint64, error)
}

// EventPublisher forwards domain events to the broker.  Implemented by
// queue.Publisher.
type EventPublisher interface {
	PublishOrderCompleted(ctx context.Context, ev queue.OrderCompletedEvent) error
	PublishLowStock(ctx context.Context, ev queue.LowStockEvent) error
}

// Actor is the pre-authenticated caller.  UserID is zero for guests.
type Actor struct {
	UserID uint64
	Role   string
}

// Authenticated reports whether the caller presented a valid token.
func (a Actor) Authenticated() bool { return a.UserID != 0 }

// Elevated reports whether the caller may act on behalf of other users.
func (a Actor) Elevated() bool { return model.IsElevated(a.Role) }

// mayActFor applies the owner-or-elevated rule.
func (a Actor) mayActFor(userID uint64) bool {
	return a.Elevated() || (a.Authenticated() && a.UserID == userID)
}
