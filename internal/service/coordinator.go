// Package service holds the checkout engine: the order commit coordinator,
// the checkout variants built on it, free event RSVPs and the low-stock
// notifier.
package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/museum-checkout/internal/database"
	"github.com/iliyamo/museum-checkout/internal/metrics"
	"github.com/iliyamo/museum-checkout/internal/model"
	"github.com/iliyamo/museum-checkout/internal/pricing"
	"github.com/iliyamo/museum-checkout/internal/queue"
	"github.com/iliyamo/museum-checkout/internal/repository"
)

// Variant names the checkout entry point an order came through.
type Variant string

const (
	VariantPOS        Variant = "pos"
	VariantDonation   Variant = "donation"
	VariantMembership Variant = "membership"
)

// maxLineQuantity bounds a single line; anything larger is a typo.
const maxLineQuantity = 1000

// PricedLine is one cart entry after the catalog lookup.  ListPrice feeds
// the calculator; UnitPrice is what gets locked into the line item (the
// discounted price for discountable kinds).
type PricedLine struct {
	Kind         model.LineKind  `json:"kind"`
	ItemID       uint64          `json:"item_id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Quantity     int             `json:"quantity"`
	ListPrice    decimal.Decimal `json:"-"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Discountable bool            `json:"-"`
	EventID      *uint64         `json:"event_id,omitempty"`
	ExhibitionID *uint64         `json:"exhibition_id,omitempty"`
	Note         *string         `json:"note,omitempty"`
}

// OrderRequest is everything the coordinator needs to commit one order.
// BeforeOrder runs inside the unit of work after every reservation and
// before the header insert (it may set the order's user); AfterOrder runs
// after all lines are written.  Either may be nil.
type OrderRequest struct {
	Variant         Variant
	UserID          *uint64
	HandledBy       *uint64
	PaymentMethod   model.PaymentMethod
	IdempotencyKey  string
	// Scope is folded into the request hash for facts the other fields
	// do not carry, such as the signup email.
	Scope           string
	DiscountPercent decimal.Decimal
	TaxRate         decimal.Decimal
	ExpectedTotal   *decimal.Decimal
	Lines           []PricedLine
	Donation        *model.DonationLine

	BeforeOrder func(ctx context.Context, tx *sql.Tx, o *model.Order) error
	AfterOrder  func(ctx context.Context, tx *sql.Tx, o *model.Order) error
}

// Receipt describes a committed order.  Replayed is set when the order was
// committed by an earlier request with the same idempotency key.
type Receipt struct {
	OrderID    uint64          `json:"order_id"`
	Reference  string          `json:"reference"`
	Totals     pricing.Totals  `json:"totals"`
	TotalItems int             `json:"total_items"`
	Lines      []PricedLine    `json:"items,omitempty"`
	DonationID uint64          `json:"donation_id,omitempty"`
	UserID     *uint64         `json:"user_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Replayed   bool            `json:"replayed,omitempty"`
}

// Coordinator commits orders: it prices the cart, reserves every
// capacity-bound line through the ledger and writes the order with its
// lines, all inside one unit of work.  Either everything is persisted or
// nothing is.
type Coordinator struct {
	tx        TxRunner
	ledger    Ledger
	orders    OrderStore
	donations DonationStore
	notifier  *Notifier
	publisher EventPublisher
	metrics   *metrics.Checkout

	// async runs best-effort post-commit work.
	async func(func())
	now   func() time.Time
}

// NewCoordinator wires a Coordinator.  notifier, publisher and m may be nil.
func NewCoordinator(tx TxRunner, ledger Ledger, orders OrderStore, donations DonationStore,
	notifier *Notifier, publisher EventPublisher, m *metrics.Checkout) *Coordinator {
	return &Coordinator{
		tx:        tx,
		ledger:    ledger,
		orders:    orders,
		donations: donations,
		notifier:  notifier,
		publisher: publisher,
		metrics:   m,
		async:     func(f func()) { go f() },
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Commit validates and persists one order.  Validation and price problems
// are reported before the unit of work starts.  Inside it, the first
// rejected reservation, constraint violation or store failure rolls back
// every write made so far.
func (c *Coordinator) Commit(ctx context.Context, req OrderRequest) (*Receipt, error) {
	r, err := c.commit(ctx, req)
	switch {
	case err != nil:
		c.metrics.CheckoutOutcome(string(req.Variant), outcomeLabel(err))
	case r.Replayed:
		c.metrics.CheckoutOutcome(string(req.Variant), "replayed")
	default:
		c.metrics.CheckoutOutcome(string(req.Variant), "committed")
	}
	return r, err
}

func (c *Coordinator) commit(ctx context.Context, req OrderRequest) (*Receipt, error) {
	if err := validateOrder(req); err != nil {
		return nil, err
	}
	hash := requestHash(req)
	if req.IdempotencyKey != "" {
		r, ok, err := c.replay(ctx, req.IdempotencyKey, hash)
		if err != nil {
			return nil, classify(err)
		}
		if ok {
			return r, nil
		}
	}

	totals := pricing.Compute(pricingLines(req.Lines), req.DiscountPercent, req.TaxRate)
	if locked := lockedSum(req.Lines); !locked.Equal(totals.SubtotalAfterDiscount) {
		return nil, fmt.Errorf("%w: line items add up to %s, order is priced at %s",
			ErrPriceMismatch, locked.StringFixed(2), totals.SubtotalAfterDiscount.StringFixed(2))
	}
	if req.ExpectedTotal != nil && !req.ExpectedTotal.Equal(totals.Total) {
		return nil, fmt.Errorf("%w: expected total %s, computed %s",
			ErrPriceMismatch, req.ExpectedTotal.StringFixed(2), totals.Total.StringFixed(2))
	}

	order := &model.Order{
		UserID:         req.UserID,
		Reference:      uuid.NewString(),
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.Tax,
		TotalPrice:     totals.Total,
		TotalItems:     totalItems(req.Lines),
		PaymentMethod:  req.PaymentMethod,
		Status:         model.OrderCompleted,
		HandledBy:      req.HandledBy,
		CreatedAt:      c.now(),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
		order.RequestHash = hash
	}

	var donationID uint64
	err := c.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := c.reserveAll(ctx, tx, req.Lines); err != nil {
			return err
		}
		if req.BeforeOrder != nil {
			if err := req.BeforeOrder(ctx, tx, order); err != nil {
				return err
			}
		}
		if _, err := c.orders.CreateTx(ctx, tx, order); err != nil {
			return err
		}
		if err := c.insertLines(ctx, tx, order.ID, req.Lines); err != nil {
			return err
		}
		if req.Donation != nil {
			d := *req.Donation
			d.OrderID = order.ID
			id, err := c.donations.CreateTx(ctx, tx, &d)
			if err != nil {
				return err
			}
			donationID = id
		}
		if req.AfterOrder != nil {
			return req.AfterOrder(ctx, tx, order)
		}
		return nil
	})
	if err != nil {
		return c.failed(ctx, req, err)
	}

	r := &Receipt{
		OrderID:    order.ID,
		Reference:  order.Reference,
		Totals:     totals,
		TotalItems: order.TotalItems,
		Lines:      req.Lines,
		DonationID: donationID,
		UserID:     order.UserID,
		CreatedAt:  order.CreatedAt,
	}
	c.afterCommit(ctx, req, r)
	return r, nil
}

// reservation is one conditional mutation the cart needs.
type reservation struct {
	resource string
	id       uint64
	qty      int
}

const (
	resourceGiftShop = "giftshop_item"
	resourceEvent    = "event"
)

// reservationsFor merges lines hitting the same counter and orders them
// by resource and id, so concurrent carts take row locks in the same order.
func reservationsFor(lines []PricedLine) []reservation {
	type key struct {
		resource string
		id       uint64
	}
	sums := map[key]int{}
	for _, l := range lines {
		switch {
		case l.Kind == model.LineGiftShop:
			sums[key{resourceGiftShop, l.ItemID}] += l.Quantity
		case l.Kind == model.LineTicket && l.EventID != nil:
			sums[key{resourceEvent, *l.EventID}] += l.Quantity
		}
	}
	out := make([]reservation, 0, len(sums))
	for k, q := range sums {
		out = append(out, reservation{resource: k.resource, id: k.id, qty: q})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].resource != out[j].resource {
			return out[i].resource < out[j].resource
		}
		return out[i].id < out[j].id
	})
	return out
}

func (c *Coordinator) reserveAll(ctx context.Context, tx *sql.Tx, lines []PricedLine) error {
	for _, res := range reservationsFor(lines) {
		var (
			out repository.Outcome
			err error
		)
		if res.resource == resourceGiftShop {
			out, err = c.ledger.ReserveStockTx(ctx, tx, res.id, res.qty)
		} else {
			out, err = c.ledger.ReserveCapacityTx(ctx, tx, res.id, res.qty)
		}
		if err != nil {
			return err
		}
		c.metrics.ReservationOutcome(res.resource, out.String())
		switch out {
		case repository.Insufficient:
			return &InsufficientError{Resource: res.resource, ID: res.id, Requested: res.qty}
		case repository.Cancelled:
			return fmt.Errorf("%w: event %d is cancelled", ErrUnavailable, res.id)
		}
	}
	return nil
}

func (c *Coordinator) insertLines(ctx context.Context, tx *sql.Tx, orderID uint64, lines []PricedLine) error {
	var (
		tickets   []model.TicketLine
		giftshop  []model.GiftShopLine
		cafeteria []model.CafeteriaLine
	)
	for _, l := range lines {
		switch l.Kind {
		case model.LineTicket:
			tickets = append(tickets, model.TicketLine{TicketTypeID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice, ExhibitionID: l.ExhibitionID})
		case model.LineGiftShop:
			giftshop = append(giftshop, model.GiftShopLine{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
		case model.LineCafeteria:
			cafeteria = append(cafeteria, model.CafeteriaLine{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice, Note: l.Note})
		}
	}
	if err := c.orders.InsertTicketLinesTx(ctx, tx, orderID, tickets); err != nil {
		return err
	}
	if err := c.orders.InsertGiftShopLinesTx(ctx, tx, orderID, giftshop); err != nil {
		return err
	}
	return c.orders.InsertCafeteriaLinesTx(ctx, tx, orderID, cafeteria)
}

// failed turns an error from inside the unit of work into the caller-facing
// error.  By the time it runs the transaction has been rolled back, so the
// remaining level read here reflects any concurrent winner.
func (c *Coordinator) failed(ctx context.Context, req OrderRequest, err error) (*Receipt, error) {
	var ins *InsufficientError
	if errors.As(err, &ins) {
		ins.Remaining = c.remaining(ctx, ins.Resource, ins.ID)
		return nil, ins
	}
	if req.IdempotencyKey != "" && database.IsDuplicate(err) {
		r, ok, rerr := c.replay(ctx, req.IdempotencyKey, requestHash(req))
		switch {
		case rerr == nil && ok:
			return r, nil
		case errors.Is(rerr, ErrIdempotencyConflict):
			return nil, rerr
		}
	}
	return nil, classify(err)
}

func (c *Coordinator) remaining(ctx context.Context, resource string, id uint64) *int {
	if resource == resourceEvent {
		left, err := c.ledger.RemainingCapacity(ctx, id)
		if err != nil {
			log.Printf("checkout: re-read capacity of event %d failed: %v", id, err)
			return nil
		}
		return left
	}
	left, err := c.ledger.StockLevel(ctx, id)
	if err != nil {
		log.Printf("checkout: re-read stock of item %d failed: %v", id, err)
		return nil
	}
	return &left
}

// replay looks up an order committed under key.  Line prices are read
// back from the store, not recomputed.  An order committed under the same
// key by a different request yields ErrIdempotencyConflict.
func (c *Coordinator) replay(ctx context.Context, key, hash string) (*Receipt, bool, error) {
	o, err := c.orders.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if o.RequestHash != hash {
		return nil, false, fmt.Errorf("%w: key %q", ErrIdempotencyConflict, key)
	}
	r := &Receipt{
		OrderID:   o.ID,
		Reference: o.Reference,
		Totals: pricing.Totals{
			Subtotal:              o.Subtotal,
			DiscountAmount:        o.DiscountAmount,
			SubtotalAfterDiscount: o.Subtotal.Sub(o.DiscountAmount),
			Tax:                   o.TaxAmount,
			Total:                 o.TotalPrice,
		},
		TotalItems: o.TotalItems,
		UserID:     o.UserID,
		CreatedAt:  o.CreatedAt,
		Replayed:   true,
	}
	if lines, err := c.orders.Lines(ctx, o.ID); err == nil {
		r.Lines = echoLines(lines)
	} else {
		log.Printf("checkout: load lines of replayed order %d failed: %v", o.ID, err)
	}
	return r, true, nil
}

// afterCommit runs the best-effort observers.  Nothing here can undo the
// commit; failures are only logged.
func (c *Coordinator) afterCommit(ctx context.Context, req OrderRequest, r *Receipt) {
	bg := context.WithoutCancel(ctx)
	if c.notifier != nil {
		seen := map[uint64]bool{}
		for _, l := range req.Lines {
			if l.Kind != model.LineGiftShop || seen[l.ItemID] {
				continue
			}
			seen[l.ItemID] = true
			if _, err := c.notifier.Check(bg, l.ItemID); err != nil {
				log.Printf("checkout: low-stock check for item %d failed: %v", l.ItemID, err)
			}
		}
	}
	if c.publisher == nil {
		return
	}
	ev := queue.OrderCompletedEvent{
		OrderID:       r.OrderID,
		Reference:     r.Reference,
		Variant:       string(req.Variant),
		UserID:        r.UserID,
		PaymentMethod: string(req.PaymentMethod),
		TotalItems:    r.TotalItems,
		Subtotal:      r.Totals.Subtotal.StringFixed(2),
		Discount:      r.Totals.DiscountAmount.StringFixed(2),
		Tax:           r.Totals.Tax.StringFixed(2),
		Total:         r.Totals.Total.StringFixed(2),
		CompletedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	c.async(func() {
		pctx, cancel := context.WithTimeout(bg, 5*time.Second)
		defer cancel()
		if err := c.publisher.PublishOrderCompleted(pctx, ev); err != nil {
			log.Printf("checkout: publish order %d failed: %v", ev.OrderID, err)
		}
	})
}

func validateOrder(req OrderRequest) error {
	if !req.PaymentMethod.Valid() {
		return invalid("payment_method", "unsupported payment method %q", req.PaymentMethod)
	}
	if len(req.Lines) == 0 {
		return invalid("items", "cart is empty")
	}
	if req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return invalid("discount", "discount must be between 0 and 100")
	}
	if req.TaxRate.IsNegative() || req.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return invalid("tax_rate", "tax rate must be a fraction below 1")
	}
	donations := 0
	for i, l := range req.Lines {
		field := fmt.Sprintf("items[%d]", i)
		if l.Quantity <= 0 || l.Quantity > maxLineQuantity {
			return invalid(field+".qty", "quantity must be between 1 and %d", maxLineQuantity)
		}
		if l.ListPrice.IsNegative() || l.UnitPrice.IsNegative() {
			return invalid(field+".unit_price", "price must not be negative")
		}
		if l.Kind == model.LineDonation {
			donations++
		}
	}
	if req.Donation != nil && (donations != 1 || len(req.Lines) != 1) {
		return invalid("items", "a donation order carries exactly one donation line")
	}
	return nil
}

func pricingLines(lines []PricedLine) []pricing.Line {
	out := make([]pricing.Line, len(lines))
	for i, l := range lines {
		out[i] = pricing.Line{UnitPrice: l.ListPrice, Quantity: l.Quantity, Discountable: l.Discountable}
	}
	return out
}

// requestHash fingerprints who sent a request and what it asked for.
// Catalog prices are left out so a retry still matches after a reprice;
// donation and membership amounts are part of what was asked for.
func requestHash(req OrderRequest) string {
	id := func(p *uint64) string {
		if p == nil {
			return "-"
		}
		return strconv.FormatUint(*p, 10)
	}
	lines := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		entry := fmt.Sprintf("%s:%d:%d:%s", l.Kind, l.ItemID, l.Quantity, id(l.ExhibitionID))
		if l.Kind == model.LineDonation || l.Kind == model.LineMembership {
			entry += ":" + l.Name + ":" + l.UnitPrice.StringFixed(2)
		}
		lines = append(lines, entry)
	}
	sort.Strings(lines)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s\n", req.Variant, id(req.UserID), id(req.HandledBy), req.PaymentMethod, req.Scope)
	if d := req.Donation; d != nil {
		fmt.Fprintf(h, "donation|%s|%t\n", d.DonationType, d.IsAnonymous)
	}
	for _, l := range lines {
		fmt.Fprintln(h, l)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// lockedSum adds up the unit prices written to the line items.
func lockedSum(lines []PricedLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

func totalItems(lines []PricedLine) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func echoLines(ls repository.OrderLines) []PricedLine {
	var out []PricedLine
	for _, l := range ls.Tickets {
		out = append(out, PricedLine{Kind: model.LineTicket, ItemID: l.TicketTypeID, Quantity: l.Quantity, UnitPrice: l.UnitPrice, ExhibitionID: l.ExhibitionID})
	}
	for _, l := range ls.GiftShop {
		out = append(out, PricedLine{Kind: model.LineGiftShop, ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	for _, l := range ls.Cafeteria {
		out = append(out, PricedLine{Kind: model.LineCafeteria, ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice, Note: l.Note})
	}
	return out
}

// classify maps store failures onto the error taxonomy.  Errors that are
// already typed pass through.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrTransient):
		return &TransientError{Err: err}
	case errors.Is(err, database.ErrIntegrity):
		return &IntegrityError{Err: err}
	}
	return err
}

func outcomeLabel(err error) string {
	if code := Code(err); code != "" {
		return code
	}
	return "error"
}
