package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/museum-checkout/internal/model"
	"github.com/iliyamo/museum-checkout/internal/pricing"
)

// POSItem is one requested line of a POS cart.  UnitPrice is the price the
// terminal displayed: the catalog price with the member discount applied
// for gift-shop and cafeteria goods, the plain catalog price for tickets.
type POSItem struct {
	ID           uint64          `json:"id" validate:"required"`
	Qty          int             `json:"qty" validate:"min=1,max=1000"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Note         *string         `json:"note,omitempty" validate:"omitempty,max=255"`
	ExhibitionID *uint64         `json:"exhibition_id,omitempty"`
}

// POSRequest is a unified cart of cafeteria, gift-shop and ticket items.
// CustomerID defaults to the caller for customers; staff may ring up a
// walk-in sale by leaving it empty.
type POSRequest struct {
	CustomerID     *uint64             `json:"customer_id,omitempty"`
	PaymentMethod  model.PaymentMethod `json:"payment_method" validate:"required"`
	CafeteriaItems []POSItem           `json:"cafeteria_items" validate:"dive"`
	GiftShopItems  []POSItem           `json:"giftshop_items" validate:"dive"`
	TicketItems    []POSItem           `json:"ticket_items" validate:"dive"`
	IdempotencyKey string              `json:"-"`
}

// CheckoutPOS commits a POS cart.  The customer's discount is looked up
// from their membership, every unit price is re-derived from the catalog
// and a caller price that differs is rejected with ErrPriceMismatch.
func (s *CheckoutService) CheckoutPOS(ctx context.Context, actor Actor, req POSRequest) (*Receipt, error) {
	if !req.PaymentMethod.Valid() {
		return nil, invalid("payment_method", "unsupported payment method %q", req.PaymentMethod)
	}
	if len(req.CafeteriaItems)+len(req.GiftShopItems)+len(req.TicketItems) == 0 {
		return nil, invalid("items", "cart is empty")
	}

	customer, err := resolveCustomer(actor, req.CustomerID)
	if err != nil {
		return nil, err
	}
	discount := decimal.Zero
	if customer != nil {
		if discount, err = s.memberships.ActiveDiscount(ctx, *customer); err != nil {
			return nil, classify(err)
		}
	}

	var lines []PricedLine
	for _, group := range []struct {
		kind  model.LineKind
		items []POSItem
	}{
		{model.LineTicket, req.TicketItems},
		{model.LineGiftShop, req.GiftShopItems},
		{model.LineCafeteria, req.CafeteriaItems},
	} {
		priced, err := s.priceGroup(ctx, group.kind, group.items, discount)
		if err != nil {
			return nil, err
		}
		lines = append(lines, priced...)
	}

	return s.coord.Commit(ctx, OrderRequest{
		Variant:         VariantPOS,
		UserID:          customer,
		HandledBy:       handledBy(actor),
		PaymentMethod:   req.PaymentMethod,
		IdempotencyKey:  req.IdempotencyKey,
		DiscountPercent: discount,
		TaxRate:         s.taxRate,
		Lines:           lines,
	})
}

func (s *CheckoutService) priceGroup(ctx context.Context, kind model.LineKind, items []POSItem, discount decimal.Decimal) ([]PricedLine, error) {
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]uint64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	catalog, err := s.catalog.ListByIDs(ctx, kind, ids)
	if err != nil {
		return nil, classify(err)
	}

	discountable := kind != model.LineTicket
	out := make([]PricedLine, 0, len(items))
	for i, it := range items {
		field := fmt.Sprintf("%s_items[%d]", kind, i)
		if it.Qty <= 0 || it.Qty > maxLineQuantity {
			return nil, invalid(field+".qty", "quantity must be between 1 and %d", maxLineQuantity)
		}
		entry, ok := catalog[it.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s item %d", ErrNotFound, kind, it.ID)
		}
		if !entry.IsAvailable {
			return nil, fmt.Errorf("%w: %s item %d (%s) is not available", ErrUnavailable, kind, it.ID, entry.Name)
		}
		expected := pricing.Round(entry.Price)
		if discountable {
			expected = pricing.DiscountedUnitPrice(entry.Price, discount)
		}
		if !it.UnitPrice.Equal(expected) {
			return nil, fmt.Errorf("%w: %s item %d: sent %s, expected %s",
				ErrPriceMismatch, kind, it.ID, it.UnitPrice.StringFixed(2), expected.StringFixed(2))
		}
		line := PricedLine{
			Kind:         kind,
			ItemID:       it.ID,
			Name:         entry.Name,
			Quantity:     it.Qty,
			ListPrice:    entry.Price,
			UnitPrice:    expected,
			Discountable: discountable,
		}
		switch kind {
		case model.LineTicket:
			line.EventID = entry.EventID
			line.ExhibitionID = it.ExhibitionID
		case model.LineCafeteria:
			line.Note = it.Note
		}
		out = append(out, line)
	}
	return out, nil
}

// resolveCustomer applies the owner-or-elevated rule to the customer a
// cart is rung up for.
func resolveCustomer(actor Actor, requested *uint64) (*uint64, error) {
	if requested == nil {
		if actor.Authenticated() && !actor.Elevated() {
			id := actor.UserID
			return &id, nil
		}
		return nil, nil
	}
	if !actor.mayActFor(*requested) {
		return nil, ErrForbidden
	}
	id := *requested
	return &id, nil
}

func handledBy(actor Actor) *uint64 {
	if !actor.Elevated() || !actor.Authenticated() {
		return nil
	}
	id := actor.UserID
	return &id
}
