package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/museum-checkout/internal/model"
	"github.com/iliyamo/museum-checkout/internal/repository"
)

// maxDonation is the largest amount a DECIMAL(10,2) column holds.
var maxDonation = decimal.RequireFromString("99999999.99")

// DonationRequest is a single gift.  UserID defaults to the caller; a
// guest may only give anonymously.
type DonationRequest struct {
	UserID            *uint64             `json:"user_id,omitempty"`
	Amount            decimal.Decimal     `json:"amount"`
	DonationType      model.DonationType  `json:"donation_type" validate:"required"`
	IsAnonymous       bool                `json:"is_anonymous"`
	DedicationMessage *string             `json:"dedication_message,omitempty" validate:"omitempty,max=500"`
	PaymentMethod     model.PaymentMethod `json:"payment_method" validate:"required"`
	IdempotencyKey    string              `json:"-"`
}

// Donate commits a donation order: one tax-exempt line, no reservation.
func (s *CheckoutService) Donate(ctx context.Context, actor Actor, req DonationRequest) (*Receipt, error) {
	if !req.Amount.IsPositive() {
		return nil, invalid("amount", "amount must be positive")
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, invalid("amount", "amount must be in whole cents")
	}
	if req.Amount.GreaterThan(maxDonation) {
		return nil, invalid("amount", "amount exceeds %s", maxDonation.StringFixed(2))
	}
	if !req.DonationType.Valid() {
		return nil, invalid("donation_type", "unsupported donation type %q", req.DonationType)
	}
	if !req.PaymentMethod.Valid() {
		return nil, invalid("payment_method", "unsupported payment method %q", req.PaymentMethod)
	}
	var msg *string
	if req.DedicationMessage != nil {
		if m := strings.TrimSpace(*req.DedicationMessage); m != "" {
			if len(m) > 500 {
				return nil, invalid("dedication_message", "at most 500 characters")
			}
			msg = &m
		}
	}

	donor := req.UserID
	switch {
	case donor != nil:
		if !actor.mayActFor(*donor) {
			return nil, ErrForbidden
		}
	case actor.Authenticated() && !actor.Elevated():
		id := actor.UserID
		donor = &id
	case !req.IsAnonymous:
		return nil, invalid("user_id", "required unless the donation is anonymous")
	}

	line := &model.DonationLine{
		UserID:            donor,
		Amount:            req.Amount,
		DonationType:      req.DonationType,
		IsAnonymous:       req.IsAnonymous,
		DedicationMessage: msg,
	}
	return s.coord.Commit(ctx, OrderRequest{
		Variant:        VariantDonation,
		UserID:         donor,
		HandledBy:      handledBy(actor),
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
		TaxRate:        decimal.Zero,
		Lines: []PricedLine{{
			Kind:      model.LineDonation,
			Name:      string(req.DonationType),
			Quantity:  1,
			ListPrice: req.Amount,
			UnitPrice: req.Amount,
		}},
		Donation: line,
	})
}

// PublicDonations is the donor wall.  Anonymous donors are never named.
func (s *CheckoutService) PublicDonations(ctx context.Context, limit int) ([]repository.PublicDonation, error) {
	list, err := s.donations.ListPublic(ctx, limit)
	if err != nil {
		return nil, classify(err)
	}
	return list, nil
}
