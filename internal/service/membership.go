package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/museum-checkout/internal/model"
	"github.com/iliyamo/museum-checkout/internal/repository"
	"github.com/iliyamo/museum-checkout/internal/utils"
)

// SignupUser identifies the member.  The email is the upsert key.
type SignupUser struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// SignupMembership selects the plan and its dates (YYYY-MM-DD).  StartDate
// defaults to today and ExpirationDate to one year after the start.
type SignupMembership struct {
	PlanType       model.PlanType `json:"plan_type" validate:"required"`
	StartDate      string         `json:"start_date,omitempty"`
	ExpirationDate string         `json:"expiration_date,omitempty"`
}

// SignupPayment is what the customer was charged at the desk.
type SignupPayment struct {
	Amount        decimal.Decimal     `json:"amount"`
	PaymentMethod model.PaymentMethod `json:"payment_method" validate:"required"`
}

// SignupRequest is a membership signup or renewal checkout.
type SignupRequest struct {
	User           SignupUser       `json:"user"`
	Membership     SignupMembership `json:"membership"`
	Payment        SignupPayment    `json:"payment"`
	IdempotencyKey string           `json:"-"`
}

// SignupResult extends the receipt with the membership outcome.
// TempCredential is only set when the signup created the account.
type SignupResult struct {
	*Receipt
	MembershipID   uint64          `json:"membership_id"`
	UserID         uint64          `json:"user_id"`
	IsRenewal      bool            `json:"is_renewal"`
	TotalCharged   decimal.Decimal `json:"total_charged"`
	TempCredential string          `json:"temp_credential,omitempty"`
}

// SignupMembership creates or renews a membership.  The plan price is
// checked before anything is written.  Inside one unit of work the user is
// looked up by email (and created with a temporary credential when new),
// the membership row is created or renewed, and the order with its
// membership line is written.  Renewing an existing account requires the
// caller to be that user or staff.
func (s *CheckoutService) SignupMembership(ctx context.Context, actor Actor, req SignupRequest) (*SignupResult, error) {
	email := repository.NormalizeEmail(req.User.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, invalid("user.email", "a valid email is required")
	}
	req.User.Email = email
	price, ok := model.PlanPrices[req.Membership.PlanType]
	if !ok {
		return nil, invalid("membership.plan_type", "unknown plan %q", req.Membership.PlanType)
	}
	if !req.Payment.PaymentMethod.Valid() {
		return nil, invalid("payment.payment_method", "unsupported payment method %q", req.Payment.PaymentMethod)
	}
	if !req.Payment.Amount.Equal(price) {
		return nil, fmt.Errorf("%w: %s plan costs %s, payment was %s",
			ErrPriceMismatch, req.Membership.PlanType, price.StringFixed(2), req.Payment.Amount.StringFixed(2))
	}
	start, expires, err := membershipDates(req.Membership, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var (
		user       model.User
		membership = model.Membership{PlanType: req.Membership.PlanType, StartDate: start, ExpirationDate: expires}
		renewal    bool
		temp       string
	)
	expected := price
	receipt, err := s.coord.Commit(ctx, OrderRequest{
		Variant:        VariantMembership,
		HandledBy:      handledBy(actor),
		PaymentMethod:  req.Payment.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
		Scope:          email,
		TaxRate:        decimal.Zero,
		ExpectedTotal:  &expected,
		Lines: []PricedLine{{
			Kind:      model.LineMembership,
			Name:      string(req.Membership.PlanType),
			Quantity:  1,
			ListPrice: price,
			UnitPrice: price,
		}},
		BeforeOrder: func(ctx context.Context, tx *sql.Tx, o *model.Order) error {
			var err error
			user, temp, err = s.upsertUser(ctx, tx, actor, req.User)
			if err != nil {
				return err
			}
			membership.UserID = user.ID
			if renewal, err = s.memberships.UpsertTx(ctx, tx, &membership); err != nil {
				return err
			}
			uid := user.ID
			o.UserID = &uid
			return nil
		},
		AfterOrder: func(ctx context.Context, tx *sql.Tx, o *model.Order) error {
			_, err := s.memberships.InsertPurchaseLineTx(ctx, tx, &model.MembershipPurchaseLine{
				OrderID:      o.ID,
				MembershipID: membership.ID,
				IsRenewal:    renewal,
				LineTotal:    price,
			})
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	if receipt.Replayed {
		// The hooks did not run; only the order is known.
		res := &SignupResult{Receipt: receipt, TotalCharged: receipt.Totals.Total}
		if receipt.UserID != nil {
			res.UserID = *receipt.UserID
		}
		return res, nil
	}
	return &SignupResult{
		Receipt:        receipt,
		MembershipID:   membership.ID,
		UserID:         user.ID,
		IsRenewal:      renewal,
		TotalCharged:   receipt.Totals.Total,
		TempCredential: temp,
	}, nil
}

// upsertUser returns the user owning email, creating it when absent.  The
// temporary credential is returned in clear only for a new account.  A
// guest reusing a registered email gets an IntegrityError; a signed-in
// caller renewing someone else's account gets ErrForbidden.
func (s *CheckoutService) upsertUser(ctx context.Context, tx *sql.Tx, actor Actor, in SignupUser) (model.User, string, error) {
	u, err := s.users.GetByEmailTx(ctx, tx, in.Email)
	if err == nil {
		switch {
		case actor.mayActFor(u.ID):
			return u, "", nil
		case !actor.Authenticated():
			return model.User{}, "", &IntegrityError{Err: fmt.Errorf("%w: %s", repository.ErrEmailExists, in.Email)}
		}
		return model.User{}, "", ErrForbidden
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, "", err
	}

	temp, err := utils.NewTempCredential()
	if err != nil {
		return model.User{}, "", fmt.Errorf("temp credential: %w", err)
	}
	hash, err := utils.HashPassword(temp, s.bcryptCost)
	if err != nil {
		return model.User{}, "", fmt.Errorf("hash credential: %w", err)
	}
	u = model.User{
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		Role:         model.RoleCustomer,
	}
	if _, err := s.users.CreateTx(ctx, tx, &u); err != nil {
		return model.User{}, "", err
	}
	return u, temp, nil
}

func membershipDates(m SignupMembership, now time.Time) (time.Time, time.Time, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if m.StartDate != "" {
		d, err := time.Parse("2006-01-02", m.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, invalid("membership.start_date", "expected YYYY-MM-DD")
		}
		start = d
	}
	expires := start.AddDate(1, 0, 0)
	if m.ExpirationDate != "" {
		d, err := time.Parse("2006-01-02", m.ExpirationDate)
		if err != nil {
			return time.Time{}, time.Time{}, invalid("membership.expiration_date", "expected YYYY-MM-DD")
		}
		expires = d
	}
	if !expires.After(start) {
		return time.Time{}, time.Time{}, invalid("membership.expiration_date", "must be after the start date")
	}
	return start, expires, nil
}
