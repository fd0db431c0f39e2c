package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/museum-checkout/internal/service"
)

// CheckoutHandler serves the three checkout variants and the donor wall.
type CheckoutHandler struct {
	svc     *service.CheckoutService
	timeout time.Duration
}

// NewCheckoutHandler constructs a CheckoutHandler.  timeout bounds each
// checkout including its unit of work; zero means no extra bound.
func NewCheckoutHandler(svc *service.CheckoutService, timeout time.Duration) *CheckoutHandler {
	if svc == nil {
		panic("nil checkout service passed to NewCheckoutHandler")
	}
	return &CheckoutHandler{svc: svc, timeout: timeout}
}

type posResponse struct {
	OrderID    uint64               `json:"order_id"`
	Reference  string               `json:"reference"`
	Subtotal   decimal.Decimal      `json:"subtotal"`
	Discount   decimal.Decimal      `json:"discount"`
	Tax        decimal.Decimal      `json:"tax"`
	Total      decimal.Decimal      `json:"total"`
	TotalItems int                  `json:"total_items"`
	Items      []service.PricedLine `json:"items"`
	Replayed   bool                 `json:"replayed,omitempty"`
}

// statusFor is 201 for a fresh commit and 200 for an idempotent replay.
func statusFor(r *service.Receipt) int {
	if r.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

// POS handles POST /v1/checkout/pos.
func (h *CheckoutHandler) POS(c echo.Context) error {
	var req service.POSRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	key, err := idempotencyKey(c)
	if err != nil {
		return writeError(c, err)
	}
	req.IdempotencyKey = key

	ctx, cancel := h.context(c)
	defer cancel()
	r, err := h.svc.CheckoutPOS(ctx, actorFrom(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(statusFor(r), posResponse{
		OrderID:    r.OrderID,
		Reference:  r.Reference,
		Subtotal:   r.Totals.Subtotal,
		Discount:   r.Totals.DiscountAmount,
		Tax:        r.Totals.Tax,
		Total:      r.Totals.Total,
		TotalItems: r.TotalItems,
		Items:      r.Lines,
		Replayed:   r.Replayed,
	})
}

// Donate handles POST /v1/checkout/donations.
func (h *CheckoutHandler) Donate(c echo.Context) error {
	var req service.DonationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	key, err := idempotencyKey(c)
	if err != nil {
		return writeError(c, err)
	}
	req.IdempotencyKey = key

	ctx, cancel := h.context(c)
	defer cancel()
	r, err := h.svc.Donate(ctx, actorFrom(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(statusFor(r), echo.Map{
		"order_id":    r.OrderID,
		"donation_id": r.DonationID,
		"reference":   r.Reference,
		"total":       r.Totals.Total,
		"total_items": r.TotalItems,
		"replayed":    r.Replayed,
	})
}

// SignupMembership handles POST /v1/checkout/memberships.
func (h *CheckoutHandler) SignupMembership(c echo.Context) error {
	var req service.SignupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	key, err := idempotencyKey(c)
	if err != nil {
		return writeError(c, err)
	}
	req.IdempotencyKey = key

	ctx, cancel := h.context(c)
	defer cancel()
	res, err := h.svc.SignupMembership(ctx, actorFrom(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(statusFor(res.Receipt), echo.Map{
		"order_id":        res.OrderID,
		"reference":       res.Reference,
		"membership_id":   res.MembershipID,
		"user_id":         res.UserID,
		"is_renewal":      res.IsRenewal,
		"total_charged":   res.TotalCharged,
		"temp_credential": res.TempCredential,
		"replayed":        res.Replayed,
	})
}

// PublicDonations handles GET /v1/donations/public?limit=N.
func (h *CheckoutHandler) PublicDonations(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil || limit < 0 {
			return writeError(c, &service.ValidationError{Field: "limit", Message: "must be a non-negative integer"})
		}
	}
	list, err := h.svc.PublicDonations(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"donations": list})
}

func (h *CheckoutHandler) context(c echo.Context) (ctx context.Context, cancel context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), h.timeout)
}
