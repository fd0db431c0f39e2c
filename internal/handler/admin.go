package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/museum-checkout/internal/service"
)

// AdminHandler serves staff-only stock corrections and the notification
// queue.  Routes are guarded by RequireRole(EMPLOYEE, ADMIN).
type AdminHandler struct {
	svc *service.AdminService
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(svc *service.AdminService) *AdminHandler {
	if svc == nil {
		panic("nil admin service passed to NewAdminHandler")
	}
	return &AdminHandler{svc: svc}
}

type stockAdjustment struct {
	Delta int `json:"delta" validate:"required"`
}

// AdjustStock handles PATCH /v1/admin/giftshop/:id/stock with {"delta": n}.
func (h *AdminHandler) AdjustStock(c echo.Context) error {
	itemID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var body stockAdjustment
	if err := bindAndValidate(c, &body); err != nil {
		return writeError(c, err)
	}
	level, err := h.svc.AdjustStock(c.Request().Context(), itemID, body.Delta)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item_id": itemID, "stock_quantity": level})
}

// Notifications handles GET /v1/admin/notifications.
func (h *AdminHandler) Notifications(c echo.Context) error {
	list, err := h.svc.OpenNotifications(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]echo.Map, 0, len(list))
	for _, n := range list {
		out = append(out, echo.Map{
			"id":         n.ID,
			"item_id":    n.ItemID,
			"message":    n.Message,
			"created_at": n.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": out})
}
