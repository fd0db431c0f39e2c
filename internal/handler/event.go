package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/museum-checkout/internal/service"
)

// EventHandler serves free-event RSVPs and the public availability view.
type EventHandler struct {
	svc *service.RSVPService
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.RSVPService) *EventHandler {
	if svc == nil {
		panic("nil rsvp service passed to NewEventHandler")
	}
	return &EventHandler{svc: svc}
}

// RSVP handles POST /v1/events/:id/rsvp.  A full event answers 409 with
// the spots still left in remaining_spots.
func (h *EventHandler) RSVP(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req service.RSVPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	req.EventID = eventID

	res, err := h.svc.Reserve(c.Request().Context(), actorFrom(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Availability handles GET /v1/events/:id/availability.
func (h *EventHandler) Availability(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	a, err := h.svc.Availability(c.Request().Context(), eventID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}
