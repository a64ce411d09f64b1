package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/service"
)

// AdminHandler groups the owner-only maintenance endpoints.
type AdminHandler struct {
	reconciler *service.Reconciler
	sweeper    *service.Sweeper
	loyalty    *service.LoyaltyService
}

func NewAdminHandler(reconciler *service.Reconciler, sweeper *service.Sweeper, loyalty *service.LoyaltyService) *AdminHandler {
	if reconciler == nil || sweeper == nil || loyalty == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{reconciler: reconciler, sweeper: sweeper, loyalty: loyalty}
}

// Refund handles POST /v1/admin/orders/:id/refund.
func (h *AdminHandler) Refund(c echo.Context) error {
	orderID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		reason = "refunded by owner"
	}
	o, err := h.reconciler.Refund(c.Request().Context(), orderID, reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// Sweep handles POST /v1/admin/sweep: one sweep cycle on demand.
func (h *AdminHandler) Sweep(c echo.Context) error {
	rep, err := h.sweeper.RunOnce(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}

// ResetLoyalty handles POST /v1/admin/loyalty/reset.  Body {"year": 2027};
// an absent year means the current one.
func (h *AdminHandler) ResetLoyalty(c echo.Context) error {
	var body struct {
		Year int `json:"year"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	if body.Year < 0 {
		return badRequest(c, "invalid year")
	}
	n, err := h.loyalty.ResetYear(c.Request().Context(), body.Year)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"accounts_reset": n})
}
