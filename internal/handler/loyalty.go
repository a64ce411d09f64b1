package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/service"
)

type LoyaltyHandler struct {
	loyalty *service.LoyaltyService
}

func NewLoyaltyHandler(loyalty *service.LoyaltyService) *LoyaltyHandler {
	return &LoyaltyHandler{loyalty: loyalty}
}

// Balance handles GET /v1/loyalty.
func (h *LoyaltyHandler) Balance(c echo.Context) error {
	userID, ok, err := caller(c)
	if !ok {
		return err
	}
	acc, err := h.loyalty.Balance(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, acc)
}
