package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/service"
)

// PaymentHandler receives the gateway's callback.  The route is public;
// authenticity comes from the signature alone.
type PaymentHandler struct {
	reconciler *service.Reconciler
}

func NewPaymentHandler(reconciler *service.Reconciler) *PaymentHandler {
	if reconciler == nil {
		panic("nil reconciler passed to NewPaymentHandler")
	}
	return &PaymentHandler{reconciler: reconciler}
}

// Callback handles GET /v1/payments/callback.  Declines and replays are
// answered with 200 so the gateway stops retrying.
func (h *PaymentHandler) Callback(c echo.Context) error {
	res, err := h.reconciler.ProcessGatewayCallback(c.Request().Context(), c.QueryParams())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
