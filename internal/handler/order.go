package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/service"
)

// OrderHandler serves the customer's order lifecycle up to the payment
// redirect.
type OrderHandler struct {
	booking *service.BookingService
}

func NewOrderHandler(booking *service.BookingService) *OrderHandler {
	if booking == nil {
		panic("nil booking service passed to NewOrderHandler")
	}
	return &OrderHandler{booking: booking}
}

// Create handles POST /v1/orders.  The seats must be held by the caller.
func (h *OrderHandler) Create(c echo.Context) error {
	userID, ok, err := caller(c)
	if !ok {
		return err
	}
	var req service.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ShowtimeID == 0 {
		return badRequest(c, "showtime_id is required")
	}
	req.UserID = userID
	sum, err := h.booking.CreateOrder(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, sum)
}

// Get handles GET /v1/orders/:code.
func (h *OrderHandler) Get(c echo.Context) error {
	userID, ok, err := caller(c)
	if !ok {
		return err
	}
	o, err := h.booking.GetOrder(c.Request().Context(), userID, c.Param("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// Cancel handles POST /v1/orders/:code/cancel.
func (h *OrderHandler) Cancel(c echo.Context) error {
	userID, ok, err := caller(c)
	if !ok {
		return err
	}
	o, err := h.booking.CancelOrder(c.Request().Context(), userID, c.Param("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order_code": o.Code, "status": o.Status})
}

// PaymentURL handles POST /v1/orders/:code/payment-url.
func (h *OrderHandler) PaymentURL(c echo.Context) error {
	userID, ok, err := caller(c)
	if !ok {
		return err
	}
	u, err := h.booking.PaymentURL(c.Request().Context(), userID, c.Param("code"), c.RealIP())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"payment_url": u})
}
