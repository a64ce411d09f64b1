package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// RegisterCustomer registers customer-scoped endpoints.  All routes require a
// valid JWT and the CUSTOMER role.  Customers hold and release seats, turn
// holds into orders, obtain a payment link and read their loyalty balance.
func RegisterCustomer(v1 *echo.Group, h Handlers, jwtSecret string) {
	auth := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	}

	g := v1.Group("", auth...)
	g.GET("/showtimes/:id/hold", h.Reservation.Holds)
	g.POST("/showtimes/:id/hold", h.Reservation.Hold)
	g.DELETE("/showtimes/:id/hold", h.Reservation.Release)

	g.POST("/orders", h.Order.Create)
	g.GET("/orders/:code", h.Order.Get)
	g.POST("/orders/:code/cancel", h.Order.Cancel)
	g.POST("/orders/:code/payment-url", h.Order.PaymentURL)

	g.GET("/loyalty", h.Loyalty.Balance)
}
