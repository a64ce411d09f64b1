package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// RegisterOwner registers OWNER-scoped maintenance endpoints under
// /v1/admin.  All routes require a valid JWT and the OWNER role.
func RegisterOwner(v1 *echo.Group, a *handler.AdminHandler, jwtSecret string) {
	g := v1.Group("/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOwner),
	)

	g.POST("/orders/:id/refund", a.Refund)
	g.POST("/sweep", a.Sweep)
	g.POST("/loyalty/reset", a.ResetLoyalty)
}
