package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// Handlers bundles every handler the router mounts.
type Handlers struct {
	DB          handler.Pinger
	Reservation *handler.ReservationHandler
	Order       *handler.OrderHandler
	Payment     *handler.PaymentHandler
	Loyalty     *handler.LoyaltyHandler
	Admin       *handler.AdminHandler
}

// Options carries the middleware configuration.  A nil Redis client makes
// the rate limiter fall back to in-process buckets and turns the cache off.
type Options struct {
	JWTSecret string
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     *redis.Client
}

// RegisterRoutes mounts the whole API on e.  Operational endpoints live at
// the root; everything else is under /v1 behind the rate limiter.
func RegisterRoutes(e *echo.Echo, h Handlers, opts Options) {
	e.GET("/healthz", handler.Health(h.DB))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1", middleware.NewTokenBucket(opts.RateLimit, opts.Redis))
	RegisterPublic(v1, h, opts)
	RegisterCustomer(v1, h, opts.JWTSecret)
	RegisterOwner(v1, h.Admin, opts.JWTSecret)
}

// RegisterPublic mounts routes that need no token: the seat map, served
// through the response cache, and the payment gateway callback whose
// authenticity is checked by signature.
func RegisterPublic(g *echo.Group, h Handlers, opts Options) {
	g.GET("/showtimes/:id/seats", h.Reservation.Seats, middleware.NewRedisCache(opts.Cache, opts.Redis))
	g.GET("/payments/callback", h.Payment.Callback)
}
