package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/logging"
)

// RequestLog attaches a correlation id and a request-scoped logrus entry to
// every request, then logs the outcome.  The id is taken from the
// Correlation-ID header when present and echoed back on the response.
func RequestLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(logging.CorrelationHeader)
			if id == "" {
				id = shortuuid.New()
			}
			c.Response().Header().Set(logging.CorrelationHeader, id)

			entry := logrus.WithFields(logrus.Fields{
				"correlation_id": id,
				"method":         req.Method,
				"path":           req.URL.Path,
			})
			ctx := logging.WithCorrelationID(req.Context(), id)
			ctx = logging.WithEntry(ctx, entry)
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			// JWTAuth may have enriched the entry further down the chain.
			log := logging.FromContext(c.Request().Context()).WithFields(logrus.Fields{
				"status":      c.Response().Status,
				"duration_ms": time.Since(start).Milliseconds(),
				"ip":          c.RealIP(),
			})
			switch status := c.Response().Status; {
			case status >= 500:
				log.Error("request failed")
			case status >= 400:
				log.Warn("request rejected")
			default:
				log.Debug("request served")
			}
			return nil
		}
	}
}
