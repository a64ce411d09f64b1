package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

const testSecret = "middleware-secret"

func whoami(c echo.Context) error {
	id, ok := UserID(c)
	return c.JSON(http.StatusOK, echo.Map{"user_id": id, "ok": ok, "role": Role(c)})
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, secret string, userID uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, userID, role, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(testSecret))
	e.GET("/owner", whoami, JWTAuth(testSecret), RequireRole(RoleOwner))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, "other-secret", 7, RoleCustomer))
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, testSecret, 7, RoleCustomer))
	rec := serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":7,"ok":true,"role":"CUSTOMER"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/owner", nil)
	req.Header.Set("Authorization", bearer(t, testSecret, 7, RoleCustomer))
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/owner", nil)
	req.Header.Set("Authorization", bearer(t, testSecret, 1, RoleOwner))
	assert.Equal(t, http.StatusOK, serve(e, req).Code)
}

func TestSubject(t *testing.T) {
	for in, want := range map[interface{}]bool{
		float64(12): true, "12": true, float64(0): false, float64(1.5): false, "x": false, nil: false,
	} {
		_, ok := subject(in)
		assert.Equal(t, want, ok, "%#v", in)
	}
}

func TestTokenBucket_LocalFallback(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour,
		KeyStrategy: "ip", Prefix: "rl",
	}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, nil))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(e, req)
	}
	assert.Equal(t, http.StatusOK, call("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.1").Code)
	blocked := call("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2").Code, "buckets are per key")
}

func TestTokenBucket_Disabled(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(e, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	}
}

func TestCachePayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
}

func TestCacheKeyDistinguishesPathParams(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	e := echo.New()
	keys := map[string]bool{}
	e.GET("/v1/showtimes/:id/seats", func(c echo.Context) error {
		keys[cacheKeyFrom(cfg, c)] = true
		return nil
	})
	serve(e, httptest.NewRequest(http.MethodGet, "/v1/showtimes/1/seats", nil))
	serve(e, httptest.NewRequest(http.MethodGet, "/v1/showtimes/2/seats", nil))
	serve(e, httptest.NewRequest(http.MethodGet, "/v1/showtimes/2/seats", nil))
	assert.Len(t, keys, 2)
}

func TestRequestLog_CorrelationID(t *testing.T) {
	e := echo.New()
	e.Use(RequestLog())
	e.GET("/x", func(c echo.Context) error {
		return c.String(http.StatusOK, logging.CorrelationID(c.Request().Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(logging.CorrelationHeader, "abc-123")
	rec := serve(e, req)
	assert.Equal(t, "abc-123", rec.Body.String())
	assert.Equal(t, "abc-123", rec.Header().Get(logging.CorrelationHeader))

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, rec.Body.String())
	assert.Equal(t, rec.Body.String(), rec.Header().Get(logging.CorrelationHeader))
}
