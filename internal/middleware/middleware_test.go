package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/workshop-booking/internal/config"
	"github.com/iliyamo/workshop-booking/internal/model"
	"github.com/iliyamo/workshop-booking/internal/utils"
)

const testSecret = "test-secret"

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func protectedEcho(roles ...string) *echo.Echo {
	e := echo.New()
	mws := []echo.MiddlewareFunc{JWTAuth(testSecret)}
	if len(roles) > 0 {
		mws = append(mws, RequireRole(roles...))
	}
	e.GET("/p", func(c echo.Context) error {
		id, _ := UserID(c)
		return c.JSON(http.StatusOK, echo.Map{"user_id": id, "role": c.Get(CtxRole)})
	}, mws...)
	return e
}

func bearer(t *testing.T, userID uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, userID, role, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func TestJWTAuth(t *testing.T) {
	e := protectedEcho()

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, 42, model.RoleUser))
	rec := serve(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":42,"role":"user"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := protectedEcho(model.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, 42, model.RoleUser))
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, 1, model.RoleAdmin))
	assert.Equal(t, http.StatusOK, serve(e, req).Code)
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger())
	e.GET("/x", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc")
	assert.Equal(t, "abc", serve(e, req).Header().Get(echo.HeaderXRequestID))
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/checkout/create", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/checkout/create")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}
	assert.Equal(t, "rl:user:anon:route:POST /checkout/create", rateKey(cfg, c))

	c.Set(CtxUserID, uint64(9))
	assert.Equal(t, "rl:user:9:route:POST /checkout/create", rateKey(cfg, c))

	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.1", rateKey(cfg, c))
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		RateLimit(config.RateLimitConfig{Enabled: true}, nil))
	assert.Equal(t, http.StatusNoContent, serve(e, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestCacheEntryRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodeEntry(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodeEntry(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodeEntry([]byte{0, 1})
	assert.False(t, ok)
}

func TestResponseCacheHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: 10 * time.Second, Prefix: "catalog"}

	e := echo.New()
	called := false
	e.GET("/v1/workshops", func(c echo.Context) error {
		called = true
		return c.JSON(http.StatusOK, echo.Map{"fresh": true})
	}, ResponseCache(cfg, rdb))

	req := httptest.NewRequest(http.MethodGet, "/v1/workshops?category=art", nil)
	key := cacheKey(cfg, e.NewContext(req, httptest.NewRecorder()))
	payload, err := encodeEntry(http.StatusOK, http.Header{"Content-Type": {"application/json"}}, []byte(`{"cached":true}`))
	require.NoError(t, err)
	mock.ExpectGet(key).SetVal(string(payload))

	rec := serve(e, req)
	assert.False(t, called)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"cached":true}`, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}
