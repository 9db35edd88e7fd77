package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/workshop-booking/internal/config"
	"github.com/iliyamo/workshop-booking/internal/handler"
	"github.com/iliyamo/workshop-booking/internal/model"
	"github.com/iliyamo/workshop-booking/internal/utils"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

const secret = "router-secret"

func newEcho() *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, okPinger{})
	RegisterBooking(e, handler.NewRegistrationHandler(nil), handler.NewMeHandler(nil, nil), secret, config.RateLimitConfig{}, nil)
	RegisterWebhook(e, handler.NewWebhookHandler(nil))
	RegisterAdmin(e, handler.NewAdminHandler(nil, nil), secret)
	return e
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, 42, role, 5)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok.Token
}

func serve(e *echo.Echo, method, path, auth string) int {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRoutesRegistered(t *testing.T) {
	e := newEcho()
	seen := map[string]bool{}
	for _, r := range e.Routes() {
		seen[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"POST /registration/free",
		"POST /checkout/create",
		"POST /webhooks/payment",
		"GET /v1/me/upcoming",
		"POST /v1/admin/workshops",
		"PUT /v1/admin/workshops/:id",
		"GET /v1/admin/sessions/:id/participants",
	} {
		assert.True(t, seen[want], want)
	}
}

func TestBookingRequiresToken(t *testing.T) {
	e := newEcho()
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/healthz", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodPost, "/registration/free", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodPost, "/checkout/create", "Bearer junk"))
}

func TestAdminRequiresAdminRole(t *testing.T) {
	e := newEcho()
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodPost, "/v1/admin/workshops", bearer(t, model.RoleUser)))
	// admin passes the guard and reaches validation
	assert.Equal(t, http.StatusBadRequest, serve(e, http.MethodPost, "/v1/admin/workshops", bearer(t, model.RoleAdmin)))
}

func TestWebhookIsPublic(t *testing.T) {
	e := newEcho()
	// no signature header: rejected by the handler, not by auth
	assert.Equal(t, http.StatusBadRequest, serve(e, http.MethodPost, "/webhooks/payment", ""))
}
