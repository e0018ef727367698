package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdesk/ice-booking-api/internal/handler"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/internal/service"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

type downloadStub struct{}

func (downloadStub) Download(token string) (string, []byte, error) {
	if token == "good" {
		return "invoice.pdf", []byte("%PDF"), nil
	}
	return "", nil, appErrors.ErrUnauthorized
}

func newTestRouter(t *testing.T) (*gin.Engine, map[models.UserRole]string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret"})
	issued := map[models.UserRole]string{}
	for _, p := range []models.Principal{{UserID: "admin-1", Role: models.RoleAdmin}, {UserID: "renter-1", Role: models.RoleRenter}} {
		tok, err := tokens.Issue(p, time.Hour)
		require.NoError(t, err)
		issued[p.Role] = tok
	}

	r := NewRouter(Handlers{
		Requests:  handler.NewBookingRequestHandler(nil),
		Events:    handler.NewAdminEventHandler(nil),
		Conflicts: handler.NewConflictHandler(nil),
		Calendar:  handler.NewCalendarHandler(nil),
		Invoices:  handler.NewInvoiceHandler(nil, downloadStub{}),
		Exports:   handler.NewExportHandler(nil, nil),
		System:    handler.NewMetricsHandler(service.NewMetricsService(), nil),
	}, Options{APIPrefix: "/api/v1/", Tokens: tokens})
	return r, issued
}

func call(r http.Handler, method, target, token string) int {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRouterHealthEndpointsArePublic(t *testing.T) {
	r, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/health", ""))
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/ready", ""))
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/metrics", ""))
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/v1/invoices/download/good", ""))
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/api/v1/invoices/download/bad", ""))
}

func TestRouterRequiresAuthentication(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, target := range []string{"/api/v1/requests", "/api/v1/events", "/api/v1/calendar", "/api/v1/calendar.ics", "/api/v1/invoices", "/api/v1/ws"} {
		code := call(r, http.MethodGet, target, "")
		if target == "/api/v1/ws" {
			assert.Equal(t, http.StatusNotFound, code, target)
			continue
		}
		assert.Equal(t, http.StatusUnauthorized, code, target)
	}
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodPost, "/api/v1/check_conflicts", "not-a-jwt"))
}

func TestRouterRestrictsAdminRoutes(t *testing.T) {
	r, tokens := newTestRouter(t)
	renter := tokens[models.RoleRenter]

	adminOnly := []struct{ method, target string }{
		{http.MethodPost, "/api/v1/requests/admin"},
		{http.MethodPost, "/api/v1/requests/req-1/approve"},
		{http.MethodPost, "/api/v1/requests/req-1/decline"},
		{http.MethodPost, "/api/v1/requests/req-1/update"},
		{http.MethodPost, "/api/v1/requests/req-1/update_amount"},
		{http.MethodPost, "/api/v1/requests/req-1/mark_paid"},
		{http.MethodPost, "/api/v1/events"},
		{http.MethodPost, "/api/v1/events/evt-1/update"},
		{http.MethodPost, "/api/v1/events/evt-1/update_amount"},
		{http.MethodPost, "/api/v1/events/evt-1/mark_paid"},
		{http.MethodDelete, "/api/v1/events/evt-1"},
		{http.MethodPost, "/api/v1/invoices/generate"},
		{http.MethodPost, "/api/v1/invoices/inv-1/mark_paid"},
		{http.MethodGet, "/api/v1/exports/requests.csv"},
	}
	for _, route := range adminOnly {
		assert.Equal(t, http.StatusForbidden, call(r, route.method, route.target, renter), route.target)
	}
}
