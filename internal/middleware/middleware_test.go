package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rinkdesk/ice-booking-api/internal/models"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := v[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

var tokens = validatorStub{
	"admin-token":  {UserID: "admin-1", Role: models.RoleAdmin},
	"renter-token": {UserID: "renter-1", Role: models.RoleRenter},
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		p, _ := Principal(c)
		c.JSON(http.StatusOK, gin.H{"user": p.UserID, "log_user": c.GetString(contextUserIDKey)})
	})
	r.POST("/things/:id", handlers...)
	r.GET("/things/:id", handlers...)
	return r
}

func perform(r http.Handler, method, target, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAcceptsBearerAndQueryToken(t *testing.T) {
	r := newEngine(JWT(tokens))

	w := perform(r, http.MethodGet, "/things/1", "Bearer renter-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"renter-1","log_user":"renter-1"}`, w.Body.String())

	w = perform(r, http.MethodGet, "/things/1?access_token=admin-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin-1")
}

func TestJWTRejectsMissingOrBadTokens(t *testing.T) {
	r := newEngine(JWT(tokens))

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/things/1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/things/1", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/things/1", "Bearer ").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/things/1", "Bearer forged").Code)
}

func TestRequireAdmin(t *testing.T) {
	r := newEngine(JWT(tokens), RequireAdmin())

	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodPost, "/things/1", "Bearer renter-token").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/things/1", "Bearer admin-token").Code)

	bare := newEngine(RequireAdmin())
	assert.Equal(t, http.StatusUnauthorized, perform(bare, http.MethodPost, "/things/1", "").Code)
}

func TestAuditLogsMutationsOnly(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := newEngine(JWT(tokens), Audit(zap.New(core), "request"))

	perform(r, http.MethodGet, "/things/7", "Bearer admin-token")
	assert.Equal(t, 0, logs.Len())

	perform(r, http.MethodPost, "/things/7", "Bearer admin-token")
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "request", fields["resource"])
	assert.Equal(t, "7", fields["resource_id"])
	assert.Equal(t, "admin-1", fields["actor_id"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
}

func TestResponseMetaCalendarServed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var meta map[string]interface{}
	r.GET("/calendar", ResponseMeta(), func(c *gin.Context) {
		CalendarServed(c, true, "2025-03-01", "2025-03-31", 4)
		meta = Meta(c)
		c.Status(http.StatusOK)
	})

	perform(r, http.MethodGet, "/calendar", "")
	require.NotNil(t, meta)
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Equal(t, map[string]string{"start": "2025-03-01", "end": "2025-03-31"}, meta[calendarRangeKey])
	assert.Equal(t, 4, meta[calendarDaysKey])
	assert.Contains(t, meta, processingKey)
}

func TestResponseMetaEmptyWithoutRecords(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	recorded := true
	r.GET("/events", ResponseMeta(), func(c *gin.Context) {
		recorded = Meta(c) != nil
		c.Status(http.StatusOK)
	})

	perform(r, http.MethodGet, "/events", "")
	assert.False(t, recorded)
}
