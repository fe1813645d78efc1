package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/services"
	"uplinkpolicy/pkg/config"
	"uplinkpolicy/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newRouter(t *testing.T, handlers ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	cl := logger.NewContextLogger(zaptest.NewLogger(t))
	router.Use(RecoveryMiddleware(cl), ErrorHandlerMiddleware(cl))
	router.Use(handlers...)
	return router
}

func get(router http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	router.ServeHTTP(w, req)
	return w
}

func TestHTTPRateLimitMiddleware_Disabled_AllowsRequests(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false

	router := newRouter(t, NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(router, "/test", nil).Code)
	}
}

func TestHTTPRateLimitMiddleware_Enabled_RateLimited(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 1

	router := newRouter(t, NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(router, "/test", nil).Code)

	w := get(router, "/test", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error"])
}

func TestAuthMiddleware(t *testing.T) {
	auth := services.NewAuthService("secret", "operator-key", time.Minute)
	token, _, err := auth.IssueToken("operator-key")
	require.NoError(t, err)

	router := newRouter(t)
	router.GET("/protected", AuthMiddleware(auth, domain.RoleEditor), func(c *gin.Context) {
		operator, ok := OperatorFromContext(c)
		require.True(t, ok)
		c.String(http.StatusOK, string(operator))
	})

	assert.Equal(t, http.StatusUnauthorized, get(router, "/protected", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(router, "/protected", http.Header{"Authorization": {"Token abc"}}).Code)
	assert.Equal(t, http.StatusUnauthorized, get(router, "/protected", http.Header{"Authorization": {"Bearer abc"}}).Code)

	w := get(router, "/protected", http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}

func TestErrorHandlerMiddleware_MapsCoreErrors(t *testing.T) {
	router := newRouter(t)
	router.GET("/missing", func(c *gin.Context) { c.Error(domain.ErrPolicyNotFound) })
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	assert.Equal(t, http.StatusNotFound, get(router, "/missing", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, get(router, "/panic", nil).Code)
}

func TestTracingMiddleware_RequestID(t *testing.T) {
	router := newRouter(t, TracingMiddleware())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(router, "/test", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = get(router, "/test", http.Header{RequestIDHeader: {"req-42"}})
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestErrorLogsCarryRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	cl := logger.NewContextLogger(zap.New(core))

	router := gin.New()
	router.Use(RecoveryMiddleware(cl), TracingMiddleware(), RequestLogMiddleware(cl), ErrorHandlerMiddleware(cl))
	router.GET("/store", func(c *gin.Context) { c.Error(errors.New("store down")) })
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := get(router, "/store", http.Header{RequestIDHeader: {"req-7"}})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "req-7", body["request_id"])

	failed := logs.FilterMessage("request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "req-7", failed[0].ContextMap()["request_id"])
	assert.Contains(t, failed[0].ContextMap()["error"], "store down")

	access := logs.FilterMessage("http_request").All()
	require.Len(t, access, 1)
	assert.Equal(t, "req-7", access[0].ContextMap()["request_id"])
	assert.EqualValues(t, http.StatusInternalServerError, access[0].ContextMap()["status_code"])

	w = get(router, "/panic", http.Header{RequestIDHeader: {"req-8"}})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	recovered := logs.FilterMessage("panic recovered").All()
	require.Len(t, recovered, 1)
	assert.Equal(t, "req-8", recovered[0].ContextMap()["request_id"])
}
