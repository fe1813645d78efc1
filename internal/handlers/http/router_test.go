package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"uplinkpolicy/internal/core/services"
	"uplinkpolicy/internal/infrastructure/monitoring"
	"uplinkpolicy/internal/infrastructure/repositories/memory"
	"uplinkpolicy/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testAPIKey = "operator-key"

type testAPI struct {
	router *gin.Engine
	health *monitoring.HealthChecker
	auth   services.AuthService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	collector := monitoring.NewPrometheusCollector(registry)

	policies, err := services.NewPolicyService(ctx, memory.NewMemoryPolicyRepository(), services.PolicyServiceOptions{
		Recorder: collector,
	}, logger)
	require.NoError(t, err)

	uplink := services.NewUplinkService(policies, collector, logger)
	auth := services.NewAuthService("secret", testAPIKey, time.Minute)
	health := monitoring.NewHealthChecker()

	router := NewRouter(RouterDeps{
		Config:   config.DefaultConfig(),
		Policies: policies,
		Uplink:   uplink,
		Auth:     auth,
		Health:   health,
		Gatherer: registry,
		Logger:   logger,
	})
	return &testAPI{router: router, health: health, auth: auth}
}

func (a *testAPI) token(t *testing.T) string {
	t.Helper()
	token, _, err := a.auth.IssueToken(testAPIKey)
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

var classroomRules = []map[string]interface{}{
	{"max_participants": 4, "max_bitrate_kbps": 350, "low_kbps": 150, "medium_kbps": 600, "high_kbps": 0},
	{"max_participants": "max", "max_bitrate_kbps": "max", "low_kbps": 300, "medium_kbps": 0, "high_kbps": 0},
}

func TestRouter_HealthAndReady(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	api.health.AddCheck("store", func(context.Context) error { return nil }, 0)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/ready", nil, "").Code)

	api.health.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") }, 0)
	w = api.do(t, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := decode(t, w)["checks"].(map[string]interface{})
	assert.Equal(t, "connection refused", checks["redis"])
	assert.Equal(t, "healthy", checks["store"])
}

func TestRouter_IssueToken(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{"api_key": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{"api_key": testAPIKey}, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Bearer", body["token_type"])
	assert.NotEmpty(t, body["access_token"])

	w = api.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_ListsDefaultPolicy(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/policies/default", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	rules := body["rules"].([]interface{})
	require.Len(t, rules, 11)

	first := rules[0].(map[string]interface{})
	assert.EqualValues(t, 2, first["max_participants"])
	assert.Equal(t, "max", first["max_bitrate_kbps"])
	assert.Equal(t, "high", first["active_streams"])
	assert.Equal(t, "Rule 0: 2 / max = high (0,0,1200)", first["description"])

	w = api.do(t, http.MethodGet, "/api/v1/policies", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["policies"], 1)
}

func TestRouter_PolicyLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t)
	body := map[string]interface{}{"rules": classroomRules}

	w := api.do(t, http.MethodPut, "/api/v1/policies/classroom", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPut, "/api/v1/policies/classroom", body, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["version"])

	w = api.do(t, http.MethodPut, "/api/v1/policies/classroom", body, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["version"])

	w = api.do(t, http.MethodPost, "/api/v1/policies/classroom/match", map[string]int{"participants": 3, "bitrate_kbps": 300}, "")
	require.Equal(t, http.StatusOK, w.Code)
	match := decode(t, w)
	assert.EqualValues(t, 0, match["rule_index"])
	assert.Equal(t, false, match["fallback"])
	assert.Equal(t, "medium+low", match["active_streams"])

	w = api.do(t, http.MethodDelete, "/api/v1/policies/classroom", nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/policies/classroom", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w)["error"])

	w = api.do(t, http.MethodDelete, "/api/v1/policies/default", nil, token)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_MatchFallback(t *testing.T) {
	api := newTestAPI(t)
	rules := []map[string]interface{}{
		{"max_participants": 2, "max_bitrate_kbps": 300, "low_kbps": 0, "medium_kbps": 0, "high_kbps": 1200},
	}
	w := api.do(t, http.MethodPut, "/api/v1/policies/finite", map[string]interface{}{"rules": rules}, api.token(t))
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/policies/finite/match", map[string]int{"participants": 20, "bitrate_kbps": 5000}, "")
	require.Equal(t, http.StatusOK, w.Code)
	match := decode(t, w)
	assert.Equal(t, true, match["fallback"])
	assert.EqualValues(t, -1, match["rule_index"])
	assert.Equal(t, "low", match["active_streams"])
}

func TestRouter_ValidatePolicy(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/policies/validate", map[string]interface{}{"rules": classroomRules}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["valid"])

	bad := []map[string]interface{}{
		{"max_participants": 6, "max_bitrate_kbps": 350, "low_kbps": 150, "medium_kbps": 600, "high_kbps": 0},
		{"max_participants": 4, "max_bitrate_kbps": 350, "low_kbps": 0, "medium_kbps": 600, "high_kbps": 0},
	}
	w = api.do(t, http.MethodPost, "/api/v1/policies/validate", map[string]interface{}{"rules": bad}, "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, "INVALID_POLICY", body["error"])
	issues := body["details"].(map[string]interface{})["issues"].([]interface{})
	assert.GreaterOrEqual(t, len(issues), 3)

	w = api.do(t, http.MethodPost, "/api/v1/policies/validate", map[string]interface{}{"rules": []interface{}{}}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_UplinkReport(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/sessions/room-1/senders/alice/uplink", map[string]int{"uplink_kbps": 300, "participants": 4}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["changed"])
	decision := body["decision"].(map[string]interface{})
	assert.EqualValues(t, 2, decision["rule_index"])
	assert.Equal(t, "medium+low", decision["active_streams"])

	w = api.do(t, http.MethodGet, "/api/v1/sessions/room-1/senders/alice/decision", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "default", decode(t, w)["policy"])

	w = api.do(t, http.MethodGet, "/api/v1/sessions/room-1/senders/alice/history", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["history"], 1)

	w = api.do(t, http.MethodGet, "/api/v1/sessions/room-1/senders/bob/decision", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/room-1/senders/alice/uplink", map[string]int{"uplink_kbps": -5}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_UplinkReportAboveAnyLimit(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/sessions/room-1/senders/alice/uplink", map[string]int{"uplink_kbps": 1_000_001, "participants": 10}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decision := decode(t, w)["decision"].(map[string]interface{})
	assert.EqualValues(t, 10, decision["rule_index"])
	assert.Equal(t, "medium+low", decision["active_streams"])

	w = api.do(t, http.MethodPost, "/api/v1/policies/default/match", map[string]int{"participants": 50_000, "bitrate_kbps": 5_000_000}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 10, decode(t, w)["rule_index"])
}

func TestRouter_SessionPolicy(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t)

	w := api.do(t, http.MethodPut, "/api/v1/sessions/room-1/policy", map[string]string{"policy": "classroom"}, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPut, "/api/v1/policies/classroom", map[string]interface{}{"rules": classroomRules}, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPut, "/api/v1/sessions/room-1/policy", map[string]string{"policy": "classroom"}, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/room-1/senders/alice/uplink", map[string]int{"uplink_kbps": 9999, "participants": 1}, "")
	require.Equal(t, http.StatusOK, w.Code)
	decision := decode(t, w)["decision"].(map[string]interface{})
	assert.Equal(t, "classroom", decision["policy"])
	assert.Equal(t, "low", decision["active_streams"])
}

func TestRouter_Metrics(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/policies/default/match", map[string]int{"participants": 4, "bitrate_kbps": 300}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `uplinkpolicy_matches_total{policy="default",rule="2"} 1`)
}

func TestRouter_AssignsRequestID(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/health", nil, "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
