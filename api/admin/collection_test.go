package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacklist-hub/blacklist/collection"
	"github.com/blacklist-hub/blacklist/collection/authlog"
	"github.com/blacklist-hub/blacklist/collection/configstore"
	"github.com/blacklist-hub/blacklist/collection/envcfg"
	"github.com/blacklist-hub/blacklist/collection/protection"
	"github.com/blacklist-hub/blacklist/collection/status"
	"github.com/blacklist-hub/blacklist/collector"
	"github.com/blacklist-hub/blacklist/database/dbcore"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	db, err := dbcore.Open("sqlite", filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	store := configstore.New(filepath.Join(dir, "collection_config.json"), db)
	guard := protection.New(dir, store)
	tracker := authlog.New(db, store)
	aggregator := status.New(store, guard, tracker, db)
	registry := collector.NewRegistry()
	require.NoError(t, registry.Register(collector.NewRegtech()))
	require.NoError(t, registry.Register(collector.NewSecudium()))
	coordinator := collection.New(store, tracker, guard, aggregator, registry, dir)

	router := gin.New()
	NewCollectionAPI(coordinator).RegisterRoutes(router.Group("/api/admin"))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestEnableEndpoint(t *testing.T) {
	t.Run("blocked by environment force disable", func(t *testing.T) {
		t.Setenv(envcfg.EnvForceDisable, "true")
		router := newTestRouter(t)

		w := doJSON(t, router, http.MethodPost, "/api/admin/collection/enable", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeBody(t, w)
		assert.Equal(t, "error", resp["status"])
	})

	t.Run("enables with defaults", func(t *testing.T) {
		t.Setenv(envcfg.EnvForceDisable, "false")
		router := newTestRouter(t)

		w := doJSON(t, router, http.MethodPost, "/api/admin/collection/enable", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody(t, w)
		assert.Equal(t, "success", resp["status"])
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, true, data["enabled"])
		assert.Equal(t, true, data["data_cleared"])
	})

	t.Run("bypass overrides protection", func(t *testing.T) {
		t.Setenv(envcfg.EnvForceDisable, "true")
		router := newTestRouter(t)

		w := doJSON(t, router, http.MethodPost, "/api/admin/collection/enable", map[string]interface{}{
			"bypass_protection": true,
			"reason":            "incident response",
		})
		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeBody(t, w)["data"].(map[string]interface{})
		assert.Equal(t, true, data["bypass_protection"])
	})
}

func TestDisableEndpoint(t *testing.T) {
	t.Setenv(envcfg.EnvForceDisable, "true")
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/admin/collection/disable", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, false, data["enabled"])
	assert.Equal(t, true, data["success"])
}

func TestStatusEndpoints(t *testing.T) {
	t.Setenv(envcfg.EnvForceDisable, "true")
	router := newTestRouter(t)

	for _, path := range []string{
		"/api/admin/collection/status",
		"/api/admin/collection/status/detailed",
		"/api/admin/collection/summary",
		"/api/admin/collection/requirements",
	} {
		w := doJSON(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, "GET %s", path)
		resp := decodeBody(t, w)
		assert.Equal(t, "success", resp["status"], "GET %s", path)
	}

	w := doJSON(t, router, http.MethodGet, "/api/admin/collection/status", nil)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, false, data["enabled"])
	assert.Equal(t, false, data["safe_to_enable"])
}

func TestTriggerEndpointWhenDisabled(t *testing.T) {
	t.Setenv(envcfg.EnvForceDisable, "true")
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/admin/collection/trigger/regtech", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "collection disabled", data["error"])
}

func TestBypassEndpointValidation(t *testing.T) {
	t.Setenv(envcfg.EnvForceDisable, "true")
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/admin/collection/protection/bypass", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/admin/collection/protection/bypass", map[string]interface{}{
		"reason":           "maintenance window",
		"duration_minutes": 15,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "maintenance window", data["reason"])
}

func TestAuthEndpoints(t *testing.T) {
	t.Setenv(envcfg.EnvForceDisable, "true")
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/admin/collection/auth/stats?source=regtech&hours=24", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "regtech", data["source"])

	w = doJSON(t, router, http.MethodPost, "/api/admin/collection/auth/reset", map[string]interface{}{"source": "regtech"})
	assert.Equal(t, http.StatusOK, w.Code)
	data = decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["records_cleared"])

	w = doJSON(t, router, http.MethodGet, "/api/admin/collection/auth/recent", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/admin/collection/auth/cleanup", map[string]interface{}{"days": 7})
	assert.Equal(t, http.StatusOK, w.Code)
}
