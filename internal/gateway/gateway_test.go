package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edi-link/dispatch-gateway/internal/config"
	"github.com/edi-link/dispatch-gateway/internal/logging"
)

func newTestGateway(t *testing.T, upstreamURL string) *Gateway {
	t.Helper()
	cfg := &config.Config{
		ListenHost:                "127.0.0.1",
		ListenPort:                0,
		ThreadsDir:                t.TempDir(),
		DispatchDefaultTimeout:    5 * time.Second,
		DispatchDefaultWorkdir:    t.TempDir(),
		DispatchMaxTurns:          25,
		DispatchEarlyCheckSeconds: 200 * time.Millisecond,
		UpstreamBaseURL:           upstreamURL,
		UpstreamCallTimeout:       2 * time.Second,
		LogLevel:                  "error",
	}
	log := logging.New(logging.Config{Level: logging.LevelError})
	return New(cfg, log)
}

func TestHandleHealth(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"server":"edi-dispatch-gateway"`)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestCorsPreflight(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1")
	req := httptest.NewRequest(http.MethodOptions, "/dispatch", nil)
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleListTasks_Empty(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1")
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"tasks":[]}`, rec.Body.String())
}
