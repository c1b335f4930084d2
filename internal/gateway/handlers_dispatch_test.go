package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edi-link/dispatch-gateway/internal/testutil"
)

func dispatchRequest(t *testing.T, body map[string]any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/dispatch", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleDispatch_CompletesWithinEarlyWindow(t *testing.T) {
	bin := t.TempDir()
	testutil.WriteFakeAgentBinary(t, bin, "codex", "done", 0, 0)
	t.Setenv("PATH", bin+":"+os.Getenv("PATH"))

	gw := newTestGateway(t, "http://127.0.0.1:1")
	req := dispatchRequest(t, map[string]any{
		"agent":   "codex",
		"message": "do the thing",
	})
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "completed", resp["status"])
	require.NotEmpty(t, resp["threadId"])
}

func TestHandleDispatch_RejectsUnknownAgent(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1")
	req := dispatchRequest(t, map[string]any{
		"agent":   "not-an-agent",
		"message": "hi",
	})
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDispatch_RejectsMissingMessage(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1")
	req := dispatchRequest(t, map[string]any{"agent": "codex"})
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDispatch_RejectsThreadBoundToOtherAgent(t *testing.T) {
	bin := t.TempDir()
	testutil.WriteFakeAgentBinary(t, bin, "claude", "done", 0, 0)
	t.Setenv("PATH", bin+":"+os.Getenv("PATH"))

	gw := newTestGateway(t, "http://127.0.0.1:1")
	require.NoError(t, appendEntry(gw, "bound-thread", "claude", "earlier reply"))

	req := dispatchRequest(t, map[string]any{
		"agent":    "codex",
		"message":  "hi",
		"threadId": "bound-thread",
	})
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDispatch_RawTextBodyWithHeaderParams(t *testing.T) {
	bin := t.TempDir()
	testutil.WriteFakeAgentBinary(t, bin, "gemini", "ok", 0, 50*time.Millisecond)
	t.Setenv("PATH", bin+":"+os.Getenv("PATH"))

	gw := newTestGateway(t, "http://127.0.0.1:1")
	req := httptest.NewRequest(http.MethodPost, "/dispatch", bytes.NewReader([]byte("do something useful")))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-EDI-Agent", "gemini")
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleDispatch_RejectsMissingWorkdir(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1")
	req := dispatchRequest(t, map[string]any{
		"agent":   "codex",
		"message": "hi",
		"workdir": "/path/does/not/exist/anywhere",
	})
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
