package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edi-link/dispatch-gateway/internal/dispatch"
	"github.com/edi-link/dispatch-gateway/internal/taskstate"
)

func TestHandleCancelTask_UnknownTask(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1")
	req := httptest.NewRequest(http.MethodPost, "/tasks/does-not-exist/cancel", nil)
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCancelTask_RunningTaskReturnsCanceling(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1")
	gw.registry.Create(&dispatch.Record{
		TaskID:    "task-1",
		ThreadID:  "thread-1",
		Agent:     "codex",
		Status:    taskstate.Running,
		StartedAt: time.Now(),
	})

	req := httptest.NewRequest(http.MethodPost, "/tasks/task-1/cancel", nil)
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"canceling"`)
}

func TestHandleCancelTask_TerminalTaskIsIdempotent(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1")
	gw.registry.Create(&dispatch.Record{
		TaskID:    "task-2",
		ThreadID:  "thread-2",
		Agent:     "codex",
		Status:    taskstate.Completed,
		StartedAt: time.Now(),
	})

	req := httptest.NewRequest(http.MethodPost, "/tasks/task-2/cancel", nil)
	rec := httptest.NewRecorder()

	gw.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"completed"`)
}
