package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edi-link/dispatch-gateway/internal/api"
)

func (g *Gateway) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	body, err := readRawBody(r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	if !g.requireAuth(w, r, body) {
		return
	}

	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		api.WriteError(w, http.StatusBadRequest, "task id required", nil)
		return
	}

	// RequestCancel only flips the cancellation flag and, if the task is
	// still running, hands back its process handle; the supervisor's own
	// background watcher performs the actual signal-then-escalate sequence.
	status, _, found := g.registry.RequestCancel(taskID)
	if !found {
		api.WriteError(w, http.StatusNotFound, "unknown task", map[string]any{"taskId": taskID})
		return
	}

	api.WriteJSON(w, http.StatusOK, api.Ok(map[string]any{"status": status.String()}))
}
