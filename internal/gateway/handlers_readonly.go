package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edi-link/dispatch-gateway/internal/api"
	"github.com/edi-link/dispatch-gateway/internal/threadstore"
)

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, api.Ok(map[string]any{
		"server":  "edi-dispatch-gateway",
		"version": ServerVersion,
	}))
}

func (g *Gateway) handleListTasks(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, api.Ok(map[string]any{
		"tasks": g.registry.ListRunning(),
	}))
}

func (g *Gateway) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")

	if err := threadstore.ValidateID(threadID); err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid threadId", nil)
		return
	}

	if !g.threads.Exists(threadID) {
		api.WriteError(w, http.StatusNotFound, "thread not found", map[string]any{"threadId": threadID})
		return
	}

	// limit, when given, keeps only the entries belonging to the most
	// recent N turns rather than the whole transcript.
	limit, err := api.ParseIntParam(r.URL.Query().Get("limit"), 1, 10000, 0)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid limit", nil)
		return
	}

	entries := g.threads.Load(threadID)
	if limit > 0 {
		entries = threadstore.FilterRecent(entries, limit)
	}
	if entries == nil {
		entries = []threadstore.Entry{}
	}
	api.WriteJSON(w, http.StatusOK, api.Ok(map[string]any{
		"threadId": threadID,
		"entries":  entries,
	}))
}
