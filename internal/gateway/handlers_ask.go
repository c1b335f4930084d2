package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/edi-link/dispatch-gateway/internal/api"
	"github.com/edi-link/dispatch-gateway/internal/config"
	"github.com/edi-link/dispatch-gateway/internal/threadstore"
	"github.com/edi-link/dispatch-gateway/internal/upstream"
)

type askRequest struct {
	Message        string `json:"message"`
	ThreadID       string `json:"threadId"`
	Timeout        int    `json:"timeout"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

func (r askRequest) resolvedTimeoutSeconds() int {
	if r.TimeoutSeconds > 0 {
		return r.TimeoutSeconds
	}
	return r.Timeout
}

// handleAsk implements the low-latency question/answer path: a new thread
// triggers an upstream session and polls its history for the first assistant
// reply, while an existing thread sends a synchronous continuation that
// upstream answers inline.
func (g *Gateway) handleAsk(w http.ResponseWriter, r *http.Request) {
	body, err := readRawBody(r)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	var req askRequest
	if !api.DecodeJSON(w, &req, body) {
		return
	}

	if req.Message == "" {
		api.WriteError(w, http.StatusBadRequest, "message is required", nil)
		return
	}

	if !g.requireAuth(w, r, body) {
		return
	}

	secs := req.resolvedTimeoutSeconds()
	timeout := config.DefaultAskTimeout
	if secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	if req.ThreadID == "" {
		g.handleNewAsk(w, r, req, timeout)
		return
	}

	if err := threadstore.ValidateID(req.ThreadID); err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid threadId", nil)
		return
	}
	g.handleContinueAsk(w, r, req, timeout)
}

func (g *Gateway) handleNewAsk(w http.ResponseWriter, r *http.Request, req askRequest, timeout time.Duration) {
	threadID := uuid.New().String()[:8]
	sessionKey := "edi:" + threadID

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	wrapped := fmt.Sprintf("[EDI-Link Ask]\nThread: %s\n\n%s", threadID, req.Message)
	result := g.upstream.TriggerAgentHook(ctx, sessionKey, wrapped, int(timeout.Seconds()))
	if !result.Ok {
		api.WriteError(w, http.StatusInternalServerError, "failed to reach upstream", map[string]any{"detail": result.Error})
		return
	}

	deadline := time.Now().Add(timeout)
	time.Sleep(config.DefaultAskInitialPollDelay)

	for {
		histCtx, histCancel := context.WithTimeout(r.Context(), config.DefaultUpstreamCallTimeout)
		hist := g.upstream.SessionHistory(histCtx, sessionKey, 20)
		histCancel()

		if reply, ok := upstream.ExtractLastAssistantReply(hist); ok {
			api.WriteJSON(w, http.StatusOK, api.Ok(map[string]any{
				"reply":    reply,
				"threadId": threadID,
			}))
			return
		}

		if time.Now().After(deadline) {
			api.WriteError(w, http.StatusGatewayTimeout, "timed out waiting for a reply", map[string]any{"threadId": threadID})
			return
		}
		time.Sleep(config.DefaultAskPollInterval)
	}
}

func (g *Gateway) handleContinueAsk(w http.ResponseWriter, r *http.Request, req askRequest, timeout time.Duration) {
	sessionKey := "edi:" + req.ThreadID

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	result := g.upstream.ContinueSession(ctx, sessionKey, req.Message, int(timeout.Seconds()))
	if !result.Ok {
		api.WriteError(w, http.StatusInternalServerError, "failed to reach upstream", map[string]any{"detail": result.Error})
		return
	}

	reply, ok := upstream.ExtractReply(result)
	if !ok {
		api.WriteError(w, http.StatusGatewayTimeout, "upstream returned no reply", map[string]any{"threadId": req.ThreadID})
		return
	}

	api.WriteJSON(w, http.StatusOK, api.Ok(map[string]any{
		"reply":    reply,
		"threadId": req.ThreadID,
	}))
}
