package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/edi-link/dispatch-gateway/internal/api"
	"github.com/edi-link/dispatch-gateway/internal/auth"
	"github.com/edi-link/dispatch-gateway/internal/config"
)

type webhookPayload struct {
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Ref        string `json:"ref"`
	After      string `json:"after"`
	HeadCommit struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"head_commit"`
}

const notificationMessageCap = 200

// handleWebhook receives a GitHub-style push webhook, verifies its raw-body
// signature, and wakes an upstream session named for the pushed commit.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readRawBody(r)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	if g.cfg.WebhookSecret == "" {
		api.WriteError(w, http.StatusServiceUnavailable, "webhook support is not configured", nil)
		return
	}

	sig := r.Header.Get("X-Hub-Signature-256")
	if sig == "" {
		api.WriteError(w, http.StatusUnauthorized, "missing X-Hub-Signature-256 header", nil)
		return
	}
	if err := auth.VerifyWebhookSignature(g.cfg.WebhookSecret, body, sig); err != nil {
		g.log.Warn("webhook signature verification failed", map[string]any{"error": err.Error()})
		api.WriteError(w, http.StatusUnauthorized, "signature verification failed", nil)
		return
	}

	var payload webhookPayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			api.WriteError(w, http.StatusBadRequest, "Invalid JSON", nil)
			return
		}
	}

	sha := payload.HeadCommit.ID
	if sha == "" {
		sha = payload.After
	}
	if sha == "" {
		sha = "unknown"
	}
	if payload.Repository.FullName == "" {
		payload.Repository.FullName = "unknown/repo"
	}
	if payload.Ref == "" {
		payload.Ref = "refs/heads/unknown"
	}
	shortSha := sha
	if len(shortSha) > 7 {
		shortSha = shortSha[:7]
	}

	repoName := payload.Repository.FullName
	if idx := strings.LastIndexByte(repoName, '/'); idx >= 0 {
		repoName = repoName[idx+1:]
	}
	branch := payload.Ref
	if idx := strings.LastIndexByte(branch, '/'); idx >= 0 {
		branch = branch[idx+1:]
	}

	commitMessage := payload.HeadCommit.Message
	if runes := []rune(commitMessage); len(runes) > notificationMessageCap {
		commitMessage = string(runes[:notificationMessageCap]) + "..."
	}

	sessionKey := fmt.Sprintf("github:%s:%s", repoName, shortSha)
	message := fmt.Sprintf(
		"[GitHub Push] %s pushed to %s (%s)\n\n%s",
		repoName, branch, shortSha, commitMessage,
	)

	ctx, cancel := context.WithTimeout(r.Context(), config.DefaultAskTimeout)
	defer cancel()

	result := g.upstream.TriggerAgentHook(ctx, sessionKey, message, int(config.DefaultAskTimeout.Seconds()))
	if !result.Ok {
		api.WriteError(w, http.StatusInternalServerError, "failed to notify upstream", map[string]any{"detail": result.Error})
		return
	}

	runID, _ := result.Payload["runId"].(string)

	api.WriteJSON(w, http.StatusOK, api.Ok(map[string]any{
		"message":    message,
		"runId":      runID,
		"sessionKey": sessionKey,
	}))
}
