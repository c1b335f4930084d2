package gateway

import (
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/edi-link/dispatch-gateway/internal/api"
	"github.com/edi-link/dispatch-gateway/internal/dispatch"
	"github.com/edi-link/dispatch-gateway/internal/prompt"
	"github.com/edi-link/dispatch-gateway/internal/taskstate"
	"github.com/edi-link/dispatch-gateway/internal/threadstore"
)

// handleDispatch accepts a dispatch task: it validates the request, appends
// the user's message to the thread immediately, starts the subprocess
// supervisor in the background, and waits out a short "early completion
// window" so a task that finishes almost instantly can be reported as
// already done rather than merely "running".
func (g *Gateway) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := readRawBody(r)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	payload, err := resolveDispatchPayload(r, body)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid JSON", nil)
		return
	}

	if payload.Message == "" {
		api.WriteError(w, http.StatusBadRequest, "message is required", nil)
		return
	}

	if !g.requireAuth(w, r, body) {
		return
	}

	if !api.IsValidAgentKind(payload.Agent) {
		api.WriteError(w, http.StatusBadRequest, "agent must be one of codex, claude, gemini", nil)
		return
	}

	threadID := payload.ThreadID
	if threadID == "" {
		threadID = uuid.New().String()
	} else if err := threadstore.ValidateID(threadID); err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid threadId", nil)
		return
	}

	timeout := g.cfg.DispatchDefaultTimeout
	if secs := payload.resolvedTimeout(); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	workdir := payload.Workdir
	if workdir == "" {
		workdir = g.cfg.DispatchDefaultWorkdir
	}
	info, err := os.Stat(workdir)
	if err != nil || !info.IsDir() {
		api.WriteError(w, http.StatusBadRequest, "workdir does not exist", map[string]any{"workdir": workdir})
		return
	}

	entries := g.threads.Load(threadID)
	boundAgent, mixed, bound := threadstore.Binding(entries)
	if mixed {
		api.WriteError(w, http.StatusBadRequest, "thread has entries from more than one agent", map[string]any{"threadId": threadID})
		return
	}
	if bound && boundAgent != payload.Agent {
		api.WriteError(w, http.StatusBadRequest, "thread is already bound to a different agent", map[string]any{
			"threadId":   threadID,
			"boundAgent": boundAgent,
		})
		return
	}

	turn := threadstore.NextTurn(entries)
	recent := threadstore.FilterRecent(entries, g.cfg.DispatchMaxTurns)
	builtPrompt := prompt.BuildDispatchPrompt(recent, payload.Message, payload.Agent)

	if err := g.threads.Append(threadID, threadstore.Entry{
		Turn:    turn,
		Role:    "edi",
		Content: payload.Message,
		Ts:      time.Now().Unix(),
	}); err != nil {
		api.WriteError(w, http.StatusInternalServerError, "failed to record message", nil)
		return
	}

	taskID := uuid.New().String()
	rec := &dispatch.Record{
		TaskID:    taskID,
		ThreadID:  threadID,
		Agent:     payload.Agent,
		Status:    taskstate.Running,
		StartedAt: time.Now(),
		Workdir:   workdir,
		Timeout:   timeout,
	}
	g.registry.Create(rec)

	params := dispatch.Params{
		TaskID:   taskID,
		ThreadID: threadID,
		Turn:     turn,
		Agent:    payload.Agent,
		Prompt:   builtPrompt,
		Workdir:  workdir,
		Timeout:  timeout,
	}
	if payload.CallbackSessionKey != "" {
		params.Callback = &dispatch.Callback{SessionKey: payload.CallbackSessionKey}
	}

	go g.supervisor.Run(params)

	time.Sleep(g.cfg.DispatchEarlyCheckSeconds)

	final := g.registry.Get(taskID)
	if final != nil && final.Status.IsTerminal() {
		fields := map[string]any{
			"taskId":   taskID,
			"threadId": threadID,
			"status":   final.Status.String(),
		}
		status := http.StatusOK
		if final.Status == taskstate.Failed {
			status = http.StatusInternalServerError
			fields["ok"] = false
			errMsg := final.Error
			if errMsg == "" {
				errMsg = "Dispatch failed quickly"
			}
			fields["error"] = errMsg
			fields["exitCode"] = final.ExitCode
		}
		api.WriteJSON(w, status, api.Ok(fields))
		return
	}

	api.WriteJSON(w, http.StatusOK, api.Ok(map[string]any{
		"taskId":   taskID,
		"threadId": threadID,
		"status":   taskstate.Running.String(),
	}))
}
