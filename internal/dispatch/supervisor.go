package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/edi-link/dispatch-gateway/internal/agentcmd"
	"github.com/edi-link/dispatch-gateway/internal/logging"
	"github.com/edi-link/dispatch-gateway/internal/taskstate"
	"github.com/edi-link/dispatch-gateway/internal/threadstore"
	"github.com/edi-link/dispatch-gateway/internal/upstream"
)

// graceShutdownWindow bounds how long a cooperative SIGTERM is given to take
// effect before the supervisor escalates to SIGKILL on a canceled task.
const graceShutdownWindow = 5 * time.Second

// Callback describes an optional upstream notification to send once a
// dispatch task reaches a terminal state.
type Callback struct {
	SessionKey string
}

// Params are the inputs to one dispatch task run.
type Params struct {
	TaskID    string
	ThreadID  string
	Turn      int
	Agent     string
	Prompt    string
	Workdir   string
	Timeout   time.Duration
	Callback  *Callback
}

// Supervisor runs dispatch tasks: it builds the agent command, spawns the
// subprocess, enforces the timeout, observes cancellation, appends the
// resulting ThreadEntry, and updates the task registry. One Supervisor is
// shared across all dispatch tasks; it holds no per-task state itself.
type Supervisor struct {
	registry *Registry
	threads  *threadstore.Store
	upstream *upstream.Client
	log      *logging.Logger
}

// NewSupervisor builds a Supervisor wired to the given registry, thread
// store, and upstream client (used only for the optional result callback).
func NewSupervisor(registry *Registry, threads *threadstore.Store, up *upstream.Client, log *logging.Logger) *Supervisor {
	return &Supervisor{registry: registry, threads: threads, upstream: up, log: log}
}

// Run executes one dispatch task to completion. It is intended to be called
// from its own goroutine immediately after the task's Record has been
// created in the registry with status Running.
func (s *Supervisor) Run(params Params) {
	taskLog := s.log.WithTask(params.TaskID)

	argv, err := agentcmd.Build(params.Agent, params.Prompt, params.Workdir)
	if err != nil {
		s.finishAndRecord(params, "", err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), params.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = params.Workdir
	cmd.Env = append(os.Environ(), "NO_COLOR=1")
	setupProcessGroup(cmd)
	// On timeout, kill the whole process group so a grandchild still holding
	// the output pipe cannot keep cmd.Wait blocked past the deadline.
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		s.finishAndRecord(params, "", fmt.Sprintf("failed to start: %v", err), nil)
		return
	}

	// Attach only after Start so the cancel handler never reads a partially
	// initialized *exec.Cmd.
	s.registry.attachProcess(params.TaskID, cmd)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	stopWatch := make(chan struct{})
	go s.watchCancel(params.TaskID, cmd, stopWatch)

	waitErr := <-done
	close(stopWatch)

	timedOut := ctx.Err() == context.DeadlineExceeded
	canceled := s.registry.cancelRequested(params.TaskID)

	exitCode := extractExitCode(cmd, waitErr)

	content := strings.TrimSpace(output.String())
	var errMsg string
	switch {
	case canceled:
		// Cancellation intentionally reports no error string; the status
		// alone communicates the outcome.
	case timedOut:
		errMsg = "timeout"
	case waitErr != nil && exitCode == nil:
		errMsg = waitErr.Error()
	}

	if content == "" && errMsg != "" {
		content = "Error: " + errMsg
	}

	status := classify(canceled, errMsg, exitCode)

	taskLog.Info("dispatch task finished", map[string]any{
		"threadId": params.ThreadID,
		"agent":    params.Agent,
		"status":   status.String(),
	})

	s.appendResult(params, content, exitCode)
	s.registry.finish(params.TaskID, status, exitCode, errMsg)

	if params.Callback != nil && params.Callback.SessionKey != "" {
		s.sendCallback(params, status, exitCode, errMsg, content)
	}
}

// watchCancel polls for a cancel request on the task and, once seen, sends a
// graceful SIGTERM to the process group; if the child has not exited within
// graceShutdownWindow it escalates to SIGKILL. It never touches the done
// channel that Run itself waits on — it only reads stop, which Run closes
// once cmd.Wait() has returned, so the done channel always has exactly one
// reader and one sender.
func (s *Supervisor) watchCancel(taskID string, cmd *exec.Cmd, stop <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.registry.cancelRequested(taskID) {
				terminateProcessGroup(cmd)
				select {
				case <-stop:
				case <-time.After(graceShutdownWindow):
					killProcessGroup(cmd)
				}
				return
			}
		}
	}
}

func extractExitCode(cmd *exec.Cmd, waitErr error) *int {
	if cmd.ProcessState == nil {
		return nil
	}
	code := cmd.ProcessState.ExitCode()
	if code < 0 {
		// Negative means the process was signaled rather than exiting
		// normally (e.g. killed on cancel/timeout); no exit code to report.
		return nil
	}
	return &code
}

// classify determines a task's terminal status. Cancellation takes priority
// over the child's exit code regardless of how the child actually exited.
func classify(canceled bool, errMsg string, exitCode *int) taskstate.State {
	if canceled {
		return taskstate.Canceled
	}
	if errMsg != "" {
		return taskstate.Failed
	}
	if exitCode != nil && *exitCode == 0 {
		return taskstate.Completed
	}
	return taskstate.Failed
}

func (s *Supervisor) appendResult(params Params, content string, exitCode *int) {
	entry := threadstore.Entry{
		Turn:     params.Turn,
		Role:     params.Agent,
		Content:  content,
		Ts:       time.Now().Unix(),
		ExitCode: exitCode,
	}
	if err := s.threads.Append(params.ThreadID, entry); err != nil {
		s.log.Error("failed to append dispatch result", map[string]any{
			"taskId":   params.TaskID,
			"threadId": params.ThreadID,
			"error":    err.Error(),
		})
	}
}

func (s *Supervisor) sendCallback(params Params, status taskstate.State, exitCode *int, errMsg, content string) {
	exitStr := "n/a"
	if exitCode != nil {
		exitStr = fmt.Sprintf("%d", *exitCode)
	}
	message := fmt.Sprintf(
		"[EDI-Link Dispatch Result]\nThread: %s\nTask: %s\nAgent: %s\nStatus: %s\nExit code: %s\n\n%s",
		params.ThreadID, params.TaskID, params.Agent, status.String(), exitStr, content,
	)

	ctx, cancel := context.WithTimeout(context.Background(), upstream.DefaultCallTimeout)
	defer cancel()

	result := s.upstream.SendCallback(ctx, params.Callback.SessionKey, message, 30)
	if !result.Ok {
		// Callback failures must never alter task status; only log them.
		s.log.Warn("dispatch callback failed", map[string]any{
			"taskId": params.TaskID,
			"error":  result.Error,
		})
	}
}

func (s *Supervisor) finishAndRecord(params Params, content, errMsg string, exitCode *int) {
	if content == "" {
		content = "Error: " + errMsg
	}
	s.appendResult(params, content, exitCode)
	s.registry.finish(params.TaskID, taskstate.Failed, exitCode, errMsg)
}
