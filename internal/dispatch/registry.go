// Package dispatch implements the subprocess supervisor (TaskSupervisor) and
// in-memory task registry (TaskRegistry) that back the gateway's /dispatch
// endpoint: spawning one of the headless coding-agent CLIs, enforcing a
// timeout, handling cooperative cancellation, and recording the outcome back
// into the thread log.
package dispatch

import (
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/edi-link/dispatch-gateway/internal/taskstate"
)

// Record is the in-memory, ephemeral state of one dispatched task. It is
// never persisted; only the resulting ThreadEntry survives the process.
type Record struct {
	TaskID    string
	ThreadID  string
	Agent     string
	Status    taskstate.State
	StartedAt time.Time
	EndedAt   time.Time
	ExitCode  *int
	Error     string
	Workdir   string
	Timeout   time.Duration

	cancelRequested bool
	cmd             *exec.Cmd
}

// Public returns the subset of a Record safe to expose over HTTP: no
// process handle, no internal cancellation flag.
type Public struct {
	TaskID    string `json:"taskId"`
	ThreadID  string `json:"threadId"`
	Agent     string `json:"agent"`
	Status    string `json:"status"`
	StartedAt int64  `json:"startedAt"`
	Workdir   string `json:"workdir"`
}

func (r *Record) public() Public {
	return Public{
		TaskID:    r.TaskID,
		ThreadID:  r.ThreadID,
		Agent:     r.Agent,
		Status:    r.Status.String(),
		StartedAt: r.StartedAt.Unix(),
		Workdir:   r.Workdir,
	}
}

// Registry is the mutex-protected table of task records, analogous to the
// teacher's Agent.tasks map plus its single guarding mutex.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Record
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Record)}
}

// Create inserts a new Running record under the registry's lock.
func (reg *Registry) Create(rec *Record) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.tasks[rec.TaskID] = rec
}

// Get returns a snapshot copy of a task record, or nil if unknown.
func (reg *Registry) Get(taskID string) *Record {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec, ok := reg.tasks[taskID]
	if !ok {
		return nil
	}
	copyRec := *rec
	return &copyRec
}

// ListRunning returns public snapshots of every task currently in Running or
// Canceling state, sorted by start time ascending.
func (reg *Registry) ListRunning() []Public {
	reg.mu.Lock()
	out := make([]Public, 0)
	for _, rec := range reg.tasks {
		if rec.Status.IsActive() {
			out = append(out, rec.public())
		}
	}
	reg.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out
}

// RequestCancel marks a task for cancellation and returns the process handle
// to signal, if the task is still running. It is idempotent: calling it on
// an already-canceling or terminal task reports the current status and
// performs no state change.
func (reg *Registry) RequestCancel(taskID string) (status taskstate.State, cmd *exec.Cmd, found bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rec, ok := reg.tasks[taskID]
	if !ok {
		return "", nil, false
	}
	if rec.Status != taskstate.Running {
		return rec.Status, nil, true
	}
	rec.cancelRequested = true
	rec.Status = taskstate.Canceling
	return taskstate.Canceling, rec.cmd, true
}

// attachProcess records the running *exec.Cmd on a task record so the
// cancel handler can later signal it. Called by the supervisor immediately
// after the child process starts.
func (reg *Registry) attachProcess(taskID string, cmd *exec.Cmd) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if rec, ok := reg.tasks[taskID]; ok {
		rec.cmd = cmd
	}
}

// cancelRequested reports whether a cancel was requested for taskID at any
// point during its execution.
func (reg *Registry) cancelRequested(taskID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec, ok := reg.tasks[taskID]
	return ok && rec.cancelRequested
}

// finish records the terminal outcome of a task.
func (reg *Registry) finish(taskID string, status taskstate.State, exitCode *int, errMsg string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec, ok := reg.tasks[taskID]
	if !ok {
		return
	}
	rec.Status = status
	rec.ExitCode = exitCode
	rec.Error = errMsg
	rec.EndedAt = time.Now()
}
