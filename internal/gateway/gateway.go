// Package gateway implements the dispatch gateway's HTTP surface: routing,
// request body handling, authentication, and the handlers for /health,
// /tasks, /thread/{id}, /ask, /dispatch, /tasks/{id}/cancel, and
// /github-webhook.
package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edi-link/dispatch-gateway/internal/config"
	"github.com/edi-link/dispatch-gateway/internal/dispatch"
	"github.com/edi-link/dispatch-gateway/internal/logging"
	"github.com/edi-link/dispatch-gateway/internal/threadstore"
	"github.com/edi-link/dispatch-gateway/internal/upstream"
)

// ServerVersion is reported by /health.
const ServerVersion = "4"

// Gateway wires together every component behind the HTTP surface.
type Gateway struct {
	cfg        *config.Config
	threads    *threadstore.Store
	registry   *dispatch.Registry
	supervisor *dispatch.Supervisor
	upstream   *upstream.Client
	log        *logging.Logger
	startedAt  time.Time
}

// New builds a Gateway from a resolved configuration.
func New(cfg *config.Config, log *logging.Logger) *Gateway {
	threads := threadstore.New(cfg.ThreadsDir)
	registry := dispatch.NewRegistry()
	up := upstream.New(cfg.UpstreamBaseURL, cfg.HooksToken, cfg.GatewayToken, cfg.UpstreamCallTimeout)
	supervisor := dispatch.NewSupervisor(registry, threads, up, log)

	return &Gateway{
		cfg:        cfg,
		threads:    threads,
		registry:   registry,
		supervisor: supervisor,
		upstream:   up,
		log:        log,
		startedAt:  time.Now(),
	}
}

// corsMiddleware allows browser-based tooling to call the gateway directly,
// matching the permissive same-origin-free policy the teacher's agent API
// uses for its own local tooling.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-EDI-Timestamp, X-EDI-Signature, X-Hub-Signature-256, X-EDI-Agent, X-EDI-Thread, X-EDI-Timeout, X-EDI-Workdir, X-EDI-Callback-Session")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CancelAllRunning requests cancellation of every currently running or
// canceling task, used by the CLI entrypoint during graceful shutdown so a
// dispatched subprocess isn't left orphaned after the listener stops.
func (g *Gateway) CancelAllRunning() {
	for _, t := range g.registry.ListRunning() {
		g.registry.RequestCancel(t.TaskID)
	}
}

// Router builds the gateway's chi.Router.
func (g *Gateway) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)

	r.Get("/health", g.handleHealth)
	r.Get("/tasks", g.handleListTasks)
	r.Get("/thread/{id}", g.handleGetThread)
	r.Post("/ask", g.handleAsk)
	r.Post("/dispatch", g.handleDispatch)
	r.Post("/tasks/{id}/cancel", g.handleCancelTask)
	r.Post("/github-webhook", g.handleWebhook)

	return r
}
