package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// ErrBusy is returned by a Trigger when a run is already in progress.
var ErrBusy = errors.New("a run is already in progress")

// History is the persistent run store consulted for runs no longer held in
// memory.
type History interface {
	Recent(ctx context.Context, n int) ([]types.RunSummary, error)
	Get(ctx context.Context, id string) (types.RunSummary, bool, error)
}

// Options wires the handler's dependencies. Only Store is required.
type Options struct {
	Store    *Store
	History  History
	Trigger  func() error
	Registry *prometheus.Registry
	Auth     config.StatusAuthConfig

	// TriggerPerMinute limits POST /api/v1/runs per client IP. Zero disables
	// the limit.
	TriggerPerMinute int
}

// Handler serves the status API.
type Handler struct {
	opts Options
}

// New builds the router.
func New(opts Options) http.Handler {
	h := &Handler{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/v1/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(APIKey(opts.Auth.Mode, opts.Auth.Header, opts.Auth.Key()))

		r.Get("/api/v1/runs", h.listRuns)
		r.Get("/api/v1/runs/{id}", h.getRun)

		trigger := http.Handler(http.HandlerFunc(h.trigger))
		if opts.TriggerPerMinute > 0 {
			trigger = httprate.Limit(opts.TriggerPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					jsonErr(w, http.StatusTooManyRequests, "trigger rate limit exceeded")
				}),
			)(trigger)
		}
		r.Method(http.MethodPost, "/api/v1/runs", trigger)

		if opts.Registry != nil {
			r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if last, ok := h.opts.Store.Latest(); ok {
		resp.LastRun = &RunRef{
			ID:         last.ID,
			FinishedAt: last.FinishedAt,
			Succeeded:  last.Succeeded(),
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

const listLimit = 50

// listRuns returns GET /api/v1/runs. The persistent history is preferred
// when configured since it outlives restarts.
func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.opts.History != nil {
		runs, err := h.opts.History.Recent(r.Context(), listLimit)
		if err == nil {
			jsonResp(w, http.StatusOK, nonNil(runs))
			return
		}
		slog.Error("status: history query failed, falling back to memory", "err", err)
	}
	runs := h.opts.Store.List()
	if len(runs) > listLimit {
		runs = runs[:listLimit]
	}
	jsonResp(w, http.StatusOK, runs)
}

// getRun returns GET /api/v1/runs/{id}.
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if sum, ok := h.opts.Store.Get(id); ok {
		jsonResp(w, http.StatusOK, sum)
		return
	}
	if h.opts.History != nil {
		sum, ok, err := h.opts.History.Get(r.Context(), id)
		if err != nil {
			jsonErr(w, http.StatusInternalServerError, "history lookup failed")
			return
		}
		if ok {
			jsonResp(w, http.StatusOK, sum)
			return
		}
	}
	jsonErr(w, http.StatusNotFound, "run not found")
}

// trigger handles POST /api/v1/runs.
func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	if h.opts.Trigger == nil {
		jsonErr(w, http.StatusNotImplemented, "manual runs are disabled")
		return
	}
	switch err := h.opts.Trigger(); {
	case errors.Is(err, ErrBusy):
		jsonErr(w, http.StatusConflict, err.Error())
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, err.Error())
	default:
		jsonResp(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func nonNil(runs []types.RunSummary) []types.RunSummary {
	if runs == nil {
		return []types.RunSummary{}
	}
	return runs
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
