package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/taskqueue"
	"smartcrm-hq/conductor/pkg/taskqueue/archive"
)

type requestOptions struct {
	UseCache  *bool  `json:"use_cache"`
	Provider  string `json:"provider" validate:"omitempty,max=64"`
	TimeoutMS int64  `json:"timeout_ms" validate:"gte=0"`
}

// requestBody is the payload of POST /v1/requests and /v1/requests/async.
type requestBody struct {
	ID       string            `json:"id" validate:"omitempty,max=128"`
	Type     string            `json:"type" validate:"required"`
	Priority string            `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Data     any               `json:"data"`
	Context  map[string]string `json:"context"`
	Options  requestOptions    `json:"options"`
}

func (b *requestBody) request() *ai.Request {
	return &ai.Request{
		ID:       b.ID,
		Type:     ai.RequestType(b.Type),
		Priority: ai.Priority(b.Priority),
		Data:     b.Data,
		Context:  b.Context,
		Options: ai.Options{
			UseCache: b.Options.UseCache,
			Provider: b.Options.Provider,
			Timeout:  time.Duration(b.Options.TimeoutMS) * time.Millisecond,
		},
	}
}

type taskOptions struct {
	TimeoutMS  int64  `json:"timeout_ms" validate:"gte=0"`
	MaxRetries int    `json:"max_retries" validate:"gte=0,lte=20"`
	Provider   string `json:"provider" validate:"omitempty,max=64"`
}

// taskBody is the payload of POST /v1/tasks.
type taskBody struct {
	ID       string            `json:"id" validate:"omitempty,max=128"`
	Type     string            `json:"type" validate:"required,oneof=scoring enrichment insights email analysis"`
	Priority string            `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Data     any               `json:"data"`
	Context  map[string]string `json:"context"`
	Options  taskOptions       `json:"options"`
}

func (b *taskBody) spec() taskqueue.TaskSpec {
	return taskqueue.TaskSpec{
		ID:       b.ID,
		Type:     taskqueue.TaskType(b.Type),
		Priority: ai.Priority(b.Priority),
		Data:     b.Data,
		Context:  b.Context,
		Options: taskqueue.Options{
			Timeout:    time.Duration(b.Options.TimeoutMS) * time.Millisecond,
			MaxRetries: b.Options.MaxRetries,
			Provider:   b.Options.Provider,
		},
	}
}

type accepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type taskMetrics struct {
	taskqueue.Metrics
	NextSweep *time.Time `json:"next_sweep,omitempty"`
}

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

func newHandlers(deps Deps, logger *slog.Logger) *handlers {
	return &handlers{deps: deps, logger: logger}
}

func (h *handlers) executeRequest(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if !decodeAndValidate(w, r, h.logger, &body) {
		return
	}
	resp, err := h.deps.Orchestrator.Execute(r.Context(), body.request())
	if err != nil {
		respondErr(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *handlers) submitRequest(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if !decodeAndValidate(w, r, h.logger, &body) {
		return
	}
	id, err := h.deps.Orchestrator.SubmitRequest(body.request())
	if err != nil {
		respondErr(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/v1/requests/"+id)
	respondJSON(w, http.StatusAccepted, accepted{ID: id, Status: "pending"})
}

func (h *handlers) getRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcome, ok := h.deps.Orchestrator.GetResult(id)
	if !ok {
		respondError(w, r, http.StatusNotFound, "", "request not found")
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (h *handlers) requestMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Orchestrator.GetPerformanceMetrics())
}

// invalidateCache drops cached responses of ?type=, or all of them.
func (h *handlers) invalidateCache(w http.ResponseWriter, r *http.Request) {
	t := ai.RequestType(r.URL.Query().Get("type"))
	if t != "" && !t.Valid() {
		respondError(w, r, http.StatusBadRequest, "type", "unsupported request type")
		return
	}
	n, err := h.deps.Orchestrator.InvalidateCache(r.Context(), t)
	if err != nil {
		respondErr(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"invalidated": n})
}

func (h *handlers) addTask(w http.ResponseWriter, r *http.Request) {
	var body taskBody
	if !decodeAndValidate(w, r, h.logger, &body) {
		return
	}
	id, err := h.deps.Queue.AddTask(body.spec())
	if err != nil {
		respondErr(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/v1/tasks/"+id)
	respondJSON(w, http.StatusAccepted, accepted{ID: id, Status: string(taskqueue.StatusQueued)})
}

// getTask serves live tasks from the queue and swept ones from the archive.
func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if snap, ok := h.deps.Queue.GetTaskStatus(id); ok {
		respondJSON(w, http.StatusOK, snap)
		return
	}
	if h.deps.Archive != nil {
		snap, err := h.deps.Archive.Get(r.Context(), id)
		switch {
		case err == nil:
			respondJSON(w, http.StatusOK, snap)
			return
		case !errors.Is(err, archive.ErrNotFound):
			respondErr(w, r, h.logger, err)
			return
		}
	}
	respondError(w, r, http.StatusNotFound, "", "task not found")
}

func (h *handlers) cancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.deps.Queue.CancelTask(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if snap, ok := h.deps.Queue.GetTaskStatus(id); ok {
		respondError(w, r, http.StatusConflict, "", "task is "+string(snap.Status)+" and can no longer be cancelled")
		return
	}
	respondError(w, r, http.StatusNotFound, "", "task not found")
}

func (h *handlers) taskMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, taskMetrics{
		Metrics:   h.deps.Queue.GetMetrics(),
		NextSweep: h.deps.Queue.NextSweep(),
	})
}

func (h *handlers) listProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Providers.Snapshot())
}
