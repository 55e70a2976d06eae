package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/renewal/internal/workflows"
	"github.com/JaimeStill/renewal/pkg/handlers"
	"github.com/JaimeStill/renewal/pkg/pagination"
	"github.com/JaimeStill/renewal/pkg/routes"
)

// Handler provides HTTP endpoints for workflow administration.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// PauseRequest is the body accepted by the pause endpoint.
type PauseRequest struct {
	Reason string `json:"reason"`
}

// SignalRequest is the body accepted by the signals endpoint.
type SignalRequest struct {
	Signal workflows.Signal `json:"signal"`
}

// NewHandler creates a Handler over sys.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "workflows"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for workflow endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/workflows",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "GET", Pattern: "/{id}/progress", Handler: h.Progress},
			{Method: "POST", Pattern: "/{id}/pause", Handler: h.Pause},
			{Method: "POST", Pattern: "/{id}/resume", Handler: h.Resume},
			{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
			{Method: "POST", Pattern: "/{id}/complete", Handler: h.Complete},
			{Method: "POST", Pattern: "/{id}/signals", Handler: h.Signal},
			{Method: "POST", Pattern: "/{id}/steps/{step}/execute", Handler: h.Execute},
		},
	}
}

// List returns a page of workflows filtered by status, subject and minimum priority.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := workflows.FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Create plans and registers a workflow from a JSON CreateCommand.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var cmd CreateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			fmt.Errorf("%w: %w", workflows.ErrInvalidCommand, err))
		return
	}

	wf, err := h.sys.CreateWorkflow(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, wf)
}

// Find returns a single workflow.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	wf, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, wf)
}

// Progress returns step counts and the next due step.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	p, err := h.sys.Status(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, p)
}

// Pause suspends an active workflow. The body may carry a reason.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req PauseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest,
				fmt.Errorf("%w: %w", workflows.ErrInvalidCommand, err))
			return
		}
	}

	h.respond(w, func() (*workflows.Workflow, error) {
		return h.sys.Pause(r.Context(), id, req.Reason)
	})
}

// Resume returns a paused workflow to active.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.respond(w, func() (*workflows.Workflow, error) {
		return h.sys.Resume(r.Context(), id)
	})
}

// Cancel terminates a workflow.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.respond(w, func() (*workflows.Workflow, error) {
		return h.sys.Cancel(r.Context(), id)
	})
}

// Complete marks a workflow completed.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.respond(w, func() (*workflows.Workflow, error) {
		return h.sys.MarkCompleted(r.Context(), id)
	})
}

// Signal records a behavioural signal on a workflow.
func (h *Handler) Signal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			fmt.Errorf("%w: %w", workflows.ErrInvalidCommand, err))
		return
	}

	h.respond(w, func() (*workflows.Workflow, error) {
		return h.sys.RecordSignal(r.Context(), id, req.Signal)
	})
}

// Execute force-runs a pending step regardless of its scheduled instant.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	step := r.PathValue("step")

	h.respond(w, func() (*workflows.Workflow, error) {
		return h.sys.ForceExecute(r.Context(), id, step)
	})
}

func (h *Handler) respond(w http.ResponseWriter, op func() (*workflows.Workflow, error)) {
	wf, err := op()
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, wf)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			fmt.Errorf("%w: invalid workflow id", workflows.ErrInvalidCommand))
		return uuid.Nil, false
	}
	return id, true
}
