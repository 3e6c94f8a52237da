package executions

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/pkg/handlers"
	"github.com/atlas-erp/atlas/pkg/pagination"
	"github.com/atlas-erp/atlas/pkg/routes"
	"github.com/atlas-erp/atlas/workflow"
)

// Handler serves run records over HTTP.
type Handler struct {
	sys    System
	logger *slog.Logger
	paging pagination.Config
}

// SearchRequest is the body of POST /executions/search.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

func NewHandler(sys System, logger *slog.Logger, paging pagination.Config) *Handler {
	return &Handler{sys: sys, logger: logger.With("handler", "executions"), paging: paging}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/executions",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
		},
	}
}

// Respond writes err with the status and kind of its failure class.
func Respond(w http.ResponseWriter, logger *slog.Logger, err error) {
	handlers.RespondErrorKind(w, logger, MapHTTPStatus(err), err, ErrorKind(err))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.page(w, r, pagination.PageRequestFromQuery(q, h.paging), FiltersFromQuery(q))
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := handlers.DecodeJSON(r, &req, false); err != nil {
		Respond(w, h.logger, err)
		return
	}
	req.PageRequest.Normalize(h.paging)
	h.page(w, r, req.PageRequest, req.Filters)
}

// Find returns the current state of a run.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, http.StatusOK, h.sys.Find)
}

// Cancel asks a running execution to stop. The returned state carries
// cancel_requested; the terminal status follows once the run winds down.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, http.StatusAccepted, h.sys.Cancel)
}

func (h *Handler) withID(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	op func(context.Context, uuid.UUID) (*workflow.ExecutionState, error),
) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		Respond(w, h.logger, err)
		return
	}

	state, err := op(r.Context(), id)
	if err != nil {
		Respond(w, h.logger, err)
		return
	}
	handlers.RespondJSON(w, status, state)
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request, page pagination.PageRequest, filters Filters) {
	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		Respond(w, h.logger, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}
