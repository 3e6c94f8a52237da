package workflows

import (
	"log/slog"
	"net/http"

	"github.com/atlas-erp/atlas/internal/executions"
	"github.com/atlas-erp/atlas/pkg/handlers"
	"github.com/atlas-erp/atlas/pkg/pagination"
	"github.com/atlas-erp/atlas/pkg/routes"
)

// Handler serves workflow definitions and starts runs of them.
type Handler struct {
	sys    System
	exec   Executor
	logger *slog.Logger
	paging pagination.Config
}

// SearchRequest is the body of POST /workflows/search.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

// NewHandler creates a Handler. exec receives execute requests.
func NewHandler(sys System, exec Executor, logger *slog.Logger, paging pagination.Config) *Handler {
	return &Handler{
		sys:    sys,
		exec:   exec,
		logger: logger.With("handler", "workflows"),
		paging: paging,
	}
}

func (h *Handler) Routes() routes.Group {
	byID := func(suffix string) string { return "/{id}" + suffix }
	return routes.Group{
		Prefix: "/workflows",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
			{Method: "GET", Pattern: byID(""), Handler: h.Find},
			{Method: "PUT", Pattern: byID(""), Handler: h.Update},
			{Method: "DELETE", Pattern: byID(""), Handler: h.Delete},
			{Method: "POST", Pattern: byID("/validate"), Handler: h.Validate},
			{Method: "POST", Pattern: byID("/execute"), Handler: h.Execute},
		},
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.page(w, r, pagination.PageRequestFromQuery(q, h.paging), FiltersFromQuery(q))
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := handlers.DecodeJSON(r, &req, false); err != nil {
		h.fail(w, err)
		return
	}
	req.PageRequest.Normalize(h.paging)
	h.page(w, r, req.PageRequest, req.Filters)
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request, page pagination.PageRequest, filters Filters) {
	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}

	def, err := h.sys.Find(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, def)
}

// Create stores a new definition. Graph validity is not checked here; an
// invalid graph is rejected when it is validated or executed.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var cmd CreateCommand
	if err := handlers.DecodeJSON(r, &cmd, false); err != nil {
		h.fail(w, err)
		return
	}

	def, err := h.sys.Create(r.Context(), cmd)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusCreated, def)
}

// Update applies the fields present in the body and bumps the version.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}

	var cmd UpdateCommand
	if err := handlers.DecodeJSON(r, &cmd, false); err != nil {
		h.fail(w, err)
		return
	}

	def, err := h.sys.Update(r.Context(), id, cmd)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, def)
}

// Delete removes a definition. Past runs keep their records.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err == nil {
		err = h.sys.Delete(r.Context(), id)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}

	result, err := h.sys.Validate(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

// Execute starts a run. An empty body runs with no input on the
// definition's default backend.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}

	var cmd executions.ExecuteCommand
	if err := handlers.DecodeJSON(r, &cmd, true); err != nil {
		h.fail(w, err)
		return
	}

	state, err := h.exec.Execute(r.Context(), id, cmd)
	if err != nil {
		executions.Respond(w, h.logger, err)
		return
	}
	handlers.RespondJSON(w, http.StatusCreated, state)
}
