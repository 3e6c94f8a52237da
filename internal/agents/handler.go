package agents

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/atlas-erp/atlas/pkg/handlers"
	"github.com/atlas-erp/atlas/pkg/pagination"
	"github.com/atlas-erp/atlas/pkg/routes"
)

// Handler serves the agent registry and runs agents on request.
type Handler struct {
	sys    System
	logger *slog.Logger
	paging pagination.Config
}

func NewHandler(sys System, logger *slog.Logger, paging pagination.Config) *Handler {
	return &Handler{sys: sys, logger: logger.With("handler", "agents"), paging: paging}
}

// Routes mounts run history under /agents/runs beside the registry.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/agents",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "DELETE", Pattern: "/{id}", Handler: h.Delete},
			{Method: "POST", Pattern: "/{id}/execute", Handler: h.Execute},
		},
		Children: []routes.Group{
			{
				Prefix: "/runs",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "", Handler: h.ListRuns},
					{Method: "GET", Pattern: "/{runId}", Handler: h.FindRun},
				},
			},
		},
	}
}

func (h *Handler) respond(w http.ResponseWriter, err error) {
	handlers.RespondErrorKind(w, h.logger, MapHTTPStatus(err), err, ErrorKind(err))
}

func (h *Handler) reply(w http.ResponseWriter, status int, body any, err error) {
	if err != nil {
		h.respond(w, err)
		return
	}
	handlers.RespondJSON(w, status, body)
}

// List pages through registered agents with their current status.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.sys.List(r.Context(), pagination.PageRequestFromQuery(q, h.paging), FiltersFromQuery(q))
	h.reply(w, http.StatusOK, result, err)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		h.respond(w, err)
		return
	}

	agent, err := h.sys.Find(r.Context(), id)
	h.reply(w, http.StatusOK, agent, err)
}

// Create registers a new agent.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var cmd CreateCommand
	if err := handlers.DecodeJSON(r, &cmd, false); err != nil {
		h.respond(w, err)
		return
	}

	agent, err := h.sys.Create(r.Context(), cmd)
	h.reply(w, http.StatusCreated, agent, err)
}

// Delete removes an idle agent and its run history.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		h.respond(w, err)
		return
	}

	if err := h.sys.Delete(r.Context(), id); err != nil {
		h.respond(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Execute runs the agent. With Accept: text/event-stream each progress
// report is sent as a progress event and the outcome as a final result
// event; otherwise the RunResult is returned once the run ends.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		h.respond(w, err)
		return
	}

	var cmd RunCommand
	if err := handlers.DecodeJSON(r, &cmd, true); err != nil {
		h.respond(w, err)
		return
	}

	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		result, err := h.sys.Run(r.Context(), id, cmd, nil)
		h.reply(w, http.StatusOK, result, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	stream := &eventStream{w: w, flusher: flusher}
	result, err := h.sys.Run(r.Context(), id, cmd, func(msg string) {
		stream.send("progress", msg)
	})
	if err != nil {
		h.respond(w, err)
		return
	}

	stream.send("result", result)
}

// ListRuns pages through run history, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.sys.ListRuns(r.Context(), pagination.PageRequestFromQuery(q, h.paging), RunFiltersFromQuery(q))
	h.reply(w, http.StatusOK, result, err)
}

// FindRun returns a run, live while it is in flight.
func (h *Handler) FindRun(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "runId")
	if err != nil {
		h.respond(w, err)
		return
	}

	run, err := h.sys.FindRun(r.Context(), id)
	h.reply(w, http.StatusOK, run, err)
}

// eventStream writes server-sent events. Headers go out with the first event;
// a run that is rejected never emits one and answers with a plain error.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *eventStream) send(event string, data any) {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	payload, err := json.Marshal(data)
	if err != nil {
		payload, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload)
	s.flusher.Flush()
}
