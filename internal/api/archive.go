package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/internal/executions"
	"github.com/atlas-erp/atlas/pkg/handlers"
	"github.com/atlas-erp/atlas/pkg/routes"
	"github.com/atlas-erp/atlas/pkg/storage"
	"github.com/atlas-erp/atlas/workflow"
)

// archiveHandler exposes archived execution states read-only, plus purge.
// Every key it touches lives under executions.ArchivePrefix.
type archiveHandler struct {
	store  storage.System
	logger *slog.Logger
	limit  int32
}

func newArchiveHandler(store storage.System, logger *slog.Logger, limit int32) *archiveHandler {
	return &archiveHandler{store: store, logger: logger.With("handler", "archive"), limit: limit}
}

func (h *archiveHandler) routes() routes.Group {
	const entry = "/{workflowId}/{executionId}"
	return routes.Group{
		Prefix: "/archive",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.list},
			{Method: "GET", Pattern: entry, Handler: h.download},
			{Method: "GET", Pattern: entry + "/meta", Handler: h.meta},
			{Method: "DELETE", Pattern: entry, Handler: h.purge},
		},
	}
}

func (h *archiveHandler) fail(w http.ResponseWriter, err error) {
	status := storage.MapHTTPStatus(err)
	if errors.Is(err, handlers.ErrBadRequest) {
		status = http.StatusBadRequest
	}
	handlers.RespondError(w, h.logger, status, err)
}

// list pages through archived states, optionally scoped to one workflow
// with ?workflow_id. Continuation uses the opaque ?marker of the last page.
func (h *archiveHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	prefix := executions.ArchivePrefix + "/"
	if raw := q.Get("workflow_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, errors.Join(handlers.ErrBadRequest, err))
			return
		}
		prefix += id.String() + "/"
	}

	n, err := storage.ParseMaxResults(q.Get("max_results"), h.limit)
	if err != nil {
		h.fail(w, err)
		return
	}

	page, err := h.store.List(r.Context(), prefix, q.Get("marker"), n)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, page)
}

func (h *archiveHandler) download(w http.ResponseWriter, r *http.Request) {
	key, err := archiveKey(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	blob, err := h.store.Download(r.Context(), key)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer blob.Body.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", blob.ContentType)
	if blob.ContentLength > 0 {
		hdr.Set("Content-Length", strconv.FormatInt(blob.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, blob.Body); err != nil {
		h.logger.WarnContext(r.Context(), "archive download interrupted", "key", key, "error", err)
	}
}

func (h *archiveHandler) meta(w http.ResponseWriter, r *http.Request) {
	key, err := archiveKey(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	meta, err := h.store.Find(r.Context(), key)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, meta)
}

// purge removes an archived state. The execution record is kept.
func (h *archiveHandler) purge(w http.ResponseWriter, r *http.Request) {
	key, err := archiveKey(r)
	if err == nil {
		err = h.store.Delete(r.Context(), key)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func archiveKey(r *http.Request) (string, error) {
	workflowID, err := handlers.PathID(r, "workflowId")
	if err != nil {
		return "", err
	}
	executionID, err := handlers.PathID(r, "executionId")
	if err != nil {
		return "", err
	}
	return executions.ArchiveKey(&workflow.ExecutionState{ID: executionID, WorkflowID: workflowID}), nil
}
