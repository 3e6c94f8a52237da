// Package handlers provides JSON response helpers shared by HTTP handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// RespondJSON writes data as a JSON body with the given status.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError logs err and writes it as {"error": "..."}.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	RespondErrorKind(w, logger, status, err, "")
}

// RespondErrorKind writes err with a machine-readable kind. An empty kind is
// omitted from the body.
func RespondErrorKind(w http.ResponseWriter, logger *slog.Logger, status int, err error, kind string) {
	if status >= http.StatusInternalServerError {
		logger.Error("handler error", "error", err, "status", status)
	} else {
		logger.Warn("handler error", "error", err, "status", status)
	}

	body := map[string]string{"error": err.Error()}
	if kind != "" {
		body["kind"] = kind
	}
	RespondJSON(w, status, body)
}

// ErrBadRequest marks malformed path parameters and request bodies.
var ErrBadRequest = errors.New("bad request")

// PathID parses the named path value as a UUID.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q is not a uuid", ErrBadRequest, name, raw)
	}
	return id, nil
}

// DecodeJSON reads the request body into v. With optional set an empty body
// leaves v at its zero value.
func DecodeJSON(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return nil
	case optional && errors.Is(err, io.EOF):
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
}
