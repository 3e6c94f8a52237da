package workflows_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/internal/executions"
	"github.com/atlas-erp/atlas/internal/workflows"
	"github.com/atlas-erp/atlas/pkg/pagination"
	"github.com/atlas-erp/atlas/pkg/routes"
	"github.com/atlas-erp/atlas/workflow"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockSystem struct {
	listFn     func(ctx context.Context, page pagination.PageRequest, filters workflows.Filters) (*pagination.PageResult[workflow.Definition], error)
	findFn     func(ctx context.Context, id uuid.UUID) (*workflow.Definition, error)
	createFn   func(ctx context.Context, cmd workflows.CreateCommand) (*workflow.Definition, error)
	updateFn   func(ctx context.Context, id uuid.UUID, cmd workflows.UpdateCommand) (*workflow.Definition, error)
	deleteFn   func(ctx context.Context, id uuid.UUID) error
	validateFn func(ctx context.Context, id uuid.UUID) (*workflows.Validation, error)
}

func (m *mockSystem) Handler(exec workflows.Executor) *workflows.Handler {
	return newTestHandler(m, exec)
}

func (m *mockSystem) List(ctx context.Context, page pagination.PageRequest, filters workflows.Filters) (*pagination.PageResult[workflow.Definition], error) {
	return m.listFn(ctx, page, filters)
}

func (m *mockSystem) Find(ctx context.Context, id uuid.UUID) (*workflow.Definition, error) {
	return m.findFn(ctx, id)
}

func (m *mockSystem) Create(ctx context.Context, cmd workflows.CreateCommand) (*workflow.Definition, error) {
	return m.createFn(ctx, cmd)
}

func (m *mockSystem) Update(ctx context.Context, id uuid.UUID, cmd workflows.UpdateCommand) (*workflow.Definition, error) {
	return m.updateFn(ctx, id, cmd)
}

func (m *mockSystem) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFn(ctx, id)
}

func (m *mockSystem) Validate(ctx context.Context, id uuid.UUID) (*workflows.Validation, error) {
	return m.validateFn(ctx, id)
}

type executorFunc func(ctx context.Context, id uuid.UUID, cmd executions.ExecuteCommand) (*workflow.ExecutionState, error)

func (f executorFunc) Execute(ctx context.Context, id uuid.UUID, cmd executions.ExecuteCommand) (*workflow.ExecutionState, error) {
	return f(ctx, id, cmd)
}

func newTestHandler(sys workflows.System, exec workflows.Executor) *workflows.Handler {
	return workflows.NewHandler(
		sys,
		exec,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
	)
}

func setupMux(h *workflows.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	routes.Register(mux, h.Routes())
	return mux
}

func definition(id uuid.UUID, name string) *workflow.Definition {
	return &workflow.Definition{
		ID:   id,
		Name: name,
		Nodes: []workflow.Node{
			{ID: "start", Kind: workflow.KindTrigger, Name: "Start"},
		},
		Connections: []workflow.Connection{},
		CreatedAt:   testTime,
		UpdatedAt:   testTime,
	}
}

func TestHandlerList(t *testing.T) {
	var captured workflows.Filters
	sys := &mockSystem{
		listFn: func(_ context.Context, page pagination.PageRequest, f workflows.Filters) (*pagination.PageResult[workflow.Definition], error) {
			captured = f
			result := pagination.NewPageResult([]workflow.Definition{*definition(uuid.New(), "invoices")}, 1, page.Page, page.PageSize)
			return &result, nil
		},
	}

	rec := httptest.NewRecorder()
	setupMux(newTestHandler(sys, nil)).ServeHTTP(rec, httptest.NewRequest("GET", "/workflows?name=inv", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.Name == nil || *captured.Name != "inv" {
		t.Errorf("name filter = %v, want inv", captured.Name)
	}

	var result pagination.PageResult[workflow.Definition]
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Data) != 1 || result.Data[0].Name != "invoices" {
		t.Errorf("data = %+v", result.Data)
	}
}

func TestHandlerCreate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"created", `{"name":"invoices","nodes":[{"id":"start","kind":"trigger","name":"Start"}]}`, nil, http.StatusCreated},
		{"malformed", `{"name":`, nil, http.StatusBadRequest},
		{"missing name", `{"name":""}`, workflows.ErrInvalidName, http.StatusBadRequest},
		{"duplicate", `{"name":"invoices"}`, workflows.ErrDuplicate, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &mockSystem{
				createFn: func(_ context.Context, cmd workflows.CreateCommand) (*workflow.Definition, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					def := definition(uuid.New(), cmd.Name)
					def.Nodes = cmd.Nodes
					return def, nil
				},
			}

			rec := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/workflows", bytes.NewBufferString(tt.body))
			setupMux(newTestHandler(sys, nil)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandlerUpdateIsPartial(t *testing.T) {
	id := uuid.New()
	var captured workflows.UpdateCommand

	sys := &mockSystem{
		updateFn: func(_ context.Context, got uuid.UUID, cmd workflows.UpdateCommand) (*workflow.Definition, error) {
			captured = cmd
			return definition(got, *cmd.Name), nil
		},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/workflows/"+id.String(), bytes.NewBufferString(`{"name":"renamed"}`))
	setupMux(newTestHandler(sys, nil)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.Name == nil || *captured.Name != "renamed" {
		t.Errorf("name = %v, want renamed", captured.Name)
	}
	if captured.Nodes != nil || captured.Connections != nil || captured.Config != nil || captured.Description != nil {
		t.Errorf("omitted fields should stay nil: %+v", captured)
	}
}

func TestHandlerFindAndDelete(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name       string
		method     string
		path       string
		err        error
		wantStatus int
	}{
		{"find", "GET", "/workflows/" + id.String(), nil, http.StatusOK},
		{"find missing", "GET", "/workflows/" + id.String(), workflows.ErrNotFound, http.StatusNotFound},
		{"find bad id", "GET", "/workflows/nope", nil, http.StatusBadRequest},
		{"delete", "DELETE", "/workflows/" + id.String(), nil, http.StatusNoContent},
		{"delete missing", "DELETE", "/workflows/" + id.String(), workflows.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &mockSystem{
				findFn: func(_ context.Context, got uuid.UUID) (*workflow.Definition, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return definition(got, "invoices"), nil
				},
				deleteFn: func(context.Context, uuid.UUID) error {
					return tt.err
				},
			}

			rec := httptest.NewRecorder()
			setupMux(newTestHandler(sys, nil)).ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandlerValidate(t *testing.T) {
	sys := &mockSystem{
		validateFn: func(context.Context, uuid.UUID) (*workflows.Validation, error) {
			return &workflows.Validation{Error: "workflow definition invalid: cycle detected among [a b]"}, nil
		},
	}

	rec := httptest.NewRecorder()
	setupMux(newTestHandler(sys, nil)).ServeHTTP(rec, httptest.NewRequest("POST", "/workflows/"+uuid.NewString()+"/validate", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var v workflows.Validation
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Valid || v.Error == "" {
		t.Errorf("validation = %+v, want invalid with error", v)
	}
}

func TestHandlerExecute(t *testing.T) {
	id := uuid.New()
	durable := workflow.EngineDurable

	t.Run("created", func(t *testing.T) {
		var captured executions.ExecuteCommand
		exec := executorFunc(func(_ context.Context, got uuid.UUID, cmd executions.ExecuteCommand) (*workflow.ExecutionState, error) {
			captured = cmd
			return workflow.NewExecutionState(uuid.New(), got, *cmd.Backend, cmd.Input, testTime), nil
		})

		rec := httptest.NewRecorder()
		body := bytes.NewBufferString(`{"input":{"amount":10},"backend":"durable"}`)
		setupMux(newTestHandler(&mockSystem{}, exec)).ServeHTTP(rec, httptest.NewRequest("POST", "/workflows/"+id.String()+"/execute", body))

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", rec.Code)
		}
		if captured.Backend == nil || *captured.Backend != durable {
			t.Errorf("backend = %v, want durable", captured.Backend)
		}
		if captured.Input["amount"] != float64(10) {
			t.Errorf("input = %v", captured.Input)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		called := false
		exec := executorFunc(func(_ context.Context, got uuid.UUID, cmd executions.ExecuteCommand) (*workflow.ExecutionState, error) {
			called = true
			if cmd.Backend != nil || cmd.Input != nil {
				t.Errorf("cmd = %+v, want zero", cmd)
			}
			return workflow.NewExecutionState(uuid.New(), got, workflow.EngineGraph, nil, testTime), nil
		})

		rec := httptest.NewRecorder()
		setupMux(newTestHandler(&mockSystem{}, exec)).ServeHTTP(rec, httptest.NewRequest("POST", "/workflows/"+id.String()+"/execute", nil))

		if rec.Code != http.StatusCreated || !called {
			t.Errorf("status = %d called = %v", rec.Code, called)
		}
	})

	rejections := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"cyclic definition", fmt.Errorf("%w: cycle detected among [a b]", workflow.ErrDefinitionInvalid), http.StatusUnprocessableEntity, "DefinitionInvalid"},
		{"unknown workflow", workflows.ErrNotFound, http.StatusNotFound, "NotFound"},
		{"bad backend", executions.ErrInvalidBackend, http.StatusBadRequest, ""},
	}

	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			exec := executorFunc(func(context.Context, uuid.UUID, executions.ExecuteCommand) (*workflow.ExecutionState, error) {
				return nil, tt.err
			})

			rec := httptest.NewRecorder()
			setupMux(newTestHandler(&mockSystem{}, exec)).ServeHTTP(rec, httptest.NewRequest("POST", "/workflows/"+id.String()+"/execute", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["kind"] != tt.wantKind {
				t.Errorf("kind = %q, want %q", body["kind"], tt.wantKind)
			}
			if body["error"] == "" {
				t.Error("error message missing")
			}
		})
	}
}
