package workflows

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/pkg/pagination"
	"github.com/atlas-erp/atlas/pkg/query"
	"github.com/atlas-erp/atlas/pkg/repository"
	"github.com/atlas-erp/atlas/workflow"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a workflow definition repository implementing the System interface.
func New(
	db *sql.DB,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "workflows"),
		pagination: pagination,
	}
}

func (r *repo) Handler(exec Executor) *Handler {
	return NewHandler(r, exec, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[workflow.Definition], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Name", "Description")

	filters.Apply(qb)

	result, err := repository.QueryPage(ctx, r.db, qb, page, scanDefinition)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return result, nil
}

// Find returns the stored definition. Callers receive their own copy, so a
// later update never reaches a run that already read it.
func (r *repo) Find(ctx context.Context, id uuid.UUID) (*workflow.Definition, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	def, err := repository.QueryOne(ctx, r.db, q, args, scanDefinition)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &def, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*workflow.Definition, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, ErrInvalidName
	}

	doc, err := encode(cmd.Nodes, cmd.Connections, cmd.Config)
	if err != nil {
		return nil, err
	}

	q := `
		INSERT INTO workflows(name, description, nodes, connections, config)
		VALUES ($1, $2, $3, $4, $5)
		` + returning

	args := []any{cmd.Name, cmd.Description, doc.nodes, doc.connections, doc.config}

	def, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (workflow.Definition, error) {
		return repository.QueryOne(ctx, tx, q, args, scanDefinition)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("workflow created", "id", def.ID, "name", def.Name, "nodes", len(def.Nodes))
	return &def, nil
}

func (r *repo) Update(ctx context.Context, id uuid.UUID, cmd UpdateCommand) (*workflow.Definition, error) {
	if cmd.Name != nil && strings.TrimSpace(*cmd.Name) == "" {
		return nil, ErrInvalidName
	}

	var nodes, connections, cfg []byte
	doc, err := encode(deref(cmd.Nodes), deref(cmd.Connections), deref(cmd.Config))
	if err != nil {
		return nil, err
	}
	if cmd.Nodes != nil {
		nodes = doc.nodes
	}
	if cmd.Connections != nil {
		connections = doc.connections
	}
	if cmd.Config != nil {
		cfg = doc.config
	}

	q := `
		UPDATE workflows
		SET name = COALESCE($2, name),
			description = COALESCE($3, description),
			nodes = COALESCE($4::jsonb, nodes),
			connections = COALESCE($5::jsonb, connections),
			config = COALESCE($6::jsonb, config),
			updated_at = NOW()
		WHERE id = $1
		` + returning

	args := []any{id, cmd.Name, cmd.Description, nodes, connections, cfg}

	def, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (workflow.Definition, error) {
		return repository.QueryOne(ctx, tx, q, args, scanDefinition)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("workflow updated", "id", def.ID, "name", def.Name)
	return &def, nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		if err := repository.ExecExpectOne(
			ctx, tx,
			"DELETE FROM workflows WHERE id = $1",
			id,
		); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})

	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("workflow deleted", "id", id)
	return nil
}

func (r *repo) Validate(ctx context.Context, id uuid.UUID) (*Validation, error) {
	def, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return validation(def), nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
