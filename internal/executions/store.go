package executions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/pkg/pagination"
	"github.com/atlas-erp/atlas/pkg/query"
	"github.com/atlas-erp/atlas/pkg/repository"
	"github.com/atlas-erp/atlas/workflow"
)

const openStatuses = `status NOT IN ('completed', 'failed', 'cancelled')`

type store struct {
	db         *sql.DB
	pagination pagination.Config
}

// NewStore creates a PostgreSQL execution store.
func NewStore(db *sql.DB, pagination pagination.Config) Store {
	return &store{db: db, pagination: pagination}
}

func (s *store) Insert(ctx context.Context, e *workflow.ExecutionState) error {
	c, err := encodeState(e)
	if err != nil {
		return err
	}

	q := `
		INSERT INTO executions(
			id, workflow_id, status, engine, input, steps, output, error,
			partial, failed_branches, external_run_id, cancel_requested,
			started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		_, err := tx.ExecContext(ctx, q,
			e.ID, e.WorkflowID, e.Status, e.Engine, c.input, c.steps, c.output, c.errInfo,
			e.Partial, c.branches, nullString(e.ExternalRunID), e.CancelRequested,
			e.StartedAt, nullTime(e.FinishedAt),
		)
		return struct{}{}, err
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (s *store) Save(ctx context.Context, e *workflow.ExecutionState) error {
	c, err := encodeState(e)
	if err != nil {
		return err
	}

	q := `
		UPDATE executions
		SET status = $2, steps = $3, output = $4, error = $5, partial = $6,
			failed_branches = $7,
			external_run_id = COALESCE($8, external_run_id),
			cancel_requested = cancel_requested OR $9,
			finished_at = $10
		WHERE id = $1 AND ` + openStatuses

	err = repository.ExecExpectOne(ctx, s.db, q,
		e.ID, e.Status, c.steps, c.output, c.errInfo, e.Partial,
		c.branches, nullString(e.ExternalRunID), e.CancelRequested, nullTime(e.FinishedAt),
	)
	if err != nil {
		return repository.MapError(err, ErrNotRunning, ErrDuplicate)
	}
	return nil
}

func (s *store) MarkCancelRequested(ctx context.Context, id uuid.UUID) error {
	err := repository.ExecExpectOne(ctx, s.db,
		`UPDATE executions SET cancel_requested = TRUE WHERE id = $1 AND `+openStatuses,
		id,
	)
	if err != nil {
		return repository.MapError(err, ErrNotRunning, ErrDuplicate)
	}
	return nil
}

func (s *store) Find(ctx context.Context, id uuid.UUID) (*workflow.ExecutionState, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	e, err := repository.QueryOne(ctx, s.db, q, args, scanExecution)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &e, nil
}

func (s *store) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[workflow.ExecutionState], error) {
	page.Normalize(s.pagination)

	qb := query.NewBuilder(projection, defaultSort)
	filters.Apply(qb)

	result, err := repository.QueryPage(ctx, s.db, qb, page, scanExecution)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return result, nil
}
