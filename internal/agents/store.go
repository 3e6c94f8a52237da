package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/pkg/pagination"
	"github.com/atlas-erp/atlas/pkg/query"
	"github.com/atlas-erp/atlas/pkg/repository"
)

// Store persists agents and their runs. FinishRun writes a terminal record
// at most once.
type Store interface {
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Agent], error)
	Find(ctx context.Context, id uuid.UUID) (*Agent, error)
	Create(ctx context.Context, cmd CreateCommand) (*Agent, error)
	Delete(ctx context.Context, id uuid.UUID) error

	InsertRun(ctx context.Context, r *Run) error
	FinishRun(ctx context.Context, r *Run) error
	FindRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, page pagination.PageRequest, filters RunFilters) (*pagination.PageResult[Run], error)
}

type store struct {
	db         *sql.DB
	pagination pagination.Config
}

// NewStore creates a PostgreSQL agent store.
func NewStore(db *sql.DB, pagination pagination.Config) Store {
	return &store{db: db, pagination: pagination}
}

func (s *store) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Agent], error) {
	page.Normalize(s.pagination)

	qb := query.
		NewBuilder(agentProjection, agentSort).
		WhereSearch(page.Search, "Name", "Description")

	filters.Apply(qb)

	result, err := repository.QueryPage(ctx, s.db, qb, page, scanAgent)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return result, nil
}

func (s *store) Find(ctx context.Context, id uuid.UUID) (*Agent, error) {
	q, args := query.NewBuilder(agentProjection).BuildSingle("ID", id)

	a, err := repository.QueryOne(ctx, s.db, q, args, scanAgent)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &a, nil
}

func (s *store) Create(ctx context.Context, cmd CreateCommand) (*Agent, error) {
	q := `
		INSERT INTO agents(name, description, endpoint, protocol)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, description, endpoint, protocol, created_at, updated_at`

	args := []any{cmd.Name, cmd.Description, cmd.Endpoint, cmd.Protocol}

	a, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (Agent, error) {
		return repository.QueryOne(ctx, tx, q, args, scanAgent)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &a, nil
}

func (s *store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		if err := repository.ExecExpectOne(ctx, tx, "DELETE FROM agents WHERE id = $1", id); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}

// InsertRun records a running run. The partial unique index on running runs
// turns a second concurrent run for the agent into ErrConflict, even when it
// was started by another process. A run for an agent deleted meanwhile is
// ErrNotFound.
func (s *store) InsertRun(ctx context.Context, r *Run) error {
	input, err := json.Marshal(r.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}

	q := `
		INSERT INTO agent_runs(id, agent_id, protocol, status, input, progress, started_at)
		VALUES ($1, $2, $3, $4, $5, '[]'::jsonb, $6)`

	_, err = s.db.ExecContext(ctx, q, r.ID, r.AgentID, r.Protocol, r.Status, input, r.StartedAt)
	if repository.Violates(err, repository.ForeignKeyViolation) {
		return ErrNotFound
	}
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrConflict)
	}
	return nil
}

// FinishRun writes the terminal fields of r. A run that is no longer
// running is left untouched and reported as ErrRunNotFound.
func (s *store) FinishRun(ctx context.Context, r *Run) error {
	var output []byte
	if r.Output != nil {
		var err error
		if output, err = json.Marshal(r.Output); err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
	}
	progress, err := json.Marshal(r.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	q := `
		UPDATE agent_runs
		SET status = $2, output = $3, error = $4, progress = $5, finished_at = $6
		WHERE id = $1 AND status = 'running'`

	err = repository.ExecExpectOne(ctx, s.db, q,
		r.ID, r.Status, output, r.Error, progress, r.FinishedAt,
	)
	if err != nil {
		return repository.MapError(err, ErrRunNotFound, ErrDuplicate)
	}
	return nil
}

func (s *store) FindRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	q, args := query.NewBuilder(runProjection).BuildSingle("ID", id)

	r, err := repository.QueryOne(ctx, s.db, q, args, scanRun)
	if err != nil {
		return nil, repository.MapError(err, ErrRunNotFound, ErrDuplicate)
	}
	return &r, nil
}

func (s *store) ListRuns(ctx context.Context, page pagination.PageRequest, filters RunFilters) (*pagination.PageResult[Run], error) {
	page.Normalize(s.pagination)

	qb := query.NewBuilder(runProjection, runSort)
	filters.Apply(qb)

	result, err := repository.QueryPage(ctx, s.db, qb, page, scanRun)
	if err != nil {
		return nil, fmt.Errorf("list agent runs: %w", err)
	}
	return result, nil
}
