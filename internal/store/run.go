package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/kubev2v/flowharness/internal/models"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

var runColumns = []string{"id", "started_at", "finished_at", "engine", "agent_image", "tags", "status"}

type RunStore struct {
	db QueryInterceptor
}

func NewRunStore(db QueryInterceptor) *RunStore {
	return &RunStore{db: db}
}

// Create records a started run.
func (s *RunStore) Create(ctx context.Context, run *models.Run) error {
	query, args, err := sq.Insert("runs").
		Columns("id", "started_at", "engine", "agent_image", "tags", "status").
		Values(run.ID.String(), run.StartedAt, run.Engine, run.AgentImage, run.Tags, run.Status).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// Finish stores the end time and exit status of a run.
func (s *RunStore) Finish(ctx context.Context, id uuid.UUID, finishedAt time.Time, status int) error {
	query, args, err := sq.Update("runs").
		Set("finished_at", finishedAt).
		Set("status", status).
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return srvErrors.NewRunNotFoundError(id.String())
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query, args, err := sq.Select(runColumns...).
		From("runs").
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return nil, err
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, srvErrors.NewRunNotFoundError(id.String())
	}
	return run, err
}

// Latest returns the most recently started run.
func (s *RunStore) Latest(ctx context.Context) (*models.Run, error) {
	query, args, err := sq.Select(runColumns...).
		From("runs").
		OrderBy("started_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, srvErrors.NewRunNotFoundError("")
	}
	return run, err
}

// List returns runs, newest first. A limit of zero lists every run.
func (s *RunStore) List(ctx context.Context, limit uint64) ([]models.Run, error) {
	builder := sq.Select(runColumns...).From("runs").OrderBy("started_at DESC")
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var (
		run      models.Run
		id       string
		finished sql.NullTime
	)
	if err := row.Scan(&id, &run.StartedAt, &finished, &run.Engine, &run.AgentImage, &run.Tags, &run.Status); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	run.ID = parsed
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}
