package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/kubev2v/flowharness/internal/models"
)

type ScenarioStore struct {
	db QueryInterceptor
}

func NewScenarioStore(db QueryInterceptor) *ScenarioStore {
	return &ScenarioStore{db: db}
}

// Save records the outcome of a scenario, replacing an earlier one of the same run.
func (s *ScenarioStore) Save(ctx context.Context, r models.ScenarioResult) error {
	query, args, err := sq.Insert("scenario_results").
		Columns("run_id", "id", "feature", "name", "status", "error", "started_at", "finished_at").
		Values(r.RunID.String(), r.ID, r.Feature, r.Name, string(r.Status), r.Error, r.StartedAt, r.FinishedAt).
		Suffix("ON CONFLICT (run_id, id) DO UPDATE SET status = EXCLUDED.status, error = EXCLUDED.error, finished_at = EXCLUDED.finished_at").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// ListByRun returns the scenarios of a run in execution order, narrowed by
// the optional filters.
func (s *ScenarioStore) ListByRun(ctx context.Context, runID uuid.UUID, filters ...sq.Sqlizer) ([]models.ScenarioResult, error) {
	builder := sq.Select("id", "feature", "name", "status", "error", "started_at", "finished_at").
		From("scenario_results").
		Where(sq.Eq{"run_id": runID.String()})
	for _, f := range filters {
		builder = builder.Where(f)
	}
	query, args, err := builder.OrderBy("started_at", "id").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.ScenarioResult
	for rows.Next() {
		r := models.ScenarioResult{RunID: runID}
		var status string
		if err := rows.Scan(&r.ID, &r.Feature, &r.Name, &status, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Status = models.ScenarioStatus(status)
		results = append(results, r)
	}
	return results, rows.Err()
}

// CountByStatus counts the scenarios of a run per status.
func (s *ScenarioStore) CountByStatus(ctx context.Context, runID uuid.UUID) (map[models.ScenarioStatus]int, error) {
	query, args, err := sq.Select("status", "COUNT(*)").
		From("scenario_results").
		Where(sq.Eq{"run_id": runID.String()}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.ScenarioStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.ScenarioStatus(status)] = n
	}
	return counts, rows.Err()
}
