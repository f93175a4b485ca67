package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/kubev2v/flowharness/internal/models"
)

type LogStore struct {
	db QueryInterceptor
}

func NewLogStore(db QueryInterceptor) *LogStore {
	return &LogStore{db: db}
}

func (s *LogStore) Save(ctx context.Context, l models.ContainerLog) error {
	query, args, err := sq.Insert("container_logs").
		Columns("run_id", "scenario_id", "container", "logs").
		Values(l.RunID.String(), l.ScenarioID, l.Container, l.Logs).
		Suffix("ON CONFLICT (run_id, scenario_id, container) DO UPDATE SET logs = EXCLUDED.logs").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// ListByScenario returns the container logs of a scenario ordered by container name.
func (s *LogStore) ListByScenario(ctx context.Context, runID uuid.UUID, scenarioID string) ([]models.ContainerLog, error) {
	query, args, err := sq.Select("container", "logs").
		From("container_logs").
		Where(sq.Eq{"run_id": runID.String(), "scenario_id": scenarioID}).
		OrderBy("container").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ContainerLog
	for rows.Next() {
		l := models.ContainerLog{RunID: runID, ScenarioID: scenarioID}
		if err := rows.Scan(&l.Container, &l.Logs); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
