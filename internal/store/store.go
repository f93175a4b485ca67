package store

import "database/sql"

// Store is the run journal: one row per harness run, its scenario
// outcomes and the container logs collected at scenario teardown.
type Store struct {
	db        *sql.DB
	runs      *RunStore
	scenarios *ScenarioStore
	logs      *LogStore
}

func NewStore(db *sql.DB) *Store {
	qi := newQueryInterceptor(db)
	return &Store{
		db:        db,
		runs:      NewRunStore(qi),
		scenarios: NewScenarioStore(qi),
		logs:      NewLogStore(qi),
	}
}

func (s *Store) Runs() *RunStore {
	return s.runs
}

func (s *Store) Scenarios() *ScenarioStore {
	return s.scenarios
}

func (s *Store) Logs() *LogStore {
	return s.logs
}

func (s *Store) Close() error {
	return s.db.Close()
}
