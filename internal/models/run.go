package models

import (
	"time"

	"github.com/google/uuid"
)

type ScenarioStatus string

const (
	ScenarioStatusPassed  ScenarioStatus = "passed"
	ScenarioStatusFailed  ScenarioStatus = "failed"
	ScenarioStatusSkipped ScenarioStatus = "skipped"
)

// Run is one invocation of the harness over a set of features.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Engine     string
	AgentImage string
	Tags       string
	Status     int
}

// ScenarioResult is the outcome of one scenario of a run.
type ScenarioResult struct {
	ID         string
	RunID      uuid.UUID
	Feature    string
	Name       string
	Status     ScenarioStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (s ScenarioResult) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// ContainerLog keeps the logs of a container at scenario teardown.
type ContainerLog struct {
	ScenarioID string
	RunID      uuid.UUID
	Container  string
	Logs       string
}
