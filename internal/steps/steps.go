// Package steps binds the gherkin step texts of the feature files to the
// scenario context. Every scenario gets its own step state; the harness
// outlives them.
package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/flow"
	"github.com/kubev2v/flowharness/internal/infra"
	"github.com/kubev2v/flowharness/internal/scenario"
	"github.com/kubev2v/flowharness/pkg/wait"
)

type steps struct {
	harness *scenario.Harness
	sc      *scenario.Context

	// last operation queued on the embedded C2 server
	operationID string
}

// InitializeScenario returns the godog scenario initializer running every
// scenario against h.
func InitializeScenario(h *scenario.Harness) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		s := &steps{harness: h}
		ctx.Before(s.before)
		ctx.After(s.after)

		s.registerCore(ctx)
		s.registerConfiguration(ctx)
		s.registerFlow(ctx)
		s.registerChecking(ctx)
		s.registerC2(ctx)
		s.registerServices(ctx)
		s.registerStorage(ctx)
		s.registerObservability(ctx)
		s.registerSearch(ctx)
		s.registerKubernetes(ctx)
	}
}

func (s *steps) before(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
	scenarioCtx, err := s.harness.Before(ctx, sc.Uri, sc.Name, sc.AstNodeIds...)
	if err != nil {
		return ctx, err
	}
	s.sc = scenarioCtx
	injectScenarioID(scenarioCtx, sc)
	return ctx, nil
}

func (s *steps) after(ctx context.Context, sc *godog.Scenario, scenarioErr error) (context.Context, error) {
	if s.sc == nil {
		return ctx, nil
	}
	return ctx, s.harness.After(ctx, s.sc, scenarioErr)
}

// injectScenarioID rewrites ${scenario_id} in the step texts and their
// arguments before godog matches them.
func injectScenarioID(sc *scenario.Context, pickle *godog.Scenario) {
	for _, step := range pickle.Steps {
		step.Text = sc.InjectScenarioID(step.Text)
		if step.Argument == nil {
			continue
		}
		if table := step.Argument.DataTable; table != nil {
			for _, row := range table.Rows {
				for _, cell := range row.Cells {
					cell.Value = sc.InjectScenarioID(cell.Value)
				}
			}
		}
		if doc := step.Argument.DocString; doc != nil {
			doc.Content = sc.InjectScenarioID(doc.Content)
		}
	}
}

// minifi returns the named agent, the default one for an empty name.
func (s *steps) minifi(name string) *infra.MinifiContainer {
	if name == "" {
		return s.sc.GetOrCreateDefaultMinifiContainer()
	}
	return s.sc.GetOrCreateMinifiContainer(name)
}

// flowOf picks the flow a step edits: the NiFi flow, the flow served by
// the C2 server container or the flow of the named agent.
func (s *steps) flowOf(target string) (*flow.Definition, error) {
	switch target {
	case "NiFi", infra.NifiService:
		n, err := service[*infra.NifiContainer](s.sc, infra.NifiService)
		if err != nil {
			return nil, err
		}
		return n.Flow, nil
	case infra.C2ServerService:
		c, err := service[*infra.MinifiC2ServerContainer](s.sc, infra.C2ServerService)
		if err != nil {
			return nil, err
		}
		return c.Flow, nil
	default:
		return s.minifi(target).Flow, nil
	}
}

func (s *steps) processor(target, name string) (*flow.Processor, error) {
	f, err := s.flowOf(target)
	if err != nil {
		return nil, err
	}
	return f.GetProcessor(name)
}

// service returns the registered service name as a T.
func service[T container.Service](sc *scenario.Context, name string) (T, error) {
	var zero T
	svc, err := sc.Get(name)
	if err != nil {
		return zero, err
	}
	t, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("service %s is a %T, not a %T", name, svc, zero)
	}
	return t, nil
}

// defaultService is the service of the default agent, a container or a pod.
func (s *steps) defaultService() container.Service {
	s.sc.GetOrCreateDefaultMinifiContainer()
	svc, _ := s.sc.Get(infra.DefaultMinifiName)
	return svc
}

func (s *steps) agentService(name string) container.Service {
	if name == "" {
		return s.defaultService()
	}
	s.sc.GetOrCreateMinifiContainer(name)
	svc, _ := s.sc.Get(name)
	return svc
}

func duration(text string) (time.Duration, error) {
	return wait.ParseTimespan(text)
}

// sleep waits d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// waitForLogs polls the logs of svc until match accepts them, giving up when svc exits.
func waitForLogs(ctx context.Context, svc container.Service, what string, timeout time.Duration, match func(string) bool) error {
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		logs, err := svc.Logs(ctx)
		if err != nil {
			return false, err
		}
		return match(logs), nil
	},
		wait.WithName(svc.Name()+": "+what),
		wait.WithBail(func(ctx context.Context) error {
			if svc.Exited(ctx) {
				return fmt.Errorf("%s exited", svc.Name())
			}
			return nil
		}),
	)
}
