package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/kubev2v/flowharness/internal/c2"
	"github.com/kubev2v/flowharness/internal/flow"
	"github.com/kubev2v/flowharness/internal/infra"
	"github.com/kubev2v/flowharness/pkg/wait"
)

func (s *steps) registerC2(ctx *godog.ScenarioContext) {
	ctx.Step(`^C2 is enabled in MiNiFi$`, s.c2IsEnabled)
	ctx.Step(`^ssl properties are set up for MiNiFi C2 server$`, s.c2SSLIsEnabled)
	ctx.Step(`^a MiNiFi C2 server is set up$`, s.c2ServerIsSetUp)
	ctx.Step(`^a MiNiFi C2 server is set up with SSL$`, s.c2ServerIsSetUpWithSSL)
	ctx.Step(`^a MiNiFi C2 server is started$`, s.c2ServerIsStarted)
	ctx.Step(`^the MiNiFi C2 server logs contain the following message: "([^"]*)" in less than (.+)$`, s.c2ServerLogsContain)
	ctx.Step(`^the MiNiFi instance fetches its flow from the C2 server$`, s.flowIsFetchedFromC2)
	ctx.Step(`^the flow of the MiNiFi instance is served by the C2 server$`, s.flowIsServedByC2)
	ctx.Step(`^the C2 server receives a heartbeat from the MiNiFi instance in less than (.+)$`, s.c2ReceivesHeartbeat)
	ctx.Step(`^the C2 server requests a configuration update from the MiNiFi instance$`, s.c2RequestsUpdate)
	ctx.Step(`^the MiNiFi instance acknowledges the configuration update in less than (.+)$`, s.updateIsAcknowledged)
}

func (s *steps) c2IsEnabled() error {
	s.minifi("").EnableC2(s.sc.C2BaseURL(false))
	return nil
}

func (s *steps) c2SSLIsEnabled() error {
	s.minifi("").EnableC2WithSSL(s.sc.C2BaseURL(true))
	return nil
}

// setUpC2Server starts the embedded server when the harness runs one,
// otherwise it registers the C2 server container.
func (s *steps) setUpC2Server(ctx context.Context, ssl bool) error {
	if s.sc.Config.C2.Embedded {
		_, err := s.sc.StartEmbeddedC2(ctx, ssl)
		return err
	}
	s.sc.Add(infra.C2ServerService, infra.NewMinifiC2ServerContainer(s.sc.Env, ssl))
	return nil
}

func (s *steps) c2ServerIsSetUp(ctx context.Context) error {
	return s.setUpC2Server(ctx, false)
}

func (s *steps) c2ServerIsSetUpWithSSL(ctx context.Context) error {
	return s.setUpC2Server(ctx, true)
}

func (s *steps) c2ServerIsStarted(ctx context.Context) error {
	if err := s.setUpC2Server(ctx, false); err != nil {
		return err
	}
	if s.sc.C2 != nil {
		return nil
	}
	svc, err := s.sc.Get(infra.C2ServerService)
	if err != nil {
		return err
	}
	return s.sc.Deploy(ctx, svc)
}

// c2ServerLogsContain reads the container logs or the event journal of the embedded server.
func (s *steps) c2ServerLogsContain(ctx context.Context, message, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	if s.sc.C2 != nil {
		state := s.sc.C2.State()
		return wait.ForCondition(ctx, timeout, func(context.Context) (bool, error) {
			return strings.Contains(state.Log(), message), nil
		}, wait.WithName(fmt.Sprintf("embedded c2 server log contains %q", message)))
	}
	svc, err := service[*infra.MinifiC2ServerContainer](s.sc, infra.C2ServerService)
	if err != nil {
		return err
	}
	return svc.WaitForLog(ctx, timeout, message)
}

func (s *steps) flowIsFetchedFromC2() error {
	s.minifi("").UseFlowConfigFromURL(s.sc.C2BaseURL(false))
	return nil
}

func (s *steps) flowIsServedByC2() error {
	m := s.minifi("")
	if s.sc.C2 == nil {
		srv, err := service[*infra.MinifiC2ServerContainer](s.sc, infra.C2ServerService)
		if err != nil {
			return err
		}
		srv.Flow = m.Flow
		return nil
	}
	doc, err := m.FlowConfig()
	if err != nil {
		return err
	}
	contentType := "text/yaml"
	if m.Options.ConfigFormat == flow.FormatJSON {
		contentType = "application/json"
	}
	s.sc.C2.State().SetFlow(infra.C2AgentClass, c2.FlowDocument{ContentType: contentType, Body: doc})
	return nil
}

func (s *steps) embeddedC2() (*c2.Server, error) {
	if s.sc.C2 == nil {
		return nil, fmt.Errorf("no embedded C2 server runs in scenario %s", s.sc.ScenarioID)
	}
	return s.sc.C2, nil
}

func (s *steps) c2ReceivesHeartbeat(ctx context.Context, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	srv, err := s.embeddedC2()
	if err != nil {
		return err
	}
	return s.waitWhileAgentRuns(ctx, "c2 heartbeat", timeout, func(context.Context) (bool, error) {
		return srv.State().HeartbeatsFrom(infra.C2AgentID) > 0, nil
	})
}

func (s *steps) c2RequestsUpdate() error {
	srv, err := s.embeddedC2()
	if err != nil {
		return err
	}
	s.operationID = srv.State().QueueOperation(infra.C2AgentID, c2.UpdateConfiguration(s.sc.C2BaseURL(false), infra.C2AgentClass))
	return nil
}

func (s *steps) updateIsAcknowledged(ctx context.Context, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	srv, err := s.embeddedC2()
	if err != nil {
		return err
	}
	if s.operationID == "" {
		return fmt.Errorf("no configuration update was requested")
	}
	return s.waitWhileAgentRuns(ctx, "c2 acknowledgement", timeout, func(context.Context) (bool, error) {
		ack, ok := srv.State().AckFor(s.operationID)
		if !ok {
			return false, nil
		}
		if ack.State != "FULLY_APPLIED" {
			return false, fmt.Errorf("operation %s acknowledged with state %s: %s", s.operationID, ack.State, ack.Details)
		}
		return true, nil
	})
}

// waitWhileAgentRuns polls cond and gives up once the default agent exits.
func (s *steps) waitWhileAgentRuns(ctx context.Context, name string, timeout time.Duration, cond wait.Condition) error {
	agent := s.defaultService()
	return wait.ForCondition(ctx, timeout, cond,
		wait.WithName(name),
		wait.WithBail(func(ctx context.Context) error {
			if agent.Exited(ctx) {
				return fmt.Errorf("%s exited", agent.Name())
			}
			return nil
		}),
	)
}
