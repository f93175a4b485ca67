package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/kubev2v/flowharness/internal/checkers"
	"github.com/kubev2v/flowharness/internal/infra"
)

func (s *steps) registerObservability(ctx *godog.ScenarioContext) {
	ctx.Step(`^a Grafana Loki server is set up$`, s.lokiIsSetUp)
	ctx.Step(`^the ([^\s"]+) processor is set up to push logs to the Grafana Loki server$`, s.processorPushesToLoki)
	ctx.Step(`^the Grafana Loki server receives the following log lines in less than (.+):$`, s.lokiReceives)

	ctx.Step(`^a Prometheus server is set up( with SSL)?$`, s.prometheusIsSetUp)
	ctx.Step(`^"([^"]*)" metrics are published to the Prometheus server in less than (.+)$`, s.metricClassIsPublished)
	ctx.Step(`^the "([^"]*)" metrics of the "([^"]*)" processor are published to the Prometheus server in less than (.+)$`, s.processorMetricIsPublished)
}

func (s *steps) lokiIsSetUp() error {
	s.sc.Add(infra.LokiService, infra.NewGrafanaLoki(s.sc.Env))
	return nil
}

func (s *steps) processorPushesToLoki(name string) error {
	loki, err := service[*infra.GrafanaLoki](s.sc, infra.LokiService)
	if err != nil {
		return err
	}
	p, err := s.processor("", name)
	if err != nil {
		return err
	}
	p.SetProperty("Url", fmt.Sprintf("http://%s:%d/", loki.Name(), infra.LokiPort)).
		SetProperty("Stream Labels", "job=minifi,id="+s.sc.ScenarioID)
	return nil
}

// lokiReceives reads one log line per table row from the first cell.
func (s *steps) lokiReceives(ctx context.Context, within string, table *godog.Table) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	loki, err := service[*infra.GrafanaLoki](s.sc, infra.LokiService)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		if len(row.Cells) > 0 {
			lines = append(lines, row.Cells[0].Value)
		}
	}
	return checkers.NewLokiChecker(loki.QueryURL(), nil).WaitForLogLines(ctx, lines, timeout)
}

func (s *steps) prometheusIsSetUp(ssl string) error {
	agent := s.minifi("")
	agent.EnablePrometheus(ssl != "")
	s.sc.Add(infra.PrometheusService, infra.NewPrometheusServer(s.sc.Env, agent.Name(), ssl != ""))
	return nil
}

func (s *steps) prometheusChecker() (*checkers.PrometheusChecker, error) {
	prom, err := service[*infra.PrometheusServer](s.sc, infra.PrometheusService)
	if err != nil {
		return nil, err
	}
	return checkers.NewPrometheusChecker(prom.APIURL())
}

func (s *steps) metricClassIsPublished(ctx context.Context, class, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	checker, err := s.prometheusChecker()
	if err != nil {
		return err
	}
	return checker.WaitForMetricClass(ctx, class, timeout)
}

func (s *steps) processorMetricIsPublished(ctx context.Context, processorType, processorName, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	checker, err := s.prometheusChecker()
	if err != nil {
		return err
	}
	return checker.WaitForProcessorMetric(ctx, processorType, processorName, timeout)
}
