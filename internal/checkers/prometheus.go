package checkers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/pkg/wait"
)

// metricClasses lists the series every agent metric class must publish.
var metricClasses = map[string][]string{
	"RepositoryMetrics": {"minifi_is_running", "minifi_is_full", "minifi_repository_size_bytes", "minifi_max_repository_size_bytes", "minifi_repository_entry_count"},
	"QueueMetrics":      {"minifi_queue_data_size", "minifi_queue_data_size_max", "minifi_queue_size", "minifi_queue_size_max"},
	"FlowInformation":   {"minifi_queue_data_size", "minifi_queue_size", "minifi_is_running"},
	"DeviceInfoNode":    {"minifi_physical_mem", "minifi_memory_usage", "minifi_cpu_utilization"},
	"AgentStatus":       {"minifi_uptime_milliseconds", "minifi_agent_memory_usage_bytes", "minifi_agent_cpu_utilization"},
	"PutFileMetrics":    {"minifi_onTrigger_invocations", "minifi_incoming_flow_files", "minifi_bytes_read", "minifi_bytes_written"},
}

// processorMetrics are published per processor instance for processorMetrics/<regex> classes.
var processorMetrics = []string{"minifi_onTrigger_invocations", "minifi_average_onTrigger_runtime_milliseconds", "minifi_last_onTrigger_runtime_milliseconds", "minifi_transferred_flow_files"}

type PrometheusChecker struct {
	api promv1.API
	log *zap.SugaredLogger
}

// NewPrometheusChecker talks to the Prometheus HTTP API at address.
func NewPrometheusChecker(address string) (*PrometheusChecker, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return NewPrometheusCheckerWithAPI(promv1.NewAPI(client)), nil
}

func NewPrometheusCheckerWithAPI(a promv1.API) *PrometheusChecker {
	return &PrometheusChecker{api: a, log: zap.S().Named("checkers").With("checker", "prometheus")}
}

// MetricExists reports whether at least one series of name carries all labels.
func (p *PrometheusChecker) MetricExists(ctx context.Context, name string, labels map[string]string) (bool, error) {
	query := selector(name, labels)
	result, warnings, err := p.api.Query(ctx, query, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", query, err)
	}
	if len(warnings) > 0 {
		p.log.Debugw("prometheus query warnings", "query", query, "warnings", warnings)
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return false, fmt.Errorf("unexpected result type %s for %s", result.Type(), query)
	}
	return len(vector) > 0, nil
}

func (p *PrometheusChecker) WaitForMetric(ctx context.Context, name string, labels map[string]string, timeout time.Duration) error {
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		return p.MetricExists(ctx, name, labels)
	}, wait.WithName("prometheus has "+selector(name, labels)))
}

// VerifyMetricClass reports whether every series of the class is published.
func (p *PrometheusChecker) VerifyMetricClass(ctx context.Context, class string) (bool, error) {
	names, ok := metricClasses[class]
	if !ok {
		return false, fmt.Errorf("unknown metric class %q", class)
	}
	for _, name := range names {
		found, err := p.MetricExists(ctx, name, map[string]string{"metric_class": class})
		if err != nil || !found {
			return false, err
		}
	}
	return true, nil
}

// VerifyProcessorMetric reports whether every per processor series exists for the named processor.
func (p *PrometheusChecker) VerifyProcessorMetric(ctx context.Context, processorType, processorName string) (bool, error) {
	for _, name := range processorMetrics {
		found, err := p.MetricExists(ctx, name, map[string]string{"metric_class": processorType, "processor_name": processorName})
		if err != nil || !found {
			return false, err
		}
	}
	return true, nil
}

func (p *PrometheusChecker) WaitForMetricClass(ctx context.Context, class string, timeout time.Duration) error {
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		return p.VerifyMetricClass(ctx, class)
	}, wait.WithName("prometheus has metric class "+class))
}

func (p *PrometheusChecker) WaitForProcessorMetric(ctx context.Context, processorType, processorName string, timeout time.Duration) error {
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		return p.VerifyProcessorMetric(ctx, processorType, processorName)
	}, wait.WithName(fmt.Sprintf("prometheus has metrics of %s processor %s", processorType, processorName)))
}

// selector renders name{k="v",...} with labels in key order.
func selector(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}
