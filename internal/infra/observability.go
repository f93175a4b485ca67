package infra

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kubev2v/flowharness/internal/container"
)

const (
	LokiService       = "grafana-loki-server"
	PrometheusService = "prometheus"

	LokiPort       = 3100
	PrometheusPort = 9090

	lokiImage              = "grafana/loki:3.2.1"
	lokiStartedLog         = "Loki started"
	prometheusImage        = "prom/prometheus:v3.5.0"
	prometheusStartedLog   = "Server is ready to receive web requests."
	prometheusConfigDir    = "/etc/prometheus"
	observabilityStartWait = 60 * time.Second
)

// GrafanaLoki receives agent logs pushed by the Loki push API. The API port is
// published on the host for the checkers.
type GrafanaLoki struct {
	*container.Container
}

func NewGrafanaLoki(env *Env) *GrafanaLoki {
	c := container.New(env.Runtime, env.ServiceName(LokiService), lokiImage, env.Network)
	c.Command = []string{"-config.file=/etc/loki/local-config.yaml"}
	c.Ports[LokiPort] = LokiPort
	return &GrafanaLoki{Container: c}
}

// PushURL is the push endpoint seen from the scenario network.
func (l *GrafanaLoki) PushURL() string {
	return fmt.Sprintf("http://%s:%d/loki/api/v1/push", l.Name(), LokiPort)
}

// QueryURL is the query API base seen from the host.
func (l *GrafanaLoki) QueryURL() string {
	return fmt.Sprintf("http://localhost:%d", LokiPort)
}

func (l *GrafanaLoki) Deploy(ctx context.Context) error {
	if err := l.Container.Deploy(ctx); err != nil {
		return err
	}
	return l.WaitForLog(ctx, observabilityStartWait, lokiStartedLog)
}

type prometheusConfig struct {
	Global        prometheusGlobal         `yaml:"global"`
	ScrapeConfigs []prometheusScrapeConfig `yaml:"scrape_configs"`
}

type prometheusGlobal struct {
	ScrapeInterval string `yaml:"scrape_interval"`
}

type prometheusScrapeConfig struct {
	JobName       string                   `yaml:"job_name"`
	Scheme        string                   `yaml:"scheme,omitempty"`
	TLSConfig     *prometheusTLSConfig     `yaml:"tls_config,omitempty"`
	StaticConfigs []prometheusStaticTarget `yaml:"static_configs"`
}

type prometheusTLSConfig struct {
	CAFile string `yaml:"ca_file"`
}

type prometheusStaticTarget struct {
	Targets []string `yaml:"targets"`
}

// PrometheusServer scrapes the agent metrics endpoint. Its API port is published on the host.
type PrometheusServer struct {
	*container.Container

	Target string
	SSL    bool

	env      *Env
	prepared bool
}

// NewPrometheusServer scrapes the agent named target on the metrics port.
func NewPrometheusServer(env *Env, target string, ssl bool) *PrometheusServer {
	c := container.New(env.Runtime, env.ServiceName(PrometheusService), prometheusImage, env.Network)
	c.Command = []string{"--config.file=" + prometheusConfigDir + "/prometheus.yml"}
	c.Ports[PrometheusPort] = PrometheusPort
	return &PrometheusServer{Container: c, Target: target, SSL: ssl, env: env}
}

// APIURL is the HTTP API base seen from the host.
func (p *PrometheusServer) APIURL() string {
	return fmt.Sprintf("http://localhost:%d", PrometheusPort)
}

// Config renders prometheus.yml.
func (p *PrometheusServer) Config() ([]byte, error) {
	scrape := prometheusScrapeConfig{
		JobName:       "minifi",
		StaticConfigs: []prometheusStaticTarget{{Targets: []string{fmt.Sprintf("%s:%d", p.Target, PrometheusMetricsPort)}}},
	}
	if p.SSL {
		scrape.Scheme = "https"
		scrape.TLSConfig = &prometheusTLSConfig{CAFile: prometheusConfigDir + "/root_ca.crt"}
	}
	data, err := yaml.Marshal(prometheusConfig{
		Global:        prometheusGlobal{ScrapeInterval: "2s"},
		ScrapeConfigs: []prometheusScrapeConfig{scrape},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render prometheus config: %w", err)
	}
	return data, nil
}

func (p *PrometheusServer) Deploy(ctx context.Context) error {
	if !p.prepared {
		cfg, err := p.Config()
		if err != nil {
			return err
		}
		p.Files = append(p.Files, container.File{Path: prometheusConfigDir, Name: "prometheus.yml", Content: cfg})
		if p.SSL {
			p.Files = append(p.Files, container.File{Path: prometheusConfigDir, Name: "root_ca.crt", Content: p.env.RootCA.CertPEM()})
		}
		p.prepared = true
	}
	if err := p.Container.Deploy(ctx); err != nil {
		return err
	}
	return p.WaitForLog(ctx, observabilityStartWait, prometheusStartedLog)
}
