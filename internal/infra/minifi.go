package infra

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/flow"
	"github.com/kubev2v/flowharness/internal/images"
)

const (
	DefaultMinifiName = "minifi-primary"

	minifiStartedLog  = "Starting Flow Controller"
	minifiResourceDir = "/tmp/resources"
	minifiRunCommand  = "./bin/minifi.sh run"

	C2ServerService = "minifi-c2-server"
	C2ServerPort    = 10090
	C2AgentClass    = "minifi-test-class"
	C2AgentID       = "minifi-test-id"

	PrometheusMetricsPort = 9936
	ControllerSocketPort  = 9998

	publisherPrometheus = "PrometheusMetricsPublisher"
	publisherLog        = "LogMetricsPublisher"
)

// PythonMode selects how NiFi style python processors find their dependencies.
type PythonMode string

const (
	PythonNone               PythonMode = ""
	// PythonSystemPackages installs the dependencies into the system python.
	PythonSystemPackages     PythonMode = "system"
	// PythonVenv lets the agent install requirements into a pre-created virtualenv.
	PythonVenv               PythonMode = "venv"
	// PythonVenvWithPackages uses a virtualenv that already holds the dependencies.
	PythonVenvWithPackages   PythonMode = "venv-with-packages"
	// PythonInlineDependencies reads the dependencies declared inside the processors.
	PythonInlineDependencies PythonMode = "inline"
)

// ParsePythonMode maps the install mode wording of the step texts.
func ParsePythonMode(text string) (PythonMode, error) {
	switch text {
	case "with required python packages":
		return PythonSystemPackages, nil
	case "with a pre-created virtualenv":
		return PythonVenv, nil
	case "with a pre-created virtualenv containing the required python packages":
		return PythonVenvWithPackages, nil
	case "using inline defined Python dependencies to install packages":
		return PythonInlineDependencies, nil
	default:
		return PythonNone, fmt.Errorf("unknown python install mode: %q", text)
	}
}

// MinifiOptions are the deploy time switches of an agent container.
type MinifiOptions struct {
	ConfigFormat            flow.Format
	Provenance              bool
	PrometheusSSL           bool
	SQL                     bool
	ExamplePythonProcessors bool
	LlamaModel              bool
	Python                  PythonMode
	FlowFromURL             bool
	FIPS                    bool
	// TrustRootCA ships the scenario root CA even without client certificates.
	TrustRootCA             bool
}

// MinifiContainer is the agent under test.
type MinifiContainer struct {
	*container.Container

	Flow    *flow.Definition
	Options MinifiOptions

	env        *Env
	log        *zap.SugaredLogger
	properties *propertySet
	logProps   *propertySet
	publishers []string
	prepared   bool
}

// NewMinifiContainer creates the agent service registered as name in the scenario.
func NewMinifiContainer(env *Env, name string) *MinifiContainer {
	format, err := flow.ParseFormat(env.Agent.ConfigFormat)
	if err != nil {
		format = flow.FormatYAML
	}
	return &MinifiContainer{
		Container:  container.New(env.Runtime, env.ServiceName(name), env.Agent.AgentImage(), env.Network),
		Flow:       flow.NewDefinition(flow.DefaultMinifiFlowName),
		Options:    MinifiOptions{ConfigFormat: format, FIPS: env.Agent.FIPS},
		env:        env,
		log:        zap.S().Named("minifi").With("container", env.ServiceName(name)),
		properties: newPropertySet(),
		logProps:   newPropertySet(),
	}
}

// SetProperty overrides a minifi.properties entry.
func (m *MinifiContainer) SetProperty(key, value string) {
	m.properties.Set(key, value)
}

// Property returns an explicitly set minifi.properties entry.
func (m *MinifiContainer) Property(key string) (string, bool) {
	return m.properties.Get(key)
}

// SetLogProperty overrides a minifi-log.properties entry.
func (m *MinifiContainer) SetLogProperty(key, value string) {
	m.logProps.Set(key, value)
}

// EnableC2 points the agent at a C2 server. baseURL has no trailing slash,
// e.g. http://minifi-c2-server-x:10090.
func (m *MinifiContainer) EnableC2(baseURL string) {
	m.SetProperty("nifi.c2.enable", "true")
	m.SetProperty("nifi.c2.rest.url", baseURL+"/c2/config/heartbeat")
	m.SetProperty("nifi.c2.rest.url.ack", baseURL+"/c2/config/acknowledge")
	m.SetProperty("nifi.c2.flow.base.url", baseURL+"/c2/config/")
	m.SetProperty("nifi.c2.root.classes", "DeviceInfoNode,AgentInformation,FlowInformation,AssetInformation")
	m.SetProperty("nifi.c2.full.heartbeat", "false")
	m.SetProperty("nifi.c2.agent.class", C2AgentClass)
	m.SetProperty("nifi.c2.agent.identifier", C2AgentID)
}

// EnableC2WithSSL is EnableC2 over https with the agent client certificate.
func (m *MinifiContainer) EnableC2WithSSL(baseURL string) {
	m.EnableC2(baseURL)
	m.SetProperty("nifi.c2.rest.ssl.context.service", "SSLContextService")
	m.SetUpSSLProperties()
}

// SetUpSSLProperties makes the agent use its client certificate for secure site-to-site and C2.
func (m *MinifiContainer) SetUpSSLProperties() {
	m.SetProperty("nifi.remote.input.secure", "true")
	m.SetProperty("nifi.security.client.certificate", minifiResourceDir+"/minifi_client.crt")
	m.SetProperty("nifi.security.client.private.key", minifiResourceDir+"/minifi_client.key")
	m.SetProperty("nifi.security.client.ca.certificate", minifiResourceDir+"/root_ca.crt")
}

func (m *MinifiContainer) EnableProvenance() {
	m.Options.Provenance = true
}

// EnablePrometheus publishes metrics on port 9936, over TLS when ssl is set.
func (m *MinifiContainer) EnablePrometheus(ssl bool) {
	m.SetProperty("nifi.metrics.publisher.agent.identifier", "Agent1")
	m.SetProperty("nifi.metrics.publisher.PrometheusMetricsPublisher.port", fmt.Sprint(PrometheusMetricsPort))
	m.SetProperty("nifi.metrics.publisher.PrometheusMetricsPublisher.metrics",
		"RepositoryMetrics,QueueMetrics,PutFileMetrics,processorMetrics/Get.*,FlowInformation,DeviceInfoNode,AgentStatus")
	if ssl {
		m.Options.PrometheusSSL = true
		m.SetProperty("nifi.metrics.publisher.PrometheusMetricsPublisher.certificate", minifiResourceDir+"/minifi_merged_cert.crt")
		m.SetProperty("nifi.metrics.publisher.PrometheusMetricsPublisher.ca.certificate", minifiResourceDir+"/root_ca.crt")
	}
	m.addPublisher(publisherPrometheus)
	m.Ports[PrometheusMetricsPort] = PrometheusMetricsPort
}

func (m *MinifiContainer) EnableLogMetricsPublisher() {
	m.SetProperty("nifi.metrics.publisher.LogMetricsPublisher.metrics", "RepositoryMetrics")
	m.SetProperty("nifi.metrics.publisher.LogMetricsPublisher.logging.interval", "1s")
	m.addPublisher(publisherLog)
}

func (m *MinifiContainer) addPublisher(class string) {
	for _, p := range m.publishers {
		if p == class {
			return
		}
	}
	m.publishers = append(m.publishers, class)
	m.SetProperty("nifi.metrics.publisher.class", strings.Join(m.publishers, ","))
}

func (m *MinifiContainer) EnableControllerSocket() {
	m.SetProperty("controller.socket.enable", "true")
	m.SetProperty("controller.socket.host", "localhost")
	m.SetProperty("controller.socket.port", fmt.Sprint(ControllerSocketPort))
	m.SetProperty("controller.socket.local.any.interface", "false")
}

// UseFlowConfigFromURL makes the agent fetch its flow from the C2 server instead of config.yml.
func (m *MinifiContainer) UseFlowConfigFromURL(baseURL string) {
	m.Options.FlowFromURL = true
	m.SetProperty("nifi.c2.flow.url", baseURL+"/c2/config?class="+C2AgentClass)
}

// ConfigDir is the agent conf directory of the image in use.
func (m *MinifiContainer) ConfigDir(ctx context.Context) (string, error) {
	layout, err := m.env.Images.Layout(ctx)
	if err != nil {
		return "", err
	}
	return layout.ConfDir, nil
}

// engine picks the image recipe the options call for. An empty engine means the plain agent image.
func (m *MinifiContainer) engine() string {
	switch {
	case m.Options.SQL:
		return images.EngineMinifiSQL
	case m.Options.ExamplePythonProcessors:
		return images.EngineMinifiPythonExamples
	case m.Options.Python == PythonSystemPackages:
		return images.EngineMinifiNifiPythonSystem
	case m.Options.Python == PythonVenv, m.Options.Python == PythonVenvWithPackages:
		return images.EngineMinifiNifiPython
	case m.Options.Python == PythonInlineDependencies:
		return images.EngineMinifiNifiPythonInline
	case m.Options.LlamaModel:
		return images.EngineMinifiLlamaCpp
	default:
		return ""
	}
}

// renderProperties layers defaults, option derived entries and explicit overrides.
func (m *MinifiContainer) renderProperties(layout images.Layout) string {
	sets := [][]property{defaultMinifiProperties}
	if layout.FHS {
		sets = append(sets, fhsMinifiProperties)
	}
	props := newPropertySet(sets...)

	if !m.Options.Provenance {
		props.Set("nifi.provenance.repository.class.name", "NoOpRepository")
	}
	props.Set("nifi.openssl.fips.support.enable", fmt.Sprint(m.Options.FIPS))

	switch m.Options.Python {
	case PythonSystemPackages:
		props.Set("nifi.python.install.packages.automatically", "false")
	case PythonVenv, PythonInlineDependencies:
		props.Set("nifi.python.virtualenv.directory", path.Join(layout.VenvParent, "venv"))
		props.Set("nifi.python.install.packages.automatically", "true")
	case PythonVenvWithPackages:
		props.Set("nifi.python.virtualenv.directory", path.Join(layout.VenvParent, "venv-with-langchain"))
		props.Set("nifi.python.install.packages.automatically", "false")
	}

	props.Merge(m.properties)
	return props.Render()
}

func (m *MinifiContainer) renderLogProperties() string {
	props := newPropertySet(defaultLogProperties)
	props.Merge(m.logProps)
	return props.Render()
}

// FlowConfig serializes the flow in the configured format.
func (m *MinifiContainer) FlowConfig() ([]byte, error) {
	serializer, err := flow.SerializerFor(m.Options.ConfigFormat)
	if err != nil {
		return nil, err
	}
	doc, err := serializer.Serialize(m.Flow)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize flow of %s: %w", m.Name(), err)
	}
	if m.Options.ConfigFormat == flow.FormatJSON {
		if err := flow.ValidateMinifiJSON(doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// RootCAPath is where the agent finds the scenario root CA once it is shipped.
func (m *MinifiContainer) RootCAPath() string {
	return minifiResourceDir + "/root_ca.crt"
}

func (m *MinifiContainer) addCertificates() error {
	if _, secure := m.properties.Get("nifi.security.client.certificate"); !secure && !m.Options.PrometheusSSL {
		if m.Options.TrustRootCA {
			m.AddFile(minifiResourceDir, "root_ca.crt", string(m.env.RootCA.CertPEM()))
		}
		return nil
	}
	kp, err := m.env.ClientCert(m.Name())
	if err != nil {
		return err
	}
	m.AddFile(minifiResourceDir, "root_ca.crt", string(m.env.RootCA.CertPEM()))
	m.AddFile(minifiResourceDir, "minifi_client.crt", string(kp.CertPEM()))
	m.AddFile(minifiResourceDir, "minifi_client.key", string(kp.KeyPEM()))
	m.AddFile(minifiResourceDir, "minifi_merged_cert.crt", string(kp.MergedPEM()))
	return nil
}

// prepare writes the conf files and picks the image.
func (m *MinifiContainer) prepare(ctx context.Context) error {
	layout, err := m.env.Images.Layout(ctx)
	if err != nil {
		return err
	}

	if engine := m.engine(); engine != "" {
		image, err := m.env.Images.GetImage(ctx, engine)
		if err != nil {
			return err
		}
		m.SetImage(image)
	}

	m.AddFile(layout.ConfDir, "minifi.properties", m.renderProperties(layout))
	m.AddFile(layout.ConfDir, "minifi-log.properties", m.renderLogProperties())

	if m.Options.FlowFromURL {
		m.Entrypoint = []string{"/bin/sh", "-c", "rm -f " + path.Join(layout.ConfDir, "config.yml") + " && " + minifiRunCommand}
	} else {
		doc, err := m.FlowConfig()
		if err != nil {
			return err
		}
		m.log.Infow("using generated flow config", "format", m.Options.ConfigFormat, "config", string(doc))
		m.AddFile(layout.ConfDir, "config.yml", string(doc))
	}

	return m.addCertificates()
}

// Deploy starts the agent and waits until its flow controller is running.
func (m *MinifiContainer) Deploy(ctx context.Context) error {
	if !m.prepared {
		if err := m.prepare(ctx); err != nil {
			return err
		}
		m.prepared = true
	}
	if err := m.Container.Deploy(ctx); err != nil {
		return err
	}
	return m.WaitForLog(ctx, m.env.Agent.StartupTimeout, minifiStartedLog)
}
