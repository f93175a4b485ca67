package infra

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/flow"
)

const (
	NifiService = "nifi"

	NifiHTTPPort      = 8080
	NifiHTTPSPort     = 8443
	NifiSocketPort    = 10000
	NifiSSLSocketPort = 10443

	nifiStartedLog   = "Started Application in"
	nifiHome         = "/opt/nifi/nifi-current"
	nifiConfigDir    = "/tmp/nifi_config"
	nifiResourceDir  = "/tmp/resources"
	nifiPassword     = "passw0rd1!"
	nifiSensitiveKey = "secret_key_12345"
)

//go:embed scripts/convert_cert_to_jks.sh
var convertCertScript string

// NifiContainer is a NiFi instance the agent talks site-to-site with.
type NifiContainer struct {
	*container.Container

	Flow *flow.Definition
	SSL  bool

	env      *Env
	log      *zap.SugaredLogger
	prepared bool
}

func NewNifiContainer(env *Env, ssl bool) *NifiContainer {
	name := env.ServiceName(NifiService)
	n := &NifiContainer{
		Container: container.New(env.Runtime, name, "apache/nifi:"+env.NiFi.Version, env.Network),
		Flow:      flow.NewDefinition(flow.DefaultNifiFlowName),
		SSL:       ssl,
		env:       env,
		log:       zap.S().Named("nifi").With("container", name),
	}
	n.Entrypoint = []string{"/bin/sh", "-c", nifiEntryCommand(name, ssl)}
	return n
}

// nifiEntryCommand rewrites nifi.properties for the scenario, installs the flow and
// follows the application log so it shows up in the container logs.
func nifiEntryCommand(host string, ssl bool) string {
	set := func(key, value string) string {
		return fmt.Sprintf(`-e 's/^\(%s\)=.*/\1=%s/'`, key, strings.ReplaceAll(value, "/", `\/`))
	}
	var edits []string
	prefix := ""
	if ssl {
		prefix = fmt.Sprintf("/scripts/convert_cert_to_jks.sh %[1]s %[1]s/nifi_client.key %[1]s/nifi_client.crt %[1]s/root_ca.crt && ", nifiResourceDir)
		edits = []string{
			set("nifi.remote.input.host", host),
			set("nifi.remote.input.secure", "true"),
			set("nifi.sensitive.props.key", nifiSensitiveKey),
			set("nifi.web.https.port", fmt.Sprint(NifiHTTPSPort)),
			set("nifi.web.https.host", host),
			set("nifi.security.keystore", nifiResourceDir+"/keystore.jks"),
			set("nifi.security.keystoreType", "jks"),
			set("nifi.security.keystorePasswd", nifiPassword),
			`-e 's/^\(nifi.security.keyPasswd\)=.*/#\1=` + nifiPassword + `/'`,
			set("nifi.security.truststore", nifiResourceDir+"/truststore.jks"),
			set("nifi.security.truststoreType", "jks"),
			set("nifi.security.truststorePasswd", nifiPassword),
			set("nifi.remote.input.socket.port", fmt.Sprint(NifiSSLSocketPort)),
		}
	} else {
		edits = []string{
			set("nifi.remote.input.host", host),
			set("nifi.sensitive.props.key", nifiSensitiveKey),
			set("nifi.remote.input.secure", "false"),
			set("nifi.web.http.port", fmt.Sprint(NifiHTTPPort)),
			set("nifi.web.https.port", ""),
			set("nifi.web.https.host", ""),
			set("nifi.web.http.host", host),
			set("nifi.security.keystore", ""),
			set("nifi.security.keystoreType", ""),
			set("nifi.security.keystorePasswd", ""),
			set("nifi.security.keyPasswd", ""),
			set("nifi.security.truststore", ""),
			set("nifi.security.truststoreType", ""),
			set("nifi.security.truststorePasswd", ""),
			set("nifi.remote.input.socket.port", fmt.Sprint(NifiSocketPort)),
		}
	}
	return prefix +
		"sed -i " + strings.Join(edits, " ") + " " + nifiHome + "/conf/nifi.properties && " +
		"cp " + nifiConfigDir + "/flow.json.gz " + nifiHome + "/conf && " + nifiHome + "/bin/nifi.sh run & " +
		"nifi_pid=$! && " +
		"tail -F --pid=${nifi_pid} " + nifiHome + "/logs/nifi-app.log"
}

// URL is the site-to-site address of the instance as seen from the scenario network.
func (n *NifiContainer) URL() string {
	if n.SSL {
		return fmt.Sprintf("https://%s:%d/nifi", n.Name(), NifiHTTPSPort)
	}
	return fmt.Sprintf("http://%s:%d/nifi", n.Name(), NifiHTTPPort)
}

func (n *NifiContainer) addCertificates() error {
	kp, err := n.env.ServerCert(n.Name())
	if err != nil {
		return err
	}
	n.AddFile(nifiResourceDir, "root_ca.crt", string(n.env.RootCA.CertPEM()))
	n.AddFile(nifiResourceDir, "nifi_client.crt", string(kp.CertPEM()))
	n.AddFile(nifiResourceDir, "nifi_client.key", string(kp.KeyPEM()))
	n.Files = append(n.Files, container.File{Path: "/scripts", Name: "convert_cert_to_jks.sh", Content: []byte(convertCertScript), Mode: 0o755})
	return nil
}

// Deploy installs the gzipped flow and waits for the application to start.
func (n *NifiContainer) Deploy(ctx context.Context) error {
	if !n.prepared {
		doc, err := flow.NifiJSONSerializer{Version: n.env.NiFi.Version}.Serialize(n.Flow)
		if err != nil {
			return fmt.Errorf("failed to serialize nifi flow: %w", err)
		}
		n.log.Infow("deploying nifi with flow configuration", "config", string(doc))
		gz, err := flow.Gzip(doc)
		if err != nil {
			return err
		}
		n.Files = append(n.Files, container.File{Path: nifiConfigDir, Name: "flow.json.gz", Content: gz})
		if err := n.addCertificates(); err != nil {
			return err
		}
		n.prepared = true
	}
	if err := n.Container.Deploy(ctx); err != nil {
		return err
	}
	return n.WaitForLog(ctx, n.env.NiFi.StartupTimeout, nifiStartedLog)
}
