package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/pkg/certificates"
	"github.com/kubev2v/flowharness/pkg/wait"
)

const (
	ElasticsearchService = "elasticsearch"
	OpensearchService    = "opensearch"

	SearchPort = 9200

	elasticsearchImage    = "elasticsearch:9.1.5"
	elasticsearchCertDir  = "/usr/share/elasticsearch/config/certs"
	elasticsearchConfig   = "/usr/share/elasticsearch/config/elasticsearch.yml"
	elasticsearchReadyLog = `"current.health":"GREEN"`
	elasticPassword       = "password"
	opensearchImage       = "opensearchproject/opensearch:2.19.3"
	searchStartupWait     = 120 * time.Second
)

const elasticsearchYAML = `cluster.name: "docker-cluster"
network.host: 0.0.0.0
discovery.type: single-node
xpack.security.enabled: true
xpack.security.http.ssl.enabled: true
xpack.security.http.ssl.key: certs/elastic_http.key
xpack.security.http.ssl.certificate: certs/elastic_http.crt
xpack.security.http.ssl.certificate_authorities: certs/root_ca.crt
xpack.security.transport.ssl.enabled: true
xpack.security.transport.ssl.key: certs/elastic_transport.key
xpack.security.transport.ssl.certificate: certs/elastic_transport.crt
xpack.security.transport.ssl.certificate_authorities: certs/root_ca.crt
xpack.security.transport.ssl.verification_mode: certificate
`

const apiKeyRequest = `{"name":"my-api-key","expiration":"1d","role_descriptors":{"role-a": {"cluster": ["all"],"index": [{"names": ["my_index"],"privileges": ["all"]}]}}}`

// SearchEngine is a document store queried over its REST API from inside the container.
type SearchEngine interface {
	Name() string
	Query(ctx context.Context, method, path, body string) (string, error)
}

// IndexDocument stores a document under id and refreshes the index so it is searchable at once.
func IndexDocument(ctx context.Context, engine SearchEngine, index, id string, fields map[string]string) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	out, err := engine.Query(ctx, "PUT", fmt.Sprintf("/%s/_doc/%s?refresh=true", index, id), string(body))
	if err != nil {
		return err
	}
	if strings.Contains(out, `"error"`) {
		return fmt.Errorf("failed to index document %s/%s on %s: %s", index, id, engine.Name(), out)
	}
	return nil
}

// Elasticsearch runs a single node with TLS on HTTP and transport.
type Elasticsearch struct {
	*container.Container

	env      *Env
	prepared bool
}

func NewElasticsearch(env *Env) *Elasticsearch {
	c := container.New(env.Runtime, env.ServiceName(ElasticsearchService), elasticsearchImage, env.Network)
	c.Env["ELASTIC_PASSWORD"] = elasticPassword
	return &Elasticsearch{Container: c, env: env}
}

// URL is the HTTPS endpoint seen from the scenario network.
func (e *Elasticsearch) URL() string {
	return fmt.Sprintf("https://%s:%d", e.Name(), SearchPort)
}

func (e *Elasticsearch) Credentials() (string, string) {
	return "elastic", elasticPassword
}

func (e *Elasticsearch) Deploy(ctx context.Context) error {
	if !e.prepared {
		if err := e.addCertificates(); err != nil {
			return err
		}
		e.AddFile("/usr/share/elasticsearch/config", "elasticsearch.yml", elasticsearchYAML)
		e.prepared = true
	}
	if err := e.Container.Deploy(ctx); err != nil {
		return err
	}
	return e.WaitForLog(ctx, searchStartupWait, elasticsearchReadyLog)
}

func (e *Elasticsearch) addCertificates() error {
	http, err := e.env.ServerCert(e.Name())
	if err != nil {
		return err
	}
	transport, err := certificates.MakeCertWithoutExtendedUsage(e.Name(), e.env.RootCA)
	if err != nil {
		return err
	}
	e.Files = append(e.Files,
		container.File{Path: elasticsearchCertDir, Name: "root_ca.crt", Content: e.env.RootCA.CertPEM()},
		container.File{Path: elasticsearchCertDir, Name: "elastic_http.crt", Content: http.CertPEM()},
		container.File{Path: elasticsearchCertDir, Name: "elastic_http.key", Content: http.KeyPEM()},
		container.File{Path: elasticsearchCertDir, Name: "elastic_transport.crt", Content: transport.CertPEM()},
		container.File{Path: elasticsearchCertDir, Name: "elastic_transport.key", Content: transport.KeyPEM()},
	)
	return nil
}

func (e *Elasticsearch) Query(ctx context.Context, method, path, body string) (string, error) {
	return e.curl(ctx, method, path, body)
}

// CreateAPIKey issues an API key with full rights on my_index and returns its encoded form.
func (e *Elasticsearch) CreateAPIKey(ctx context.Context) (string, error) {
	out, err := e.curl(ctx, "POST", "/_security/api_key", apiKeyRequest)
	if err != nil {
		return "", err
	}
	return encodedAPIKey(out)
}

func (e *Elasticsearch) curl(ctx context.Context, method, path, body string) (string, error) {
	cmd := fmt.Sprintf("curl -s -u elastic:%s -k -X%s https://localhost:%d%s -H Content-Type:application/json",
		elasticPassword, method, SearchPort, path)
	if body != "" {
		cmd += " -d'" + body + "'"
	}
	return e.Run(ctx, "/bin/bash", "-c", cmd)
}

func encodedAPIKey(out string) (string, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var resp struct {
		Encoded string `json:"encoded"`
	}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &resp); err != nil {
		return "", fmt.Errorf("failed to parse api key response: %w", err)
	}
	if resp.Encoded == "" {
		return "", fmt.Errorf("api key response has no encoded key: %s", out)
	}
	return resp.Encoded, nil
}

// Opensearch runs a single node with the security plugin disabled.
type Opensearch struct {
	*container.Container
}

func NewOpensearch(env *Env) *Opensearch {
	c := container.New(env.Runtime, env.ServiceName(OpensearchService), opensearchImage, env.Network)
	c.Env["discovery.type"] = "single-node"
	c.Env["DISABLE_SECURITY_PLUGIN"] = "true"
	c.Env["DISABLE_INSTALL_DEMO_CONFIG"] = "true"
	c.Env["OPENSEARCH_JAVA_OPTS"] = "-Xms512m -Xmx512m"
	return &Opensearch{Container: c}
}

func (o *Opensearch) URL() string {
	return fmt.Sprintf("http://%s:%d", o.Name(), SearchPort)
}

func (o *Opensearch) Deploy(ctx context.Context) error {
	if err := o.Container.Deploy(ctx); err != nil {
		return err
	}
	return o.WaitFor(ctx, "cluster health is green", searchStartupWait, func(ctx context.Context) (bool, error) {
		out, err := o.Query(ctx, "GET", "/_cluster/health", "")
		if err != nil {
			return false, err
		}
		return strings.Contains(out, `"status":"green"`), nil
	}, wait.WithInterval(2*time.Second))
}

func (o *Opensearch) Query(ctx context.Context, method, path, body string) (string, error) {
	cmd := fmt.Sprintf("curl -s -X%s http://localhost:%d%s -H Content-Type:application/json", method, SearchPort, path)
	if body != "" {
		cmd += " -d'" + body + "'"
	}
	return o.Run(ctx, "/bin/bash", "-c", cmd)
}
