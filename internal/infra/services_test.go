package infra_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/container/containertest"
	"github.com/kubev2v/flowharness/internal/flow"
	"github.com/kubev2v/flowharness/internal/infra"
)

var _ = Describe("services", func() {
	var (
		ctx context.Context
		rt  *containertest.Runtime
		env *infra.Env
	)

	BeforeEach(func() {
		ctx = context.Background()
		rt = containertest.NewRuntime()
		env = newEnv(rt)
	})

	Context("NiFi", func() {
		const name = "nifi-" + scenarioID

		BeforeEach(func() {
			rt.StartLogs[name] = []string{"Started Application in 42 seconds"}
		})

		// Given a NiFi flow
		// When the instance is deployed
		// Then the gzipped flow should be injected and the properties edited for plain site-to-site
		It("injects the gzipped flow and configures plain site-to-site", func() {
			// Arrange
			nifi := infra.NewNifiContainer(env, false)
			nifi.Flow.AddProcessor(flow.NewProcessor("GetFile", "GetFile"))

			// Act
			err := nifi.Deploy(ctx)

			// Assert
			Expect(err).NotTo(HaveOccurred())
			gz, ok := rt.File(name, "/tmp/nifi_config/flow.json.gz")
			Expect(ok).To(BeTrue())
			r, err := gzip.NewReader(bytes.NewReader([]byte(gz)))
			Expect(err).NotTo(HaveOccurred())
			doc, err := io.ReadAll(r)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(doc)).To(ContainSubstring("org.apache.nifi.processors.standard.GetFile"))

			fc, _ := rt.Container(name)
			Expect(fc.Spec.Image()).To(Equal("apache/nifi:2.7.2"))
			entry := strings.Join(fc.Spec.Entrypoint(), " ")
			Expect(entry).To(ContainSubstring(`s/^\(nifi.remote.input.secure\)=.*/\1=false/`))
			Expect(entry).To(ContainSubstring(`s/^\(nifi.remote.input.socket.port\)=.*/\1=10000/`))
			Expect(entry).NotTo(ContainSubstring("convert_cert_to_jks.sh /tmp"))
			Expect(nifi.URL()).To(Equal("http://nifi-feature-1:8080/nifi"))
		})

		It("converts the certificates first in ssl mode", func() {
			nifi := infra.NewNifiContainer(env, true)

			Expect(nifi.Deploy(ctx)).To(Succeed())

			fc, _ := rt.Container(name)
			entry := strings.Join(fc.Spec.Entrypoint(), " ")
			Expect(entry).To(ContainSubstring("/scripts/convert_cert_to_jks.sh /tmp/resources /tmp/resources/nifi_client.key"))
			Expect(entry).To(ContainSubstring(`s/^\(nifi.security.keystore\)=.*/\1=\/tmp\/resources\/keystore.jks/`))
			script, ok := rt.File(name, "/scripts/convert_cert_to_jks.sh")
			Expect(ok).To(BeTrue())
			Expect(script).To(ContainSubstring("keytool -importkeystore"))
			Expect(nifi.URL()).To(Equal("https://nifi-feature-1:8443/nifi"))
		})
	})

	Context("HTTP proxy", func() {
		const name = "http-proxy-" + scenarioID

		var proxy *infra.HTTPProxy

		BeforeEach(func() {
			rt.StartLogs[name] = []string{"Accepting HTTP Socket connections at local=[::]:3128"}
			proxy = infra.NewHTTPProxy(env)
			Expect(proxy.Deploy(ctx)).To(Succeed())
		})

		accessLog := func(log string) {
			rt.ExecFunc = func(_ string, cmd []string) container.ExecResult {
				Expect(cmd).To(Equal([]string{"cat", "/var/log/squid/access.log"}))
				return container.ExecResult{Output: log}
			}
		}

		It("runs the built squid image with its TLS certificate", func() {
			fc, _ := rt.Container(name)
			Expect(fc.Spec.Image()).To(Equal("flowharness/http-proxy:latest"))
			_, ok := rt.File(name, "/etc/squid/certs/squid-cert.pem")
			Expect(ok).To(BeTrue())
			Expect(proxy.Address()).To(Equal("http-proxy-feature-1:3128"))
		})

		DescribeTable("access checks",
			func(log string, expected bool) {
				accessLog(log)

				ok, err := proxy.CheckAccess(ctx, "http://s3-server:9090/test_bucket")

				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(Equal(expected))
			},
			Entry("plain miss", "1 TCP_MISS/200 PUT http://S3-SERVER:9090/test_bucket", true),
			Entry("denied then authenticated", "TCP_DENIED/407 PUT http://s3-server:9090/test_bucket\nTCP_MISS/200 PUT http://s3-server:9090/test_bucket", true),
			Entry("denied only", "TCP_DENIED/407 PUT http://s3-server:9090/test_bucket", false),
			Entry("other url", "TCP_MISS/200 GET http://example.com/", false),
		)

		It("reports no access when the log does not exist yet", func() {
			rt.ExecFunc = func(string, []string) container.ExecResult {
				return container.ExecResult{ExitCode: 1, Output: "No such file or directory"}
			}

			ok, err := proxy.CheckAccess(ctx, "http://s3-server:9090")

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Context("Azure", func() {
		It("builds the connection string from the container name", func() {
			azure := infra.NewAzureServer(env)

			cs := azure.ConnectionString()

			Expect(cs).To(HavePrefix("DefaultEndpointsProtocol=https;AccountName=devstoreaccount1;AccountKey="))
			Expect(cs).To(ContainSubstring("BlobEndpoint=https://azure-storage-server-feature-1:10000/devstoreaccount1;"))
			Expect(cs).To(ContainSubstring("TableEndpoint=https://azure-storage-server-feature-1:10002/devstoreaccount1;"))
		})

		It("counts blobs through a one-off CLI container", func() {
			azure := infra.NewAzureServer(env)
			rt.OnceResult = container.ExecResult{Output: "WARNING: something\n3\n"}

			count, err := azure.BlobCount(ctx, true)

			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(3))
		})

		It("fails when the CLI fails", func() {
			azure := infra.NewAzureServer(env)
			rt.OnceResult = container.ExecResult{ExitCode: 2, Output: "ResourceNotFound"}

			err := azure.AddTestBlob(ctx, "test", "#test_data$123$#", true)

			Expect(err).To(HaveOccurred())
		})
	})

	Context("Elasticsearch", func() {
		const name = "elasticsearch-" + scenarioID

		It("creates an API key and returns its encoded form", func() {
			rt.StartLogs[name] = []string{`{"current.health":"GREEN","message":"Cluster health status changed"}`}
			rt.ExecFunc = func(_ string, cmd []string) container.ExecResult {
				Expect(cmd[2]).To(ContainSubstring("-XPOST https://localhost:9200/_security/api_key"))
				return container.ExecResult{Output: `{"id":"x1","name":"my-api-key","api_key":"k","encoded":"eDE6aw=="}`}
			}
			es := infra.NewElasticsearch(env)
			Expect(es.Deploy(ctx)).To(Succeed())

			key, err := es.CreateAPIKey(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("eDE6aw=="))
			cfg, ok := rt.File(name, "/usr/share/elasticsearch/config/elasticsearch.yml")
			Expect(ok).To(BeTrue())
			Expect(cfg).To(ContainSubstring("xpack.security.http.ssl.enabled: true"))
			_, ok = rt.File(name, "/usr/share/elasticsearch/config/certs/elastic_transport.key")
			Expect(ok).To(BeTrue())
		})
	})

	Context("brokers", func() {
		It("advertises the kafka listener under the container name", func() {
			kafka := infra.NewKafkaBroker(env)

			Expect(kafka.Env).To(HaveKeyWithValue("KAFKA_ADVERTISED_LISTENERS", "PLAINTEXT://kafka-broker-feature-1:9092"))
			Expect(kafka.BootstrapServers()).To(Equal("kafka-broker-feature-1:9092"))
		})

		It("waits for the second ready line of postgres", func() {
			const name = "postgresql-server-" + scenarioID
			rt.StartLogs[name] = []string{
				"database system is ready to accept connections",
				"server stopped",
				"database system is ready to accept connections",
			}
			pg := infra.NewPostgreSQLServer(env)

			Expect(pg.Deploy(ctx)).To(Succeed())

			fc, _ := rt.Container(name)
			Expect(fc.Spec.Aliases()).To(ContainElement("postgres"))
			Expect(fc.Spec.EnvVars()).To(HaveKeyWithValue("POSTGRES_PASSWORD", "password"))
		})
	})

	Context("Prometheus", func() {
		It("scrapes the agent over TLS when asked to", func() {
			prom := infra.NewPrometheusServer(env, "minifi-primary-"+scenarioID, true)

			cfg, err := prom.Config()

			Expect(err).NotTo(HaveOccurred())
			Expect(string(cfg)).To(ContainSubstring("- minifi-primary-feature-1:9936"))
			Expect(string(cfg)).To(ContainSubstring("scheme: https"))
			Expect(string(cfg)).To(ContainSubstring("ca_file: /etc/prometheus/root_ca.crt"))
		})
	})

	Context("C2 server", func() {
		It("enables TLS in c2.properties", func() {
			c2 := infra.NewMinifiC2ServerContainer(env, true)

			props := c2.Properties()

			Expect(props).To(ContainSubstring("minifi.c2.server.secure=true\n"))
			Expect(props).To(ContainSubstring("minifi.c2.server.keystore=/tmp/resources/keystore.jks\n"))
			Expect(c2.BaseURL()).To(Equal("https://minifi-c2-server-feature-1:10090"))
		})

		It("serves the flow for the test agent class", func() {
			const name = "minifi-c2-server-" + scenarioID
			rt.StartLogs[name] = []string{"Server Started"}
			c2 := infra.NewMinifiC2ServerContainer(env, false)
			c2.Flow.AddProcessor(flow.NewProcessor("LogAttribute", "LogAttribute"))

			Expect(c2.Deploy(ctx)).To(Succeed())

			cfg, ok := rt.File(name, "/opt/minifi-c2/minifi-c2-current/files/minifi-test-class/config.text.yml.v1")
			Expect(ok).To(BeTrue())
			Expect(cfg).To(ContainSubstring("org.apache.nifi.minifi.processors.LogAttribute"))
		})
	})

	It("rejects unknown syslog protocols", func() {
		_, err := infra.NewSyslogClient(env, "sctp", "minifi-primary-"+scenarioID)
		Expect(err).To(HaveOccurred())
	})
})
