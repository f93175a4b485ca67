package infra_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/flowharness/internal/container/containertest"
	"github.com/kubev2v/flowharness/internal/flow"
	"github.com/kubev2v/flowharness/internal/infra"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

const confDir = "/opt/minifi/minifi-current/conf"

var _ = Describe("MinifiContainer", func() {
	var (
		ctx    context.Context
		rt     *containertest.Runtime
		env    *infra.Env
		minifi *infra.MinifiContainer
		name   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		rt = containertest.NewRuntime()
		env = newEnv(rt)
		minifi = infra.NewMinifiContainer(env, infra.DefaultMinifiName)
		name = "minifi-primary-" + scenarioID
		rt.StartLogs[name] = []string{"Starting Flow Controller"}
	})

	file := func(fullPath string) string {
		content, ok := rt.File(name, fullPath)
		Expect(ok).To(BeTrue(), "missing file %s", fullPath)
		return content
	}

	// Given an agent with one explicit property
	// When it is deployed
	// Then the conf files should hold defaults, derived values and the override
	It("writes the conf files and waits for the flow controller", func() {
		// Arrange
		minifi.SetProperty("nifi.c2.enable", "true")
		minifi.Flow.AddProcessor(flow.NewProcessor("GenerateFlowFile", "GenerateFlowFile"))

		// Act
		err := minifi.Deploy(ctx)

		// Assert
		Expect(err).NotTo(HaveOccurred())
		Expect(minifi.Name()).To(Equal(name))
		props := file(confDir + "/minifi.properties")
		Expect(props).To(HavePrefix("nifi.flow.configuration.file=./conf/config.yml\n"))
		Expect(props).To(ContainSubstring("nifi.provenance.repository.class.name=NoOpRepository\n"))
		Expect(props).To(ContainSubstring("nifi.openssl.fips.support.enable=false\n"))
		Expect(props).To(HaveSuffix("nifi.c2.enable=true\n"))
		Expect(file(confDir + "/minifi-log.properties")).To(ContainSubstring("logger.org::apache::nifi::minifi=INFO,stderr\n"))
		Expect(file(confDir + "/config.yml")).To(ContainSubstring("MiNiFi Config Version: 3"))
	})

	It("lets explicit properties win over defaults", func() {
		minifi.SetProperty("nifi.extension.path", "/custom/*")
		minifi.EnableProvenance()

		Expect(minifi.Deploy(ctx)).To(Succeed())

		props := file(confDir + "/minifi.properties")
		Expect(props).To(ContainSubstring("nifi.extension.path=/custom/*\n"))
		Expect(props).NotTo(ContainSubstring("../extensions/*"))
		Expect(props).NotTo(ContainSubstring("NoOpRepository"))
	})

	It("uses the FHS paths when the image is built that way", func() {
		rt.Images[env.Agent.AgentImage()] = []string{"ENV MINIFI_INSTALLATION_TYPE=FHS"}
		minifi = infra.NewMinifiContainer(newEnv(rt), infra.DefaultMinifiName)

		Expect(minifi.Deploy(ctx)).To(Succeed())

		props := file("/etc/nifi-minifi-cpp/minifi.properties")
		Expect(props).To(ContainSubstring("nifi.flow.configuration.file=/etc/nifi-minifi-cpp/config.yml\n"))
		Expect(props).To(ContainSubstring("nifi.extension.path=/usr/lib64/nifi-minifi-cpp/extensions/*\n"))
	})

	It("writes a schema valid JSON flow when asked for JSON", func() {
		minifi.Options.ConfigFormat = flow.FormatJSON
		minifi.Flow.AddProcessor(flow.NewProcessor("GenerateFlowFile", "GenerateFlowFile"))

		Expect(minifi.Deploy(ctx)).To(Succeed())

		Expect(file(confDir + "/config.yml")).To(ContainSubstring(`"rootGroup"`))
	})

	It("switches to the sql image", func() {
		minifi.Options.SQL = true

		Expect(minifi.Deploy(ctx)).To(Succeed())

		fc, ok := rt.Container(name)
		Expect(ok).To(BeTrue())
		Expect(fc.Spec.Image()).To(Equal("flowharness/minifi-cpp-sql:latest"))
	})

	DescribeTable("python install modes",
		func(text string, venv string, automatic string) {
			mode, err := infra.ParsePythonMode(text)
			Expect(err).NotTo(HaveOccurred())
			minifi.Options.Python = mode

			Expect(minifi.Deploy(ctx)).To(Succeed())

			props := file(confDir + "/minifi.properties")
			if venv != "" {
				Expect(props).To(ContainSubstring("nifi.python.virtualenv.directory=/opt/minifi/minifi-current/" + venv + "\n"))
			}
			Expect(props).To(ContainSubstring("nifi.python.install.packages.automatically=" + automatic + "\n"))
		},
		Entry("system packages", "with required python packages", "", "false"),
		Entry("virtualenv", "with a pre-created virtualenv", "venv", "true"),
		Entry("virtualenv with packages", "with a pre-created virtualenv containing the required python packages", "venv-with-langchain", "false"),
		Entry("inline dependencies", "using inline defined Python dependencies to install packages", "venv", "true"),
	)

	It("rejects unknown python install modes", func() {
		_, err := infra.ParsePythonMode("with conda")
		Expect(err).To(HaveOccurred())
	})

	It("removes config.yml before start when the flow comes from C2", func() {
		minifi.UseFlowConfigFromURL("http://minifi-c2-server-" + scenarioID + ":10090")

		Expect(minifi.Deploy(ctx)).To(Succeed())

		fc, _ := rt.Container(name)
		Expect(fc.Spec.Entrypoint()).To(Equal([]string{"/bin/sh", "-c", "rm -f " + confDir + "/config.yml && ./bin/minifi.sh run"}))
		_, ok := rt.File(name, confDir+"/config.yml")
		Expect(ok).To(BeFalse())
		Expect(file(confDir + "/minifi.properties")).To(ContainSubstring("nifi.c2.flow.url=http://minifi-c2-server-feature-1:10090/c2/config?class=minifi-test-class\n"))
	})

	It("injects client certificates once ssl is set up", func() {
		minifi.EnableC2WithSSL("https://minifi-c2-server-" + scenarioID + ":10090")

		Expect(minifi.Deploy(ctx)).To(Succeed())

		Expect(file("/tmp/resources/root_ca.crt")).To(ContainSubstring("BEGIN CERTIFICATE"))
		Expect(file("/tmp/resources/minifi_client.key")).To(ContainSubstring("PRIVATE KEY"))
		props := file(confDir + "/minifi.properties")
		Expect(props).To(ContainSubstring("nifi.c2.rest.url=https://minifi-c2-server-feature-1:10090/c2/config/heartbeat\n"))
		Expect(props).To(ContainSubstring("nifi.remote.input.secure=true\n"))
	})

	It("lists every metrics publisher once", func() {
		minifi.EnablePrometheus(false)
		minifi.EnableLogMetricsPublisher()
		minifi.EnablePrometheus(false)

		Expect(minifi.Deploy(ctx)).To(Succeed())

		Expect(file(confDir + "/minifi.properties")).To(ContainSubstring("nifi.metrics.publisher.class=PrometheusMetricsPublisher,LogMetricsPublisher\n"))
		Expect(minifi.Ports).To(HaveKeyWithValue(infra.PrometheusMetricsPort, infra.PrometheusMetricsPort))
	})

	It("times out when the flow controller never starts", func() {
		delete(rt.StartLogs, name)

		err := minifi.Deploy(ctx)

		Expect(srvErrors.IsConditionTimeoutError(err)).To(BeTrue())
	})

	It("does not inject files twice when deployed again after clean up", func() {
		Expect(minifi.Deploy(ctx)).To(Succeed())
		Expect(minifi.CleanUp(ctx)).To(Succeed())

		Expect(minifi.Deploy(ctx)).To(Succeed())

		fc, _ := rt.Container(name)
		Expect(fc.Spec.Files()).To(HaveLen(3))
	})
})
