package scenario_test

import (
	"context"
	"database/sql"
	"errors"
	"time"

	messages "github.com/cucumber/messages/go/v21"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/flowharness/internal/config"
	"github.com/kubev2v/flowharness/internal/container/containertest"
	"github.com/kubev2v/flowharness/internal/images"
	"github.com/kubev2v/flowharness/internal/infra"
	"github.com/kubev2v/flowharness/internal/models"
	"github.com/kubev2v/flowharness/internal/scenario"
	"github.com/kubev2v/flowharness/internal/store"
	"github.com/kubev2v/flowharness/internal/store/migrations"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

var _ = DescribeTable("ScenarioID",
	func(featureFile string, index int, expected string) {
		Expect(scenario.ScenarioID(featureFile, index)).To(Equal(expected))
	},
	Entry("first scenario", "features/core_functionality.feature", 0, "core_functionality-0"),
	Entry("later scenario", "/abs/path/c2.feature", 3, "c2-3"),
	Entry("dotted file name", "features/http.proxy.feature", 1, "http-1"),
)

var _ = Describe("Harness", func() {
	var (
		ctx     context.Context
		rt      *containertest.Runtime
		cfg     *config.Configuration
		harness *scenario.Harness
	)

	BeforeEach(func() {
		ctx = context.Background()
		rt = containertest.NewRuntime()
		cfg = config.NewConfigurationWithOptionsAndDefaults(
			config.WithAgent(config.Agent{Version: "1.0.0", ConfigFormat: "yaml", StartupTimeout: 300 * time.Millisecond}),
			config.WithHarness(config.Harness{ResourceDir: GinkgoT().TempDir()}),
			config.WithC2(config.C2{Port: 10090}),
		)
		rt.Images[cfg.Agent.AgentImage()] = []string{"/bin/sh -c #(nop) ENV MINIFI_VERSION=1.0.0"}
		harness = scenario.NewHarness(cfg, rt, images.NewStore(rt, cfg.Agent, cfg.Harness.ResourceDir), nil)
	})

	// Given a harness with a stale network left from an earlier run
	// When two scenarios of one feature start
	// Then each should get its own id and network
	// Given a feature of a plain scenario, a two row outline and a scenario in a rule
	// When only some of its scenarios start and out of order
	// Then each should be named after its position in the feature file
	It("names indexed scenarios after their position in the feature", func() {
		// Arrange
		harness.IndexFeature(&messages.GherkinDocument{
			Uri: "features/core.feature",
			Feature: &messages.Feature{Children: []*messages.FeatureChild{
				{Background: &messages.Background{Id: "bg"}},
				{Scenario: &messages.Scenario{Id: "plain"}},
				{Scenario: &messages.Scenario{Id: "outline", Examples: []*messages.Examples{
					{TableBody: []*messages.TableRow{{Id: "row-a"}, {Id: "row-b"}}},
				}}},
				{Rule: &messages.Rule{Children: []*messages.RuleChild{
					{Scenario: &messages.Scenario{Id: "ruled"}},
				}}},
			}},
		})

		// Act
		ruled, err := harness.Before(ctx, "features/core.feature", "ruled", "ruled")
		Expect(err).NotTo(HaveOccurred())
		rowB, err := harness.Before(ctx, "features/core.feature", "outline", "outline", "row-b")
		Expect(err).NotTo(HaveOccurred())
		plain, err := harness.Before(ctx, "features/core.feature", "plain", "plain")
		Expect(err).NotTo(HaveOccurred())

		// Assert
		Expect(ruled.ScenarioID).To(Equal("core-3"))
		Expect(rowB.ScenarioID).To(Equal("core-2"))
		Expect(plain.ScenarioID).To(Equal("core-0"))
	})

	It("numbers scenarios per feature and creates their networks", func() {
		// Arrange
		rt.Networks["core-0-net"] = true

		// Act
		first, err := harness.Before(ctx, "features/core.feature", "first")
		Expect(err).NotTo(HaveOccurred())
		second, err := harness.Before(ctx, "features/core.feature", "second")
		Expect(err).NotTo(HaveOccurred())
		other, err := harness.Before(ctx, "features/c2.feature", "other")
		Expect(err).NotTo(HaveOccurred())

		// Assert
		Expect(first.ScenarioID).To(Equal("core-0"))
		Expect(second.ScenarioID).To(Equal("core-1"))
		Expect(other.ScenarioID).To(Equal("c2-0"))
		Expect(rt.Networks).To(HaveKey("core-0-net"))
		Expect(rt.Networks).To(HaveKey("core-1-net"))
		Expect(first.RootCA).NotTo(BeNil())
		Expect(first.RootCA).NotTo(BeIdenticalTo(second.RootCA))
	})

	It("injects the scenario id into step text", func() {
		sc, err := harness.Before(ctx, "features/kafka.feature", "kafka")
		Expect(err).NotTo(HaveOccurred())

		Expect(sc.InjectScenarioID(`topic "test-${scenario_id}" on kafka-broker-${scenario_id}`)).
			To(Equal(`topic "test-kafka-0" on kafka-broker-kafka-0`))
		Expect(sc.InjectScenarioID("no placeholder")).To(Equal("no placeholder"))
	})

	It("creates the default agent once and finds it by name", func() {
		sc, err := harness.Before(ctx, "features/core.feature", "agent")
		Expect(err).NotTo(HaveOccurred())

		m := sc.GetOrCreateDefaultMinifiContainer()
		Expect(sc.GetOrCreateMinifiContainer(infra.DefaultMinifiName)).To(BeIdenticalTo(m))
		Expect(m.Name()).To(Equal("minifi-primary-core-0"))

		found, err := sc.GetMinifiContainer(infra.DefaultMinifiName)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeIdenticalTo(m))

		_, err = sc.GetMinifiContainer("minifi-secondary")
		Expect(srvErrors.IsContainerNotFoundError(err)).To(BeTrue())

		sc.Add("http-proxy", infra.NewHTTPProxy(sc.Env))
		_, err = sc.GetMinifiContainer("http-proxy")
		Expect(err).To(MatchError(ContainSubstring("not a minifi agent")))
		Expect(sc.Services()).To(HaveLen(2))
	})

	DescribeTable("C2 base url",
		func(embedded, ssl bool, expected string) {
			cfg.C2.Embedded = embedded
			sc, err := harness.Before(ctx, "features/c2.feature", "c2")
			Expect(err).NotTo(HaveOccurred())

			Expect(sc.C2BaseURL(ssl)).To(Equal(expected))
		},
		Entry("server container", false, false, "http://minifi-c2-server-c2-0:10090"),
		Entry("server container with ssl", false, true, "https://minifi-c2-server-c2-0:10090"),
		Entry("embedded server", true, false, "http://host.fake.internal:10090"),
	)

	// Given a scenario with a deployed agent
	// When the scenario ends
	// Then the agent and the network should be removed
	It("cleans up services and the network after the scenario", func() {
		// Arrange
		sc, err := harness.Before(ctx, "features/core.feature", "cleanup")
		Expect(err).NotTo(HaveOccurred())
		m := sc.GetOrCreateDefaultMinifiContainer()
		rt.StartLogs[m.Name()] = []string{"Starting Flow Controller"}
		Expect(sc.DeployAll(ctx)).To(Succeed())

		// Act
		err = harness.After(ctx, sc, nil)

		// Assert
		Expect(err).NotTo(HaveOccurred())
		fc, ok := rt.Container(m.Name())
		Expect(ok).To(BeTrue())
		Expect(fc.Removed).To(BeTrue())
		Expect(rt.Networks).NotTo(HaveKey("core-0-net"))
	})

	It("keeps containers when asked to", func() {
		cfg.Harness.KeepContainers = true
		sc, err := harness.Before(ctx, "features/core.feature", "keep")
		Expect(err).NotTo(HaveOccurred())
		m := sc.GetOrCreateDefaultMinifiContainer()
		rt.StartLogs[m.Name()] = []string{"Starting Flow Controller"}
		Expect(sc.DeployAll(ctx)).To(Succeed())

		Expect(harness.After(ctx, sc, nil)).To(Succeed())

		fc, _ := rt.Container(m.Name())
		Expect(fc.Removed).To(BeFalse())
		Expect(rt.Networks).To(HaveKey("core-0-net"))
	})

	It("reports a failed deploy with the service name", func() {
		sc, err := harness.Before(ctx, "features/core.feature", "failing")
		Expect(err).NotTo(HaveOccurred())
		m := sc.GetOrCreateDefaultMinifiContainer()
		rt.StartLogs[m.Name()] = []string{"Segmentation fault"}

		err = sc.DeployAll(ctx)

		Expect(err).To(MatchError(ContainSubstring("failed to deploy minifi-primary-core-0")))
	})

	Context("with a run journal", func() {
		var (
			db *sql.DB
			st *store.Store
		)

		BeforeEach(func() {
			var err error
			db, err = store.NewDB(store.InMemory)
			Expect(err).NotTo(HaveOccurred())
			Expect(migrations.Run(ctx, db)).To(Succeed())
			st = store.NewStore(db)
			harness = scenario.NewHarness(cfg, rt, images.NewStore(rt, cfg.Agent, cfg.Harness.ResourceDir), st)
		})

		AfterEach(func() {
			db.Close()
		})

		It("records the run, the scenario outcome and the container logs", func() {
			Expect(harness.StartRun(ctx)).To(Succeed())
			sc, err := harness.Before(ctx, "features/core.feature", "journaled")
			Expect(err).NotTo(HaveOccurred())
			m := sc.GetOrCreateDefaultMinifiContainer()
			rt.StartLogs[m.Name()] = []string{"Starting Flow Controller"}
			Expect(sc.DeployAll(ctx)).To(Succeed())

			Expect(harness.After(ctx, sc, errors.New("file not found in time"))).To(Succeed())
			Expect(harness.FinishRun(ctx, 1)).To(Succeed())

			run, err := st.Runs().Get(ctx, harness.RunID)
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Engine).To(Equal("fake"))
			Expect(run.Status).To(Equal(1))

			results, err := st.Scenarios().ListByRun(ctx, harness.RunID)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Status).To(Equal(models.ScenarioStatusFailed))
			Expect(results[0].Error).To(Equal("file not found in time"))

			logs, err := st.Logs().ListByScenario(ctx, harness.RunID, "core-0")
			Expect(err).NotTo(HaveOccurred())
			Expect(logs).To(HaveLen(1))
			Expect(logs[0].Logs).To(ContainSubstring("Starting Flow Controller"))
		})
	})
})
