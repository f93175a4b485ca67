package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/internal/config"
	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/images"
	"github.com/kubev2v/flowharness/internal/report"
	"github.com/kubev2v/flowharness/internal/scenario"
	"github.com/kubev2v/flowharness/internal/steps"
	"github.com/kubev2v/flowharness/internal/store"
	"github.com/kubev2v/flowharness/internal/store/migrations"
)

const (
	defaultFeaturesDir = "features"
	journalFile        = "flowharness.duckdb"
)

func NewRunCommand(cfg *config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [features...]",
		Short: "Run feature files against the agent",
		Long: `Run executes the scenarios of the given feature files or directories
(default: ./features). Every scenario gets its own network, services and
root CA; its outcome and container logs go to the run journal.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return validateConfiguration(cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, args)
		},
	}

	registerHarnessFlags(cmd.Flags(), cfg)
	registerEngineFlags(cmd.Flags(), cfg)
	registerAgentFlags(cmd.Flags(), cfg)
	registerNiFiFlags(cmd.Flags(), cfg)
	registerC2Flags(cmd.Flags(), cfg)

	return cmd
}

func registerHarnessFlags(flags *pflag.FlagSet, cfg *config.Configuration) {
	flags.StringVar(&cfg.Harness.Tags, "tags", cfg.Harness.Tags, "Tag expression selecting the scenarios")
	flags.StringVar(&cfg.Harness.Format, "format", cfg.Harness.Format, "Output format: pretty, progress, cucumber, junit or events")
	flags.StringVar(&cfg.Harness.ResourceDir, "resource-dir", cfg.Harness.ResourceDir, "Directory of host resources bound into containers")
	flags.StringVar(&cfg.Harness.DataFolder, "data-folder", cfg.Harness.DataFolder, "Folder of the run journal, in memory when empty")
	flags.BoolVar(&cfg.Harness.KeepContainers, "keep-containers", cfg.Harness.KeepContainers, "Keep the containers of finished scenarios")
	flags.BoolVar(&cfg.Harness.StopOnFailure, "stop-on-failure", cfg.Harness.StopOnFailure, "Stop at the first failed scenario")
	flags.Int64Var(&cfg.Harness.Randomize, "randomize", cfg.Harness.Randomize, "Scenario order seed, -1 picks a random seed")
}

// registerEngineFlags is shared with the images command.
func registerEngineFlags(flags *pflag.FlagSet, cfg *config.Configuration) {
	flags.StringVar(&cfg.Engine.Kind, "engine", cfg.Engine.Kind, "Container engine: podman or docker")
	flags.StringVar(&cfg.Engine.PodmanSocket, "podman-socket", cfg.Engine.PodmanSocket, "Podman API socket")
}

func registerAgentFlags(flags *pflag.FlagSet, cfg *config.Configuration) {
	flags.StringVar(&cfg.Agent.Image, "agent-image", cfg.Agent.Image, "Agent image, overrides tag prefix and version")
	flags.StringVar(&cfg.Agent.TagPrefix, "agent-tag-prefix", cfg.Agent.TagPrefix, "Agent image tag prefix")
	flags.StringVar(&cfg.Agent.Version, "agent-version", cfg.Agent.Version, "Agent version")
	flags.BoolVar(&cfg.Agent.FIPS, "fips", cfg.Agent.FIPS, "Run the agent in FIPS mode")
	flags.StringVar(&cfg.Agent.ConfigFormat, "flow-config-format", cfg.Agent.ConfigFormat, "Agent flow format: yaml or json")
	flags.DurationVar(&cfg.Agent.StartupTimeout, "agent-startup-timeout", cfg.Agent.StartupTimeout, "Wait for the agent flow controller to start")
}

func registerNiFiFlags(flags *pflag.FlagSet, cfg *config.Configuration) {
	flags.StringVar(&cfg.NiFi.Version, "nifi-version", cfg.NiFi.Version, "NiFi image version")
	flags.DurationVar(&cfg.NiFi.StartupTimeout, "nifi-startup-timeout", cfg.NiFi.StartupTimeout, "Wait for NiFi to start")
}

func registerC2Flags(flags *pflag.FlagSet, cfg *config.Configuration) {
	flags.BoolVar(&cfg.C2.Embedded, "c2-embedded", cfg.C2.Embedded, "Serve C2 from the harness instead of a C2 server container")
	flags.IntVar(&cfg.C2.Port, "c2-port", cfg.C2.Port, "Port of the embedded C2 server")
}

func validateConfiguration(cfg *config.Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Harness.Randomize < -1 {
		return fmt.Errorf("invalid randomize seed: %d", cfg.Harness.Randomize)
	}
	if cfg.Harness.ResourceDir == "" {
		return errors.New("resource-dir cannot be empty")
	}
	return nil
}

// openJournal opens the run journal of the data folder, or an in-memory one.
func openJournal(ctx context.Context, dataFolder string) (*store.Store, error) {
	path := store.InMemory
	if dataFolder != "" {
		path = filepath.Join(dataFolder, journalFile)
	}
	db, err := store.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run journal: %w", err)
	}
	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate run journal: %w", err)
	}
	return store.NewStore(db), nil
}

func run(ctx context.Context, cfg *config.Configuration, paths []string) error {
	log := zap.S().Named("run")
	log.Infow("configuration loaded", "config", cfg.DebugMap())

	if len(paths) == 0 {
		paths = []string{defaultFeaturesDir}
	}

	rt, err := container.NewRuntime(ctx, cfg.Engine)
	if err != nil {
		return err
	}
	journal, err := openJournal(ctx, cfg.Harness.DataFolder)
	if err != nil {
		return err
	}
	defer journal.Close()

	imgs := images.NewStore(rt, cfg.Agent, cfg.Harness.ResourceDir)
	harness := scenario.NewHarness(cfg, rt, imgs, journal)

	opts := godog.Options{
		Format:         cfg.Harness.Format,
		Paths:          paths,
		Tags:           cfg.Harness.Tags,
		StopOnFailure:  cfg.Harness.StopOnFailure,
		Randomize:      cfg.Harness.Randomize,
		Strict:         true,
		Output:         colors.Colored(os.Stdout),
		DefaultContext: ctx,
	}
	suite := godog.TestSuite{
		Name:                "flowharness",
		ScenarioInitializer: steps.InitializeScenario(harness),
		Options:             &opts,
	}
	features, err := suite.RetrieveFeatures()
	if err != nil {
		return fmt.Errorf("failed to parse features: %w", err)
	}
	for _, f := range features {
		harness.IndexFeature(f.GherkinDocument)
	}

	if err := harness.StartRun(ctx); err != nil {
		return err
	}
	status := suite.Run()

	if err := harness.FinishRun(ctx, status); err != nil {
		log.Errorw("failed to finish run", "run", harness.RunID, "error", err)
	}
	if err := printSummary(ctx, journal, harness); err != nil {
		log.Errorw("failed to print run summary", "run", harness.RunID, "error", err)
	}

	if status != 0 {
		return fmt.Errorf("run %s failed with status %d", harness.RunID, status)
	}
	return nil
}

func printSummary(ctx context.Context, journal *store.Store, harness *scenario.Harness) error {
	r, err := journal.Runs().Get(ctx, harness.RunID)
	if err != nil {
		return err
	}
	results, err := journal.Scenarios().ListByRun(ctx, harness.RunID)
	if err != nil {
		return err
	}
	return report.Summary(os.Stdout, *r, results)
}
