package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/internal/config"
)

const envPrefix = "FLOWHARNESS"

// NewRootCommand wires the subcommands to one configuration. Flags can also
// be set through FLOWHARNESS_<FLAG> environment variables.
func NewRootCommand(cfg *config.Configuration) *cobra.Command {
	root := &cobra.Command{
		Use:           "flowharness",
		Short:         "BDD integration tests for the MiNiFi C++ agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: cobrautil.CommandStack(
			bindEnvironment,
			func(cmd *cobra.Command, _ []string) error {
				applyLegacyEnvironment(cmd, cfg)
				return nil
			},
			func(_ *cobra.Command, _ []string) error {
				return setupLogging(cfg)
			},
		),
	}
	root.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: console or json")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")

	root.AddCommand(NewRunCommand(cfg), NewImagesCommand(cfg), NewReportCommand(cfg))
	return root
}

func bindEnvironment(cmd *cobra.Command, _ []string) error {
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cobraflags.PresetRequiredFlags(envPrefix, make(map[*pflag.Flag]bool), cmd)
	return nil
}

// applyLegacyEnvironment honours the variables of the docker based test
// setup unless the matching flag was given.
func applyLegacyEnvironment(cmd *cobra.Command, cfg *config.Configuration) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if v, ok := os.LookupEnv("MINIFI_TAG_PREFIX"); ok && !changed("agent-tag-prefix") {
		cfg.Agent.TagPrefix = v
	}
	if v, ok := os.LookupEnv("MINIFI_VERSION"); ok && !changed("agent-version") {
		cfg.Agent.Version = v
	}
	if v, ok := os.LookupEnv("MINIFI_FIPS"); ok && !changed("fips") {
		if fips, err := strconv.ParseBool(v); err == nil {
			cfg.Agent.FIPS = fips
		}
	}
	if v, ok := os.LookupEnv("TEST_DIRECTORY"); ok && !changed("resource-dir") {
		cfg.Harness.ResourceDir = v
	}
}

func setupLogging(cfg *config.Configuration) error {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.LogFormat == "json" {
		zapCfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log-level %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = level

	logger, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return nil
}
