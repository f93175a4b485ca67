package steps

import (
	"strings"

	"github.com/cucumber/godog"

	"github.com/kubev2v/flowharness/internal/flow"
	"github.com/kubev2v/flowharness/internal/infra"
)

func (s *steps) registerConfiguration(ctx *godog.ScenarioContext) {
	ctx.Step(`^MiNiFi configuration "([^"]*)" is set to "([^"]*)"$`, s.configurationIsSet)
	ctx.Step(`^MiNiFi configuration "([^"]*)" is set to "([^"]*)" in the "([^"]*)" MiNiFi$`, s.namedConfigurationIsSet)
	ctx.Step(`^log metrics publisher is enabled in MiNiFi$`, s.logMetricsPublisherIsEnabled)
	ctx.Step(`^log property "([^"]*)" is set to "([^"]*)"$`, s.logPropertyIsSet)
	ctx.Step(`^the MiNiFi flow config is written in (YAML|JSON) format$`, s.flowConfigFormat)
	ctx.Step(`^provenance is enabled in MiNiFi$`, s.provenanceIsEnabled)
	ctx.Step(`^the controller socket is enabled in MiNiFi$`, s.controllerSocketIsEnabled)
	ctx.Step(`^MiNiFi runs in FIPS mode$`, s.fipsMode)
	ctx.Step(`^python with langchain is installed on the MiNiFi agent (.+)$`, s.pythonIsInstalled)
	ctx.Step(`^the example MiNiFi python processors are present$`, s.examplePythonProcessors)
	ctx.Step(`^a LlamaCpp model is present on the MiNiFi agent$`, s.llamaModel)
}

func (s *steps) configurationIsSet(key, value string) error {
	s.minifi("").SetProperty(key, value)
	return nil
}

func (s *steps) namedConfigurationIsSet(key, value, name string) error {
	s.minifi(name).SetProperty(key, value)
	return nil
}

func (s *steps) logMetricsPublisherIsEnabled() error {
	s.minifi("").EnableLogMetricsPublisher()
	return nil
}

func (s *steps) logPropertyIsSet(key, value string) error {
	s.minifi("").SetLogProperty(key, value)
	return nil
}

func (s *steps) flowConfigFormat(format string) error {
	f, err := flow.ParseFormat(strings.ToLower(format))
	if err != nil {
		return err
	}
	s.minifi("").Options.ConfigFormat = f
	return nil
}

func (s *steps) provenanceIsEnabled() error {
	s.minifi("").EnableProvenance()
	return nil
}

func (s *steps) controllerSocketIsEnabled() error {
	s.minifi("").EnableControllerSocket()
	return nil
}

func (s *steps) fipsMode() error {
	s.minifi("").Options.FIPS = true
	return nil
}

func (s *steps) pythonIsInstalled(mode string) error {
	m, err := infra.ParsePythonMode(mode)
	if err != nil {
		return err
	}
	s.minifi("").Options.Python = m
	return nil
}

func (s *steps) examplePythonProcessors() error {
	s.minifi("").Options.ExamplePythonProcessors = true
	return nil
}

func (s *steps) llamaModel() error {
	s.minifi("").Options.LlamaModel = true
	return nil
}
