package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

//go:generate go run github.com/ecordell/optgen -output zz_generated.configuration.go . Configuration

type Configuration struct {
	Harness   Harness `debugmap:"visible"`
	Engine    Engine  `debugmap:"visible"`
	Agent     Agent   `debugmap:"visible"`
	NiFi      NiFi    `debugmap:"visible"`
	C2        C2      `debugmap:"visible"`
	Report    Report  `debugmap:"visible"`
	LogFormat string  `debugmap:"visible" default:"console" validate:"oneof=console json"`
	LogLevel  string  `debugmap:"visible" default:"debug" validate:"oneof=debug info warn error"`
}

type Harness struct {
	Tags           string `debugmap:"visible"`
	Format         string `debugmap:"visible" default:"pretty" validate:"oneof=pretty progress cucumber junit events"`
	ResourceDir    string `debugmap:"visible" default:"resources"`
	DataFolder     string `debugmap:"visible"`
	KeepContainers bool   `debugmap:"visible" default:"false"`
	StopOnFailure  bool   `debugmap:"visible" default:"false"`
	Randomize      int64  `debugmap:"visible" default:"0"`
}

type Engine struct {
	Kind         string `debugmap:"visible" default:"podman" validate:"oneof=podman docker"`
	PodmanSocket string `debugmap:"visible" default:"unix:///run/user/1000/podman/podman.sock"`
}

type Agent struct {
	Image          string        `debugmap:"visible"`
	TagPrefix      string        `debugmap:"visible"`
	Version        string        `debugmap:"visible"`
	FIPS           bool          `debugmap:"visible" default:"false"`
	ConfigFormat   string        `debugmap:"visible" default:"yaml" validate:"oneof=yaml json"`
	StartupTimeout time.Duration `debugmap:"visible" default:"60s"`
}

type NiFi struct {
	Version        string        `debugmap:"visible" default:"2.7.2"`
	StartupTimeout time.Duration `debugmap:"visible" default:"300s"`
}

type C2 struct {
	Embedded bool `debugmap:"visible" default:"false"`
	Port     int  `debugmap:"visible" default:"10090" validate:"min=1,max=65535"`
}

type Report struct {
	XLSXPath string `debugmap:"visible"`
}

// AgentImage returns the agent image reference. An explicit image wins over the tag prefix and version.
func (a Agent) AgentImage() string {
	if a.Image != "" {
		return a.Image
	}
	if a.Version != "" {
		return "apacheminificpp:" + a.TagPrefix + a.Version
	}
	return "apacheminificpp:behave"
}

// Validate checks field constraints declared with validate tags.
func (c *Configuration) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Agent.StartupTimeout <= 0 {
		return fmt.Errorf("invalid agent startup timeout: %s", c.Agent.StartupTimeout)
	}
	return nil
}
