// Package config defines the configuration structure for the flow harness.
//
// Configuration is organized into logical sections and uses code generation
// via optgen to create functional option helpers.
//
// # Configuration Structure
//
//	Configuration
//	├── Harness        - Feature selection and scenario behavior
//	├── Engine         - Container engine selection
//	├── Agent          - Agent image and startup settings
//	├── NiFi           - NiFi image and startup settings
//	├── C2             - Embedded C2 server
//	├── Report         - Run report export
//	├── LogFormat      - Logging format
//	└── LogLevel       - Logging verbosity
//
// # Harness Configuration
//
//	┌────────────────┬─────────────┬──────────────────────────────────────────┐
//	│ Field          │ Default     │ Description                              │
//	├────────────────┼─────────────┼──────────────────────────────────────────┤
//	│ Tags           │ ""          │ Godog tag expression                     │
//	│ Format         │ "pretty"    │ Godog output format                      │
//	│ ResourceDir    │ "resources" │ Host resources bound into containers     │
//	│ DataFolder     │ ""          │ Run journal folder, in-memory when empty │
//	│ KeepContainers │ false       │ Skip container cleanup after scenarios   │
//	│ StopOnFailure  │ false       │ Stop the run at the first failure        │
//	│ Randomize      │ 0           │ Scenario order seed, -1 for random       │
//	└────────────────┴─────────────┴──────────────────────────────────────────┘
//
// # Engine Configuration
//
//	┌──────────────┬───────────────────────────────────────────┬───────────────────────┐
//	│ Field        │ Default                                   │ Description           │
//	├──────────────┼───────────────────────────────────────────┼───────────────────────┤
//	│ Kind         │ "podman"                                  │ "podman" or "docker"  │
//	│ PodmanSocket │ "unix:///run/user/1000/podman/podman.sock"│ Podman API socket     │
//	└──────────────┴───────────────────────────────────────────┴───────────────────────┘
//
// # Agent Configuration
//
//	┌────────────────┬─────────┬───────────────────────────────────────────────┐
//	│ Field          │ Default │ Description                                   │
//	├────────────────┼─────────┼───────────────────────────────────────────────┤
//	│ Image          │ ""      │ Explicit agent image, overrides tag and prefix│
//	│ TagPrefix      │ ""      │ MINIFI_TAG_PREFIX                             │
//	│ Version        │ ""      │ MINIFI_VERSION                                │
//	│ FIPS           │ false   │ MINIFI_FIPS, enables FIPS mode in the agent   │
//	│ ConfigFormat   │ "yaml"  │ Flow document format: "yaml" or "json"        │
//	│ StartupTimeout │ 60s     │ Wait for "Starting Flow Controller"           │
//	└────────────────┴─────────┴───────────────────────────────────────────────┘
//
// Without Image or Version the agent image is "apacheminificpp:behave".
//
// # Code Generation
//
//	//go:generate go run github.com/ecordell/optgen -output zz_generated.configuration.go . Configuration
//
// Generated helpers include NewConfigurationWithOptionsAndDefaults, the
// With<Section> options and DebugMap.
//
// # Debug Logging
//
//	zap.S().Infow("configuration loaded", "config", cfg.DebugMap())
package config
