// Package config loads cobot's YAML (or JSON/JSON5) configuration,
// resolving $include directives and ${VAR}/${VAR:-default} environment
// expansion before strict-decoding into Config.
package config

import (
	"time"
)

// Config is the top-level configuration file shape.
type Config struct {
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	Owner         OwnerConfig         `yaml:"owner"`
	Poll          PollConfig          `yaml:"poll"`
	Channels      ChannelsConfig      `yaml:"channels"`
	LLM           LLMConfig           `yaml:"llm"`
	Pairing       PairingConfig       `yaml:"pairing"`
	Lurker        LurkerConfig        `yaml:"lurker"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// WorkspaceConfig names the workspace root — the third source in the
// CLI-flag > env > config > default resolution chain.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// OwnerConfig bootstraps the first authorized user so the operator is
// never locked out behind their own pairing gate.
type OwnerConfig struct {
	ChannelType string `yaml:"channel_type"`
	SenderID    string `yaml:"sender_id"`
	SenderName  string `yaml:"sender_name"`
}

// PollConfig controls the orchestrator's outer loop cadence.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// PairingConfig names the pairing store's backing file and controls
// whether, and for which channels, the authorization gate runs.
// Enabled is a pointer so "not set in the file" (nil, gate runs) can be
// told apart from an explicit "enabled: false" (gate bypassed entirely).
type PairingConfig struct {
	StorePath    string              `yaml:"store_path"`
	Enabled      *bool               `yaml:"enabled"`
	SkipChannels []string            `yaml:"skip_channels"`
	OwnerIDs     map[string][]string `yaml:"owner_ids"`
}

// LurkerConfig controls the observer plugin's archival sinks and which
// channel_ids it watches. An empty Channels list observes every channel.
type LurkerConfig struct {
	Enabled  bool     `yaml:"enabled"`
	BaseDir  string   `yaml:"base_dir"`
	JSONL    bool     `yaml:"jsonl"`
	Markdown bool     `yaml:"markdown"`
	Channels []string `yaml:"channels"`
}

// LoggingConfig controls the slog handler built in main.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// ObservabilityConfig controls the optional metrics/tracing surface; both
// are no-ops unless explicitly enabled.
type ObservabilityConfig struct {
	MetricsAddr  string `yaml:"metrics_addr"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}
