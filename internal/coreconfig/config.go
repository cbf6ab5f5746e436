// Package coreconfig defines the configuration surface for the
// orchestration core (spec §6.3), following the teacher lineage's
// nested-struct-plus-YAML convention rather than flat environment
// variables or a flags package.
package coreconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the orchestration core.
// All keys are optional; Defaults() fills in the documented defaults.
type Config struct {
	EventStore EventStoreConfig `yaml:"event_store"`
	Harness    HarnessConfig    `yaml:"harness"`
	LLM        LLMConfig        `yaml:"llm"`
	Tool       ToolConfig       `yaml:"tool"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	Trace      TraceConfig      `yaml:"trace"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EventStoreConfig configures the durable event log.
type EventStoreConfig struct {
	// DatabaseURL is the location of the event log and version store.
	DatabaseURL string `yaml:"database_url"`

	// QueryLimitMax caps single-page queries (default 1000).
	QueryLimitMax int `yaml:"query_limit_max"`
}

// HarnessConfig configures per-profile step budgets.
type HarnessConfig struct {
	// DefaultMaxSteps maps profile name ("worker", "conductor",
	// "subharness") to its default step budget.
	DefaultMaxSteps map[string]int `yaml:"default_max_steps"`
}

// LLMConfig configures model-call behavior shared across profiles.
type LLMConfig struct {
	// CallTimeoutMS is the hard timeout per LLM call.
	CallTimeoutMS int `yaml:"call_timeout_ms"`

	// Providers lists configured providers in failover priority order.
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig names one configured LLM provider and its default model.
type ProviderConfig struct {
	Name         string `yaml:"name"` // anthropic|openai|bedrock|venice
	DefaultModel string `yaml:"default_model"`
}

// ToolConfig configures tool execution defaults.
type ToolConfig struct {
	// DefaultTimeoutMS is the default per-tool timeout.
	DefaultTimeoutMS int `yaml:"default_timeout_ms"`
}

// WatcherConfig controls the escalation-only watcher actor (§9.2 Open
// Questions). Disabled by default; must never drive normal progression.
type WatcherConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TraceConfig configures the trace plane's payload truncation and
// redaction.
type TraceConfig struct {
	// PayloadBounds maps "input", "output", "system_context" to their
	// truncation size in bytes (default 4-16 KB). cmd/choirosd only
	// checks that the map is non-empty, to turn on the JSONL/OTel trace
	// sink; the harness clips trace payloads at its own fixed 4096-byte
	// bound and does not read these sizes.
	PayloadBounds map[string]int `yaml:"payload_bounds"`

	// RedactedKeys lists additional keys to scrub beyond the built-in
	// defaults (api_key, authorization, token, password). No component
	// reads this list: the log and trace redactors use only their
	// built-in key sets.
	RedactedKeys []string `yaml:"redacted_keys"`
}

// MetricsConfig configures the Prometheus exposition endpoint that
// cmd/choirosd serves for the internal/metrics instruments.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures internal/corelog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a Config populated with the documented defaults.
func Defaults() Config {
	return Config{
		EventStore: EventStoreConfig{QueryLimitMax: 1000},
		Harness: HarnessConfig{
			DefaultMaxSteps: map[string]int{
				"worker":     12,
				"conductor":  3,
				"subharness": 6,
			},
		},
		LLM: LLMConfig{CallTimeoutMS: 60_000},
		Tool: ToolConfig{DefaultTimeoutMS: 30_000},
		Trace: TraceConfig{
			PayloadBounds: map[string]int{
				"input":          16 * 1024,
				"output":         16 * 1024,
				"system_context": 4 * 1024,
			},
			RedactedKeys: []string{"api_key", "authorization", "token", "password"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads and parses a YAML config file, merging it over Defaults().
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// MaxStepsFor returns the configured step budget for a harness profile
// name, falling back to the built-in default when unset.
func (c Config) MaxStepsFor(profile string) int {
	if v, ok := c.Harness.DefaultMaxSteps[profile]; ok && v > 0 {
		return v
	}
	d := Defaults()
	return d.Harness.DefaultMaxSteps[profile]
}

// CallTimeout returns the configured LLM call timeout as a Duration.
func (c Config) CallTimeout() time.Duration {
	if c.LLM.CallTimeoutMS <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.LLM.CallTimeoutMS) * time.Millisecond
}

// ToolTimeout returns the configured default tool timeout as a Duration.
func (c Config) ToolTimeout() time.Duration {
	if c.Tool.DefaultTimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Tool.DefaultTimeoutMS) * time.Millisecond
}
