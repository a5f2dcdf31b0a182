// Package config loads service configuration from defaults, an optional
// YAML file, and AGENTMESH_* environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentmesh/agentmesh/types"
)

// Config is the root configuration of the agentmesh service.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Agents       AgentsConfig       `yaml:"agents"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Tools        ToolsConfig        `yaml:"tools"`
	Events       EventsConfig       `yaml:"events"`
	Log          LogConfig          `yaml:"log"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AgentsConfig holds the remote agent endpoints. MultiExecutorURL is
// optional; when empty, parallel groups fall back to concurrent single-task
// executor calls.
type AgentsConfig struct {
	PlannerURL       string        `yaml:"planner_url"`
	ExecutorURL      string        `yaml:"executor_url"`
	MultiExecutorURL string        `yaml:"multi_executor_url"`
	VerifierURL      string        `yaml:"verifier_url"`
	CriticURL        string        `yaml:"critic_url"`
	Timeout          time.Duration `yaml:"timeout"`
}

type OrchestratorConfig struct {
	MaxConcurrency int  `yaml:"max_concurrency"`
	SkipCritique   bool `yaml:"skip_critique"`
}

// ToolsConfig selects the tool catalog. CatalogURL takes precedence over the
// static list when both are set.
type ToolsConfig struct {
	CatalogURL string                 `yaml:"catalog_url"`
	Static     []types.ToolDescriptor `yaml:"static"`
}

type EventsConfig struct {
	CollectorURL string `yaml:"collector_url"`
	BufferSize   int    `yaml:"buffer_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    300 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Agents: AgentsConfig{
			Timeout: 120 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrency: 5,
		},
		Events: EventsConfig{
			BufferSize: 256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "agentmesh",
			SampleRate:  1.0,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path when
// path is non-empty, and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides individual fields from AGENTMESH_* variables. Unset
// variables leave the current value untouched.
func (c *Config) applyEnv() {
	envString("AGENTMESH_PLANNER_URL", &c.Agents.PlannerURL)
	envString("AGENTMESH_EXECUTOR_URL", &c.Agents.ExecutorURL)
	envString("AGENTMESH_MULTI_EXECUTOR_URL", &c.Agents.MultiExecutorURL)
	envString("AGENTMESH_VERIFIER_URL", &c.Agents.VerifierURL)
	envString("AGENTMESH_CRITIC_URL", &c.Agents.CriticURL)
	envDuration("AGENTMESH_AGENT_TIMEOUT", &c.Agents.Timeout)

	envInt("AGENTMESH_HTTP_PORT", &c.Server.HTTPPort)
	envInt("AGENTMESH_MAX_CONCURRENCY", &c.Orchestrator.MaxConcurrency)
	envBool("AGENTMESH_SKIP_CRITIQUE", &c.Orchestrator.SkipCritique)

	envString("AGENTMESH_TOOL_CATALOG_URL", &c.Tools.CatalogURL)
	envString("AGENTMESH_EVENT_COLLECTOR_URL", &c.Events.CollectorURL)

	envString("AGENTMESH_LOG_LEVEL", &c.Log.Level)
	envString("AGENTMESH_LOG_FORMAT", &c.Log.Format)

	envBool("AGENTMESH_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envString("AGENTMESH_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.Server.HTTPPort)
	}
	if c.Agents.PlannerURL == "" {
		return fmt.Errorf("agents.planner_url is required")
	}
	if c.Agents.ExecutorURL == "" {
		return fmt.Errorf("agents.executor_url is required")
	}
	if c.Agents.VerifierURL == "" {
		return fmt.Errorf("agents.verifier_url is required")
	}
	if c.Agents.CriticURL == "" && !c.Orchestrator.SkipCritique {
		return fmt.Errorf("agents.critic_url is required unless orchestrator.skip_critique is set")
	}
	if c.Orchestrator.MaxConcurrency <= 0 {
		return fmt.Errorf("orchestrator.max_concurrency must be positive")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be in [0, 1]")
	}
	return nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
