// Package config loads the relay's settings from an optional YAML file.
//
// Values may reference environment variables as ${VAR_NAME}:
//
//	pools:
//	  a:
//	    name: c
//	    listen: "${RELAY_ADDR_A}"
//	  b:
//	    name: go
//	    listen: "127.0.0.1:8080"
//	websocket:
//	  enabled: false  # raw TCP peers only
//	agent:
//	  tick_budget: 10
//	  write_timeout: "5s"
//	logging:
//	  level: info   # debug, info, warn, error
//	  format: text  # text, json
//
// Keys left out of the file keep their Default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omochice/bridge-chat/internal/chat"
)

// Default listen addresses of the two pools.
const (
	DefaultAddrA = "127.0.0.1:8081"
	DefaultAddrB = "127.0.0.1:8080"
)

// Config is the complete relay configuration.
type Config struct {
	Pools     PoolsConfig     `yaml:"pools"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Agent     AgentConfig     `yaml:"agent"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PoolsConfig holds the two sides of the bridge.
type PoolsConfig struct {
	A PoolConfig `yaml:"a"`
	B PoolConfig `yaml:"b"`
}

// PoolConfig names a pool and the address its peers connect to.
type PoolConfig struct {
	Name   string `yaml:"name"`
	Listen string `yaml:"listen"`
}

// WebSocketConfig controls WebSocket upgrades on the pool listeners. Off by
// default: with it on, a raw peer whose first line is an HTTP GET request
// line is taken for a WebSocket client.
type WebSocketConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AgentConfig holds per-connection settings.
type AgentConfig struct {
	TickBudget   int           `yaml:"tick_budget"`
	WriteTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	WriteTimeoutRaw string `yaml:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Pools: PoolsConfig{
			A: PoolConfig{Name: "c", Listen: DefaultAddrA},
			B: PoolConfig{Name: "go", Listen: DefaultAddrB},
		},
		Agent:   AgentConfig{TickBudget: chat.DefaultTickBudget},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the file at path over the defaults, expands environment
// variables, parses durations and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or with
// nothing when it is unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate returns the first problem found in c.
func (c *Config) Validate() error {
	if c.Pools.A.Listen == "" {
		return errors.New("pools.a.listen is required")
	}
	if c.Pools.B.Listen == "" {
		return errors.New("pools.b.listen is required")
	}
	if c.Pools.A.Listen == c.Pools.B.Listen {
		return fmt.Errorf("pools.a.listen and pools.b.listen must differ, both are %q", c.Pools.A.Listen)
	}
	if c.Pools.A.Name == "" || c.Pools.B.Name == "" {
		return errors.New("pools.a.name and pools.b.name are required")
	}
	if c.Agent.TickBudget < 1 {
		return fmt.Errorf("agent.tick_budget must be positive, got %d", c.Agent.TickBudget)
	}
	if c.Agent.WriteTimeout < 0 {
		return fmt.Errorf("agent.write_timeout must not be negative, got %s", c.Agent.WriteTimeout)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}

func parseDurations(cfg *Config) error {
	if cfg.Agent.WriteTimeoutRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(cfg.Agent.WriteTimeoutRaw)
	if err != nil {
		return fmt.Errorf("parsing write_timeout %q: %w", cfg.Agent.WriteTimeoutRaw, err)
	}
	cfg.Agent.WriteTimeout = d
	return nil
}
