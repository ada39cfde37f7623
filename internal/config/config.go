// Package config loads the tool configuration from YAML with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultConfigRelPath = ".apiagent/config.yaml"

type OracleConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// CoordinationConfig holds the arbitration thresholds. They materially
// change behavior and stay tunable rather than hard-coded.
type CoordinationConfig struct {
	CoordinatorMinConfidence float64 `yaml:"coordinator_min_confidence"`
	MeshConfidenceThreshold  float64 `yaml:"mesh_confidence_threshold"`
	MeshSwitchMargin         float64 `yaml:"mesh_switch_margin"`
	MinSuitability           float64 `yaml:"min_suitability"`
}

type HTTPConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type HistoryConfig struct {
	Capacity int    `yaml:"capacity"`
	Database string `yaml:"database"`
}

type AgentConfig struct {
	EndpointBudget int    `yaml:"endpoint_budget"`
	DefaultBaseURL string `yaml:"default_base_url"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Oracle       OracleConfig       `yaml:"oracle"`
	Coordination CoordinationConfig `yaml:"coordination"`
	HTTP         HTTPConfig         `yaml:"http"`
	History      HistoryConfig      `yaml:"history"`
	Agent        AgentConfig        `yaml:"agent"`
	Log          LogConfig          `yaml:"log"`
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		configPath = filepath.Join(home, defaultConfigRelPath)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// SetDefaults fills zero-valued fields. Load calls it before the file
// is parsed, so values the file sets explicitly, zero included, stay.
func (c *Config) SetDefaults() {
	if c.Oracle.BaseURL == "" {
		c.Oracle.BaseURL = "https://api.openai.com/v1"
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = "gpt-4o"
	}
	if c.Oracle.MaxTokens == 0 {
		c.Oracle.MaxTokens = 4096
	}
	if c.Oracle.Temperature == 0 {
		c.Oracle.Temperature = 0.2
	}
	if c.Coordination.CoordinatorMinConfidence == 0 {
		c.Coordination.CoordinatorMinConfidence = 0.4
	}
	if c.Coordination.MeshConfidenceThreshold == 0 {
		c.Coordination.MeshConfidenceThreshold = 0.65
	}
	if c.Coordination.MeshSwitchMargin == 0 {
		c.Coordination.MeshSwitchMargin = 0.1
	}
	if c.Coordination.MinSuitability == 0 {
		c.Coordination.MinSuitability = 0.4
	}
	if c.HTTP.TimeoutSeconds == 0 {
		c.HTTP.TimeoutSeconds = 30
	}
	if c.History.Capacity == 0 {
		c.History.Capacity = 10
	}
	if c.Agent.EndpointBudget == 0 {
		c.Agent.EndpointBudget = 50
	}
	if c.Agent.DefaultBaseURL == "" {
		c.Agent.DefaultBaseURL = "https://petstore.swagger.io"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks requirements shared by every command.
func (c *Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return errors.New("http.timeout_seconds must be positive")
	}
	if c.History.Capacity <= 0 {
		return errors.New("history.capacity must be positive")
	}
	if c.Agent.EndpointBudget <= 0 {
		return errors.New("agent.endpoint_budget must be positive")
	}
	return nil
}

// ValidateAsk enforces ask-specific requirements.
func (c *Config) ValidateAsk() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Oracle.APIKey) == "" {
		return errors.New("oracle.api_key cannot be empty")
	}
	return nil
}

func applyEnvOverrides(c *Config) {
	setString(&c.Oracle.APIKey, "APIAGENT_ORACLE_API_KEY")
	setString(&c.Oracle.BaseURL, "APIAGENT_ORACLE_BASE_URL")
	setString(&c.Oracle.Model, "APIAGENT_ORACLE_MODEL")
	setInt(&c.Oracle.MaxTokens, "APIAGENT_ORACLE_MAX_TOKENS")
	setFloat(&c.Oracle.Temperature, "APIAGENT_ORACLE_TEMPERATURE")
	setFloat(&c.Coordination.CoordinatorMinConfidence, "APIAGENT_COORDINATOR_MIN_CONFIDENCE")
	setFloat(&c.Coordination.MeshConfidenceThreshold, "APIAGENT_MESH_CONFIDENCE_THRESHOLD")
	setFloat(&c.Coordination.MeshSwitchMargin, "APIAGENT_MESH_SWITCH_MARGIN")
	setFloat(&c.Coordination.MinSuitability, "APIAGENT_MIN_SUITABILITY")
	setInt(&c.HTTP.TimeoutSeconds, "APIAGENT_HTTP_TIMEOUT_SECONDS")
	setInt(&c.History.Capacity, "APIAGENT_HISTORY_CAPACITY")
	setString(&c.History.Database, "APIAGENT_HISTORY_DATABASE")
	setInt(&c.Agent.EndpointBudget, "APIAGENT_ENDPOINT_BUDGET")
	setString(&c.Agent.DefaultBaseURL, "APIAGENT_DEFAULT_BASE_URL")
	setString(&c.Log.Level, "APIAGENT_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}
