package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Oracle.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("oracle base url = %q", cfg.Oracle.BaseURL)
	}
	if cfg.Oracle.MaxTokens != 4096 || cfg.Oracle.Temperature != 0.2 {
		t.Errorf("oracle = %+v", cfg.Oracle)
	}
	if cfg.Coordination.CoordinatorMinConfidence != 0.4 ||
		cfg.Coordination.MeshConfidenceThreshold != 0.65 ||
		cfg.Coordination.MeshSwitchMargin != 0.1 ||
		cfg.Coordination.MinSuitability != 0.4 {
		t.Errorf("coordination = %+v", cfg.Coordination)
	}
	if cfg.HTTP.TimeoutSeconds != 30 {
		t.Errorf("timeout = %d", cfg.HTTP.TimeoutSeconds)
	}
	if cfg.History.Capacity != 10 {
		t.Errorf("capacity = %d", cfg.History.Capacity)
	}
	if cfg.Agent.EndpointBudget != 50 {
		t.Errorf("budget = %d", cfg.Agent.EndpointBudget)
	}
	if cfg.Agent.DefaultBaseURL != "https://petstore.swagger.io" {
		t.Errorf("default base url = %q", cfg.Agent.DefaultBaseURL)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
oracle:
  api_key: sk-test
  model: test-model
coordination:
  mesh_confidence_threshold: 0.8
http:
  timeout_seconds: 5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Oracle.APIKey != "sk-test" || cfg.Oracle.Model != "test-model" {
		t.Errorf("oracle = %+v", cfg.Oracle)
	}
	if cfg.Coordination.MeshConfidenceThreshold != 0.8 {
		t.Errorf("threshold = %v", cfg.Coordination.MeshConfidenceThreshold)
	}
	if cfg.HTTP.TimeoutSeconds != 5 {
		t.Errorf("timeout = %d", cfg.HTTP.TimeoutSeconds)
	}
	// Untouched fields keep their defaults.
	if cfg.History.Capacity != 10 {
		t.Errorf("capacity = %d", cfg.History.Capacity)
	}
}

func TestExplicitZeroInFileIsHonored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "oracle:\n  temperature: 0\ncoordination:\n  coordinator_min_confidence: 0.0\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Defaults are applied before the file is parsed, so an explicit
	// zero in the file wins over the default.
	if cfg.Oracle.Temperature != 0 {
		t.Errorf("temperature = %v, want explicit 0 kept", cfg.Oracle.Temperature)
	}
	if cfg.Coordination.CoordinatorMinConfidence != 0 {
		t.Errorf("min confidence = %v, want explicit 0 kept", cfg.Coordination.CoordinatorMinConfidence)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.EndpointBudget != 50 {
		t.Errorf("budget = %d", cfg.Agent.EndpointBudget)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("oracle: [not, a, mapping"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APIAGENT_ORACLE_API_KEY", "env-key")
	t.Setenv("APIAGENT_HTTP_TIMEOUT_SECONDS", "12")
	t.Setenv("APIAGENT_MESH_SWITCH_MARGIN", "0.25")
	t.Setenv("APIAGENT_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Oracle.APIKey != "env-key" {
		t.Errorf("api key = %q", cfg.Oracle.APIKey)
	}
	if cfg.HTTP.TimeoutSeconds != 12 {
		t.Errorf("timeout = %d", cfg.HTTP.TimeoutSeconds)
	}
	if cfg.Coordination.MeshSwitchMargin != 0.25 {
		t.Errorf("margin = %v", cfg.Coordination.MeshSwitchMargin)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q", cfg.Log.Level)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("oracle:\n  model: file-model\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APIAGENT_ORACLE_MODEL", "env-model")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Oracle.Model != "env-model" {
		t.Errorf("model = %q", cfg.Oracle.Model)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	cfg.HTTP.TimeoutSeconds = -1
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateAskRequiresAPIKey(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	if err := cfg.ValidateAsk(); err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("err = %v", err)
	}
	cfg.Oracle.APIKey = "sk-x"
	if err := cfg.ValidateAsk(); err != nil {
		t.Fatalf("ValidateAsk: %v", err)
	}
}
