package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.StorePath != ".follower/plans.db" {
		t.Errorf("StorePath = %q, want %q", cfg.StorePath, ".follower/plans.db")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Matching.MinConfidence != 0.9 {
		t.Errorf("Matching.MinConfidence = %v, want 0.9", cfg.Matching.MinConfidence)
	}
	if cfg.Matching.MinSuccessRate != 0.85 {
		t.Errorf("Matching.MinSuccessRate = %v, want 0.85", cfg.Matching.MinSuccessRate)
	}
	if cfg.Trust.GainFactor != 0.1 {
		t.Errorf("Trust.GainFactor = %v, want 0.1", cfg.Trust.GainFactor)
	}
	if cfg.Trust.DecayFactor != 0.5 {
		t.Errorf("Trust.DecayFactor = %v, want 0.5", cfg.Trust.DecayFactor)
	}
	if cfg.Follower.StepTimeout != 10*time.Minute {
		t.Errorf("Follower.StepTimeout = %v, want 10m", cfg.Follower.StepTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate, got: %v", err)
	}
}

// TestLoadConfigValidFile tests loading a valid YAML config file
func TestLoadConfigValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `store_path: /var/lib/follower/plans.db
log_level: debug
fallback_to_learner: true
matching:
  min_confidence: 0.95
  risk_tolerance: medium
trust:
  gain_factor: 0.2
follower:
  step_timeout: 30s
  run_timeout: 15m
  parallel: true
  max_concurrency: 8
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.StorePath != "/var/lib/follower/plans.db" {
		t.Errorf("StorePath = %q, want %q", cfg.StorePath, "/var/lib/follower/plans.db")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if !cfg.FallbackToLearner {
		t.Error("FallbackToLearner = false, want true")
	}
	if cfg.Matching.MinConfidence != 0.95 {
		t.Errorf("Matching.MinConfidence = %v, want 0.95", cfg.Matching.MinConfidence)
	}
	if cfg.Matching.RiskTolerance != "medium" {
		t.Errorf("Matching.RiskTolerance = %q, want %q", cfg.Matching.RiskTolerance, "medium")
	}
	if cfg.Trust.GainFactor != 0.2 {
		t.Errorf("Trust.GainFactor = %v, want 0.2", cfg.Trust.GainFactor)
	}
	if cfg.Follower.StepTimeout != 30*time.Second {
		t.Errorf("Follower.StepTimeout = %v, want 30s", cfg.Follower.StepTimeout)
	}
	if cfg.Follower.RunTimeout != 15*time.Minute {
		t.Errorf("Follower.RunTimeout = %v, want 15m", cfg.Follower.RunTimeout)
	}
	if !cfg.Follower.Parallel {
		t.Error("Follower.Parallel = false, want true")
	}
	if cfg.Follower.MaxConcurrency != 8 {
		t.Errorf("Follower.MaxConcurrency = %d, want 8", cfg.Follower.MaxConcurrency)
	}
}

// TestLoadConfigPartialFileKeepsDefaults verifies merging with defaults
func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "warn")
	}
	if cfg.StorePath != ".follower/plans.db" {
		t.Errorf("StorePath = %q, want default", cfg.StorePath)
	}
	if cfg.Matching.MinConfidence != 0.9 {
		t.Errorf("Matching.MinConfidence = %v, want default 0.9", cfg.Matching.MinConfidence)
	}
}

// TestLoadConfigMissingFile verifies defaults when the file is absent
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() with missing file error = %v", err)
	}
	if cfg.StorePath != ".follower/plans.db" {
		t.Errorf("StorePath = %q, want default", cfg.StorePath)
	}
}

// TestLoadConfigMalformedFile verifies that bad YAML is an error
func TestLoadConfigMalformedFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("store_path: [unclosed\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("LoadConfig() with malformed YAML should return an error")
	}
}

// TestLoadConfigInvalidDuration verifies duration parse errors surface
func TestLoadConfigInvalidDuration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := "follower:\n  step_timeout: not-a-duration\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("LoadConfig() with invalid duration should return an error")
	}
}

// TestConfigValidate exercises validation of bad values
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty store path", func(c *Config) { c.StorePath = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"confidence above one", func(c *Config) { c.Matching.MinConfidence = 1.5 }},
		{"negative success rate", func(c *Config) { c.Matching.MinSuccessRate = -0.1 }},
		{"bad risk tolerance", func(c *Config) { c.Matching.RiskTolerance = "extreme" }},
		{"gain factor at one", func(c *Config) { c.Trust.GainFactor = 1.0 }},
		{"decay factor at zero", func(c *Config) { c.Trust.DecayFactor = 0 }},
		{"negative step timeout", func(c *Config) { c.Follower.StepTimeout = -time.Second }},
		{"negative concurrency", func(c *Config) { c.Follower.MaxConcurrency = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should reject invalid config")
			}
		})
	}
}

// TestLoadConfigFromDir verifies the conventional directory layout
func TestLoadConfigFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".follower")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	content := "log_level: error\n"
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfigFromDir(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfigFromDir() error = %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "error")
	}
}
