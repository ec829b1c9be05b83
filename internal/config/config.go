package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/confidence"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/executor"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/matcher"
)

// MatchingConfig holds the matcher's dispatch thresholds
type MatchingConfig struct {
	// MinConfidence is the minimum plan confidence for automatic replay
	MinConfidence float64 `yaml:"min_confidence"`

	// MinSuccessRate is the minimum historical success rate for automatic replay
	MinSuccessRate float64 `yaml:"min_success_rate"`

	// RiskTolerance is the highest acceptable plan risk level (low, medium, high)
	RiskTolerance string `yaml:"risk_tolerance"`
}

// TrustConfig holds the confidence tracker's update factors
type TrustConfig struct {
	// GainFactor is k in confidence += (1 - confidence) * k after a success
	GainFactor float64 `yaml:"gain_factor"`

	// DecayFactor is d in confidence *= d after a failure
	DecayFactor float64 `yaml:"decay_factor"`
}

// FollowerConfig holds execution limits for plan replay
type FollowerConfig struct {
	// StepTimeout is the default per-step deadline (0 = no limit)
	StepTimeout time.Duration `yaml:"step_timeout"`

	// RunTimeout bounds a whole plan execution (0 = no limit)
	RunTimeout time.Duration `yaml:"run_timeout"`

	// Parallel runs independent steps of a dependency wave concurrently
	Parallel bool `yaml:"parallel"`

	// MaxConcurrency bounds parallel step execution (0 = default)
	MaxConcurrency int `yaml:"max_concurrency"`
}

// Config represents follower configuration options
type Config struct {
	// StorePath is the path to the plan store database
	StorePath string `yaml:"store_path"`

	// WorkDir is the root directory for artifact operations
	WorkDir string `yaml:"work_dir"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// FallbackToLearner escalates failed replays to the learner
	FallbackToLearner bool `yaml:"fallback_to_learner"`

	// Matching contains the matcher's dispatch thresholds
	Matching MatchingConfig `yaml:"matching"`

	// Trust contains the confidence tracker's update factors
	Trust TrustConfig `yaml:"trust"`

	// Follower contains execution limits
	Follower FollowerConfig `yaml:"follower"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		StorePath: ".follower/plans.db",
		WorkDir:   ".",
		LogLevel:  "info",
		Matching: MatchingConfig{
			MinConfidence:  matcher.DefaultMinConfidence,
			MinSuccessRate: matcher.DefaultMinSuccessRate,
			RiskTolerance:  "low",
		},
		Trust: TrustConfig{
			GainFactor:  confidence.DefaultGainFactor,
			DecayFactor: confidence.DefaultDecayFactor,
		},
		Follower: FollowerConfig{
			StepTimeout:    10 * time.Minute,
			RunTimeout:     2 * time.Hour,
			MaxConcurrency: executor.DefaultMaxConcurrency,
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations are written as strings in the file, so unmarshal through
	// an intermediate struct.
	type yamlFollower struct {
		StepTimeout    string `yaml:"step_timeout"`
		RunTimeout     string `yaml:"run_timeout"`
		Parallel       bool   `yaml:"parallel"`
		MaxConcurrency int    `yaml:"max_concurrency"`
	}
	type yamlConfig struct {
		StorePath         string         `yaml:"store_path"`
		WorkDir           string         `yaml:"work_dir"`
		LogLevel          string         `yaml:"log_level"`
		FallbackToLearner bool           `yaml:"fallback_to_learner"`
		Matching          MatchingConfig `yaml:"matching"`
		Trust             TrustConfig    `yaml:"trust"`
		Follower          yamlFollower   `yaml:"follower"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply non-zero values from file, merging with defaults.
	if yamlCfg.StorePath != "" {
		cfg.StorePath = yamlCfg.StorePath
	}
	if yamlCfg.WorkDir != "" {
		cfg.WorkDir = yamlCfg.WorkDir
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.FallbackToLearner {
		cfg.FallbackToLearner = true
	}

	if yamlCfg.Matching.MinConfidence != 0 {
		cfg.Matching.MinConfidence = yamlCfg.Matching.MinConfidence
	}
	if yamlCfg.Matching.MinSuccessRate != 0 {
		cfg.Matching.MinSuccessRate = yamlCfg.Matching.MinSuccessRate
	}
	if yamlCfg.Matching.RiskTolerance != "" {
		cfg.Matching.RiskTolerance = yamlCfg.Matching.RiskTolerance
	}

	if yamlCfg.Trust.GainFactor != 0 {
		cfg.Trust.GainFactor = yamlCfg.Trust.GainFactor
	}
	if yamlCfg.Trust.DecayFactor != 0 {
		cfg.Trust.DecayFactor = yamlCfg.Trust.DecayFactor
	}

	if yamlCfg.Follower.StepTimeout != "" {
		d, err := time.ParseDuration(yamlCfg.Follower.StepTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid step_timeout format %q: %w", yamlCfg.Follower.StepTimeout, err)
		}
		cfg.Follower.StepTimeout = d
	}
	if yamlCfg.Follower.RunTimeout != "" {
		d, err := time.ParseDuration(yamlCfg.Follower.RunTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid run_timeout format %q: %w", yamlCfg.Follower.RunTimeout, err)
		}
		cfg.Follower.RunTimeout = d
	}
	if yamlCfg.Follower.Parallel {
		cfg.Follower.Parallel = true
	}
	if yamlCfg.Follower.MaxConcurrency != 0 {
		cfg.Follower.MaxConcurrency = yamlCfg.Follower.MaxConcurrency
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .follower/config.yaml in the
// specified directory. If the directory or file doesn't exist, returns
// default configuration without error.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".follower", "config.yaml"))
}

// Validate validates the configuration values.
// Returns an error if any values are invalid.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("store_path cannot be empty")
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Matching.MinConfidence < 0 || c.Matching.MinConfidence > 1 {
		return fmt.Errorf("matching.min_confidence must be in [0,1], got %v", c.Matching.MinConfidence)
	}
	if c.Matching.MinSuccessRate < 0 || c.Matching.MinSuccessRate > 1 {
		return fmt.Errorf("matching.min_success_rate must be in [0,1], got %v", c.Matching.MinSuccessRate)
	}
	switch c.Matching.RiskTolerance {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("invalid matching.risk_tolerance %q, must be one of: low, medium, high", c.Matching.RiskTolerance)
	}

	if c.Trust.GainFactor <= 0 || c.Trust.GainFactor >= 1 {
		return fmt.Errorf("trust.gain_factor must be in (0,1), got %v", c.Trust.GainFactor)
	}
	if c.Trust.DecayFactor <= 0 || c.Trust.DecayFactor >= 1 {
		return fmt.Errorf("trust.decay_factor must be in (0,1), got %v", c.Trust.DecayFactor)
	}

	if c.Follower.StepTimeout < 0 {
		return fmt.Errorf("follower.step_timeout must be >= 0, got %v", c.Follower.StepTimeout)
	}
	if c.Follower.RunTimeout < 0 {
		return fmt.Errorf("follower.run_timeout must be >= 0, got %v", c.Follower.RunTimeout)
	}
	if c.Follower.MaxConcurrency < 0 {
		return fmt.Errorf("follower.max_concurrency must be >= 0, got %v", c.Follower.MaxConcurrency)
	}

	return nil
}

// MatcherConstraints converts the matching section into matcher constraints.
func (c *Config) MatcherConstraints() matcher.Constraints {
	return matcher.Constraints{
		MinConfidence:  c.Matching.MinConfidence,
		MinSuccessRate: c.Matching.MinSuccessRate,
		RiskTolerance:  c.Matching.RiskTolerance,
	}
}

// ExecutorConfig converts the follower section into executor options.
func (c *Config) ExecutorConfig() executor.Config {
	return executor.Config{
		StepTimeout:    c.Follower.StepTimeout,
		RunTimeout:     c.Follower.RunTimeout,
		Parallel:       c.Follower.Parallel,
		MaxConcurrency: c.Follower.MaxConcurrency,
	}
}
