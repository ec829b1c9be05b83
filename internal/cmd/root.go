package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/config"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/logger"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/planstore"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	storePath  string
	workDir    string
	logLevel   string
}

// NewRootCommand creates and returns the root cobra command for follower
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "follower",
		Short: "Deterministic plan replay and dispatch",
		Long: `Follower replays stored execution plans with zero deviation.

It loads plan documents (Markdown or YAML), stores them with versioned
trust metadata, matches incoming goals against eligible plans, and
replays the best match step by step through the tool adapter, updating
each plan's confidence from real outcomes.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config file (default .follower/config.yaml)")
	flags.StringVar(&opts.storePath, "store", "", "path to the plan store database (overrides config)")
	flags.StringVar(&opts.workDir, "work-dir", "", "root directory for artifact operations (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "logging verbosity: trace, debug, info, warn, error (overrides config)")

	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewExecuteCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewPlansCommand(opts))

	return cmd
}

// loadConfig resolves the effective configuration from file and flags.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.LoadConfig(o.configPath)
	} else {
		cfg, err = config.LoadConfigFromDir(".")
	}
	if err != nil {
		return nil, err
	}

	if o.storePath != "" {
		cfg.StorePath = o.storePath
	}
	if o.workDir != "" {
		cfg.WorkDir = o.workDir
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the plan store named by the effective configuration.
func openStore(cfg *config.Config) (*planstore.Store, error) {
	store, err := planstore.NewStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open plan store: %w", err)
	}
	return store, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *logger.ConsoleLogger {
	return logger.NewConsoleLogger(cmd.ErrOrStderr(), cfg.LogLevel)
}
