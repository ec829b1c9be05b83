package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/confidence"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/config"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/executor"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/parser"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/planstore"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/tool"
)

// NewExecuteCommand creates and returns the execute subcommand
func NewExecuteCommand(opts *rootOptions) *cobra.Command {
	var (
		dryRun      bool
		parallel    bool
		stepTimeout time.Duration
		runTimeout  time.Duration
		reportPath  string
	)

	cmd := &cobra.Command{
		Use:   "execute <plan-file | plan-id[@vN]>",
		Short: "Replay a plan with zero deviation",
		Long: `Execute a plan from a document file or from the plan store.

A stored plan is referenced by id, optionally with a version suffix
(deploy-service@v2); without one the latest version runs. Stored plan
executions update the plan's trust metadata from the outcome; file
executions do not touch the store.

With --dry-run the plan is only walked: parameter references are
resolved against simulated outputs and each step's planned validations
are listed, without invoking any tool.

Exit codes: 0 success, 1 validation failure, 2 tool error,
3 precondition failure, 4 malformed plan`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cmd, cfg)

			execCfg := cfg.ExecutorConfig()
			if cmd.Flags().Changed("parallel") {
				execCfg.Parallel = parallel
			}
			if stepTimeout > 0 {
				execCfg.StepTimeout = stepTimeout
			}
			if runTimeout > 0 {
				execCfg.RunTimeout = runTimeout
			}

			registry := tool.DefaultRegistry(cfg.WorkDir, nil)
			exec := executor.New(registry, log, execCfg)

			plan, store, err := resolvePlan(cmd.Context(), cfg, args[0])
			if err != nil {
				return exitForError(err)
			}
			if store != nil {
				defer store.Close()
			}

			if dryRun {
				report, err := exec.DryRun(plan)
				if err != nil {
					return exitForError(err)
				}
				return writeReport(cmd, report, reportPath)
			}

			report := exec.Execute(cmd.Context(), plan)

			// Trust only moves for plans that live in the store.
			if store != nil {
				tracker := confidence.NewTracker(store, cfg.Trust.GainFactor, cfg.Trust.DecayFactor)
				trust, err := tracker.Record(cmd.Context(), report)
				if err != nil {
					return fmt.Errorf("record trust for %s: %w", plan.Key(), err)
				}
				log.LogInfo(fmt.Sprintf("plan %s confidence now %.3f (%d uses)",
					plan.Key(), trust.Confidence, trust.UsageCount))
			}

			if err := writeReport(cmd, report, reportPath); err != nil {
				return err
			}
			return exitForReport(report)
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "walk the plan without invoking any tool")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "run independent steps of a wave concurrently")
	cmd.Flags().DurationVar(&stepTimeout, "step-timeout", 0, "per-step deadline (overrides config)")
	cmd.Flags().DurationVar(&runTimeout, "run-timeout", 0, "whole-run deadline (overrides config)")
	cmd.Flags().StringVarP(&reportPath, "out", "o", "", "write the execution report JSON to a file instead of stdout")

	return cmd
}

// resolvePlan loads the plan either from a document on disk or from the
// store by id reference. The returned store is non-nil only for stored
// plans and must be closed by the caller.
func resolvePlan(ctx context.Context, cfg *config.Config, ref string) (*models.Plan, *planstore.Store, error) {
	if parser.DetectFormat(ref) != parser.FormatUnknown {
		if _, err := os.Stat(ref); err == nil {
			plan, err := parser.ParseFile(ref)
			return plan, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %s", errNotAFile, ref)
	}

	id, version, err := parsePlanRef(ref)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	plan, err := store.GetPlan(ctx, id, version)
	if err != nil {
		store.Close()
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, nil, fmt.Errorf("plan %s not found in store", ref)
		}
		return nil, nil, err
	}
	return plan, store, nil
}

func writeReport(cmd *cobra.Command, report *models.ExecutionReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if path == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "report written to %s (run %s)\n", path, report.RunID)
	return nil
}

// parsePlanRef splits an id reference like "deploy-service@v2" into id
// and version. Version 0 means latest.
func parsePlanRef(ref string) (id string, version int, err error) {
	at := strings.LastIndex(ref, "@")
	if at < 0 {
		return ref, 0, nil
	}
	id = ref[:at]
	verPart := strings.TrimPrefix(ref[at+1:], "v")
	version, err = strconv.Atoi(verPart)
	if err != nil || version < 1 {
		return "", 0, &models.PlanParseError{Reason: fmt.Sprintf("invalid plan reference %q", ref)}
	}
	return id, version, nil
}

var errNotAFile = errors.New("not a plan file")
