package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/confidence"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/dispatcher"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/executor"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/matcher"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/tool"
)

// NewDispatchCommand creates and returns the dispatch subcommand
func NewDispatchCommand(opts *rootOptions) *cobra.Command {
	var (
		tags       []string
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "dispatch <goal text>",
		Short: "Match a goal against stored plans and replay the best one",
		Long: `Run the full dispatch path for a goal: filter stored plans on
confidence, success rate, tags, and risk tolerance, rank the survivors
by textual similarity, and replay the winner. The plan's trust metadata
is updated from the outcome.

No learner is wired into the CLI: when no stored plan is eligible, or a
replay fails, dispatch reports the escalation and exits non-zero. The
goal and the failure details are printed so an external learner can
take over.

Exit codes: 0 done, 1 no eligible plan or failed replay,
2 tool error, 3 precondition failure`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := strings.Join(args, " ")

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cmd, cfg)

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			constraints := cfg.MatcherConstraints()
			constraints.Tags = tags

			registry := tool.DefaultRegistry(cfg.WorkDir, nil)
			exec := executor.New(registry, log, cfg.ExecutorConfig())
			tracker := confidence.NewTracker(store, cfg.Trust.GainFactor, cfg.Trust.DecayFactor)

			d := dispatcher.New(
				matcher.New(store, nil),
				exec,
				tracker,
				store,
				nil, // no learner behind the CLI
				log,
				dispatcher.Config{Constraints: constraints},
			)

			result, err := d.Dispatch(cmd.Context(), goal)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Plan != nil {
				fmt.Fprintf(out, "matched plan %s\n", result.Plan.Key())
			}
			if result.Report != nil {
				if err := writeReport(cmd, result.Report, reportPath); err != nil {
					return err
				}
			}

			if result.State != dispatcher.StateDone {
				if result.Plan == nil {
					fmt.Fprintf(out, "no eligible plan for goal %q, learner escalation required\n", goal)
					return &ExitError{Code: ExitValidation, Err: fmt.Errorf("no eligible plan")}
				}
				return exitForReport(result.Report)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringSliceVar(&tags, "tag", nil, "require every given tag on candidate plans")
	cmd.Flags().StringVarP(&reportPath, "out", "o", "", "write the execution report JSON to a file instead of stdout")

	return cmd
}
