package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/parser"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/planstore"
)

// NewLoadCommand creates and returns the load subcommand
func NewLoadCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <plan-file>...",
		Short: "Parse plan files and store them",
		Long: `Parse and structurally validate plan files, then store each plan
in the plan store. A plan's steps are immutable once stored: loading a
changed document for an existing id and version is rejected, a new
version must be assigned instead.

Exit code: 0 if all plans stored, 4 if any document is malformed`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, path := range args {
				plan, err := parser.ParseFile(path)
				if err != nil {
					return exitForError(fmt.Errorf("%s: %w", path, err))
				}
				if err := store.SavePlan(cmd.Context(), plan); err != nil {
					if errors.Is(err, planstore.ErrDuplicatePlan) {
						return exitForError(fmt.Errorf("%s: plan %s already stored, bump the version", path, plan.Key()))
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%d steps)\n", plan.Key(), len(plan.Steps))
			}
			return nil
		},
		SilenceUsage: true,
	}

	return cmd
}
