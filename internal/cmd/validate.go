package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/executor"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/parser"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-file>...",
		Short: "Validate plan files without storing or executing them",
		Long: `Parse and validate plan files, checking for:
  - Required fields (id, version, goal signature, step operations)
  - Known operation names and validation kinds
  - Known error policy actions
  - Contiguous step indices and dependencies on earlier steps
  - Output references that name an earlier step
  - Circular dependencies

Exit code: 0 if valid, 4 if any plan is malformed`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			for _, path := range args {
				plan, err := parser.ParseFile(path)
				if err != nil {
					failed = true
					fmt.Fprintf(cmd.OutOrStdout(), "INVALID %s: %v\n", path, err)
					continue
				}
				waves, err := executor.CalculateWaves(plan.Steps)
				if err != nil {
					failed = true
					fmt.Fprintf(cmd.OutOrStdout(), "INVALID %s: %v\n", path, err)
					continue
				}
				if err := checkOutputReferences(plan); err != nil {
					failed = true
					fmt.Fprintf(cmd.OutOrStdout(), "INVALID %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK %s: plan %s, %d steps in %d waves\n",
					path, plan.Key(), len(plan.Steps), len(waves))
			}
			if failed {
				return &ExitError{Code: ExitMalformed, Err: fmt.Errorf("one or more plan files are invalid")}
			}
			return nil
		},
		SilenceUsage: true,
	}

	return cmd
}

// checkOutputReferences verifies every ${steps.N.output} reference names
// an earlier step, so it can never fail resolution at runtime.
func checkOutputReferences(plan *models.Plan) error {
	for i := range plan.Steps {
		step := &plan.Steps[i]
		for _, ref := range executor.References(step.Params) {
			if ref < 1 || ref >= step.Index {
				return &models.PlanParseError{
					Reason: fmt.Sprintf("step %d: output reference to step %d does not name an earlier step", step.Index, ref),
				}
			}
		}
	}
	return nil
}
