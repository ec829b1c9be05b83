package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/planstore"
)

// NewReportCommand creates and returns the report subcommand
func NewReportCommand(opts *rootOptions) *cobra.Command {
	var reportPath string

	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Print the stored execution report for a run",
		Args:  cobra.ExactArgs(1),
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

			report, err := store.GetExecution(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, planstore.ErrNotFound) {
					return fmt.Errorf("no execution with run id %s", args[0])
				}
				return err
			}
			return writeReport(cmd, report, reportPath)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&reportPath, "out", "o", "", "write the report JSON to a file instead of stdout")

	return cmd
}
