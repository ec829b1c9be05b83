package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/matcher"
)

// NewPlansCommand creates and returns the plans subcommand
func NewPlansCommand(opts *rootOptions) *cobra.Command {
	var eligibleOnly bool

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List stored plans with their trust metadata",
		Args:  cobra.NoArgs,
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

			plans, err := store.ListLatest(cmd.Context())
			if err != nil {
				return err
			}
			if eligibleOnly {
				plans = matcher.Filter(plans, cfg.MatcherConstraints())
			}

			if len(plans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no plans stored")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLAN\tRISK\tCONFIDENCE\tSUCCESS\tUSES\tLAST USED\tGOAL")
			for _, p := range plans {
				lastUsed := "never"
				if !p.Trust.LastUsedAt.IsZero() {
					lastUsed = p.Trust.LastUsedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%.3f\t%.2f\t%d\t%s\t%s\n",
					p.Key(), p.RiskLevel,
					p.Trust.Confidence, p.Trust.SuccessRate, p.Trust.UsageCount,
					lastUsed, truncate(p.GoalSignature, 48))
			}
			return w.Flush()
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVar(&eligibleOnly, "eligible", false, "only plans above the dispatch thresholds")

	return cmd
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
