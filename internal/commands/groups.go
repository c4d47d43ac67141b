package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/argent-dev/argent/internal/report"
)

func newGroupsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "groups <export.csv>",
		Short: "Summarize a transactions export by merchant group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening export: %w", err)
			}
			defer f.Close()

			txns, err := report.ReadRecords(f)
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			groups, err := report.Summarize(txns)
			if err != nil {
				return err
			}
			return report.WriteSummary(cmd.OutOrStdout(), groups)
		},
	}
}
