package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var showUnits bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show porting progress from the checkpoint store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return fmt.Errorf("open checkpoint store: %w", err)
			}
			defer store.Close()

			summary, err := store.Summarize(cmd.Context())
			if err != nil {
				return fmt.Errorf("summarize checkpoints: %w", err)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Porting progress", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Verified", statusOK, strconv.Itoa(summary.Verified), colorize))
			fmt.Fprintln(out, renderStatusLine("Failed", failureKind(summary.Failed), strconv.Itoa(summary.Failed), colorize))
			fmt.Fprintln(out, renderStatusLine("In flight", statusInfo, strconv.Itoa(summary.Generating+summary.Validating), colorize))
			fmt.Fprintln(out, renderStatusLine("Remaining", statusInfo, strconv.Itoa(summary.Remaining()), colorize))
			fmt.Fprintln(out, renderStatusLine("Total", statusInfo, strconv.Itoa(summary.Total), colorize))

			if !showUnits {
				return nil
			}

			records, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list checkpoints: %w", err)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No units have been attempted yet.")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					record.UnitID,
					string(record.Status),
					strconv.Itoa(record.Attempt),
					record.Verdict,
					record.ErrorMessage,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Unit", "Status", "Attempts", "Verdict", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showUnits, "units", false, "List every unit checkpoint")
	return cmd
}

func failureKind(failed int) statusKind {
	if failed > 0 {
		return statusError
	}
	return statusOK
}
