package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckpointCommand(ctx *commandContext) *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Checkpoint store utilities",
	}

	checkpointCmd.AddCommand(newCheckpointResetCommand(ctx))
	return checkpointCmd
}

func newCheckpointResetCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reset [unit-id]",
		Short: "Reset checkpoints so units are attempted again",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("pass exactly one unit ID or --all")
			}

			store, err := ctx.openStore()
			if err != nil {
				return fmt.Errorf("open checkpoint store: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if all {
				if err := store.ResetAll(cmd.Context()); err != nil {
					return fmt.Errorf("reset checkpoints: %w", err)
				}
				fmt.Fprintln(out, "All checkpoints reset")
				return nil
			}

			unitID := args[0]
			record, err := store.Get(cmd.Context(), unitID)
			if err != nil {
				return fmt.Errorf("load checkpoint: %w", err)
			}
			if record == nil {
				return fmt.Errorf("no checkpoint exists for unit %q", unitID)
			}
			if err := store.ResetUnit(cmd.Context(), unitID); err != nil {
				return fmt.Errorf("reset checkpoint: %w", err)
			}
			fmt.Fprintf(out, "Checkpoint for %s reset\n", unitID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Reset every checkpoint")
	return cmd
}
