package main

import (
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"portforge/internal/generate"
	"portforge/internal/logging"
	"portforge/internal/orchestrator"
	"portforge/internal/validate"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var concurrency int
	var skipHealthCheck bool

	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"resume"},
		Short:   "Port every symbol whose dependencies can be verified",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if concurrency > 0 {
				cfg.Orchestrator.Concurrency = concurrency
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			graph, err := ctx.loadGraph()
			if err != nil {
				return fmt.Errorf("load symbol graph: %w", err)
			}

			store, err := ctx.openStore()
			if err != nil {
				return fmt.Errorf("open checkpoint store: %w", err)
			}
			defer store.Close()

			client := generate.NewClient(cfg.Generation)
			if !skipHealthCheck {
				if err := client.HealthCheck(signalCtx); err != nil {
					return fmt.Errorf("collaborator health check: %w", err)
				}
			}
			generator := generate.NewGenerator(cfg, client, logger)
			runner := validate.NewRunner(cfg, validate.WithLogger(logger))

			orch, err := orchestrator.New(cfg, graph, store, generator, runner, orchestrator.WithLogger(logger))
			if err != nil {
				return err
			}

			summary, err := orch.Run(signalCtx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			writeRunSummary(out, summary)
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Override the configured dispatch concurrency")
	cmd.Flags().BoolVar(&skipHealthCheck, "skip-health-check", false, "Skip the collaborator health check before dispatching")
	return cmd
}

func writeRunSummary(out io.Writer, summary *orchestrator.RunSummary) {
	rows := [][]string{
		{"Run ID", summary.RunID},
		{"Units", strconv.Itoa(summary.Total)},
		{"Verified", strconv.Itoa(summary.Verified)},
		{"Failed", strconv.Itoa(summary.Failed)},
		{"Blocked", strconv.Itoa(summary.Blocked)},
		{"Skipped", strconv.Itoa(summary.Skipped)},
		{"Duration", summary.Duration.Round(time.Millisecond).String()},
	}
	if summary.Interrupted {
		rows = append(rows, []string{"Interrupted", "yes"})
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))

	if len(summary.Failures) > 0 {
		failureRows := make([][]string, 0, len(summary.Failures))
		for _, failure := range summary.Failures {
			failureRows = append(failureRows, []string{failure.UnitID, string(failure.Verdict), failure.Detail})
		}
		fmt.Fprintln(out, "Failed units:")
		fmt.Fprintln(out, renderTable([]string{"Unit", "Verdict", "Detail"}, failureRows, []columnAlignment{alignLeft, alignLeft, alignLeft}))
	}
	if len(summary.BlockedUnits) > 0 {
		fmt.Fprintln(out, "Blocked units:")
		for _, blocked := range summary.BlockedUnits {
			fmt.Fprintf(out, "  %s (blocked by %s)\n", blocked.UnitID, blocked.BlockedBy)
		}
	}
}
