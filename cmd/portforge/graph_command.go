package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newGraphCommand(ctx *commandContext) *cobra.Command {
	var showDeps bool

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print processing units in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := ctx.loadGraph()
			if err != nil {
				return fmt.Errorf("load symbol graph: %w", err)
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, graph.Len())
			for i, id := range graph.Order() {
				unit, ok := graph.Unit(id)
				if !ok {
					continue
				}
				row := []string{
					strconv.Itoa(i + 1),
					id,
					string(unit.Kind()),
					strconv.Itoa(len(unit.Symbols)),
				}
				if showDeps {
					row = append(row, strings.Join(graph.Dependencies(id), ", "))
				}
				rows = append(rows, row)
			}

			headers := []string{"#", "Unit", "Kind", "Symbols"}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight}
			if showDeps {
				headers = append(headers, "Dependencies")
				aligns = append(aligns, alignLeft)
			}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			fmt.Fprintf(out, "%d units\n", graph.Len())
			return nil
		},
	}

	cmd.Flags().BoolVar(&showDeps, "deps", false, "Include each unit's direct dependencies")
	return cmd
}
