package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"curvrank/internal/workflow"
)

func newFailuresCommand(ctx *commandContext) *cobra.Command {
	failuresCmd := &cobra.Command{
		Use:   "failures",
		Short: "Inspect or reset items that failed a stage",
	}
	failuresCmd.AddCommand(newFailuresListCommand(ctx))
	failuresCmd.AddCommand(newFailuresClearCommand(ctx))
	return failuresCmd
}

func newFailuresListCommand(ctx *commandContext) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached item failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(_ context.Context, session *workflow.Session) error {
				records, err := session.Store().Failures(stage)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No failures recorded")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					rows = append(rows, []string{stageTitle(r.Stage), r.Item, r.Fingerprint, r.Reason})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Stage", "Item", "Fingerprint", "Reason"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Only list failures of this stage")
	return cmd
}

func newFailuresClearCommand(ctx *commandContext) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete failure markers so the items are retried on the next run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(_ context.Context, session *workflow.Session) error {
				removed, err := session.Store().ClearFailures(stage)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d failure marker(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Only clear failures of this stage")
	return cmd
}
