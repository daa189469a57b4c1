package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"curvrank/internal/pipeline"
	"curvrank/internal/workflow"
)

var summaryTopK = []int{1, 5, 10}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Compute missing artifacts, identify every query and write reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, session *workflow.Session) error {
				summary, err := session.Run(runCtx)
				if summary != nil {
					printSummary(cmd.OutOrStdout(), summary)
				}
				return err
			})
		},
	}
}

func newEvaluateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Rewrite accuracy reports from stored identification results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, session *workflow.Session) error {
				summary, err := session.Evaluate(runCtx)
				if summary != nil {
					printSummary(cmd.OutOrStdout(), summary)
				}
				return err
			})
		},
	}
}

func printSummary(out io.Writer, summary *workflow.Summary) {
	colorize := shouldColorize(out)
	fmt.Fprintf(out, "Run %s\n", summary.RunID)
	if summary.Report != nil && len(summary.Report.Stages) > 0 {
		fmt.Fprintln(out)
		writeSection(out, "Stages", colorize)
		fmt.Fprintln(out, renderStageTable(summary.Report))
	}
	for _, m := range summary.Methods {
		fmt.Fprintln(out)
		writeSection(out, "Method "+m.Method, colorize)
		fmt.Fprintln(out, renderAccuracyTable(m))
		if m.Missing > 0 {
			fmt.Fprintln(out, renderStatusLine("Missing results", statusWarn,
				fmt.Sprintf("%d queries have no stored ranking", m.Missing), colorize))
		}
		fmt.Fprintf(out, "Reports: %s\n", m.Dir)
	}
}

func renderStageTable(report *pipeline.Report) string {
	rows := make([][]string, 0, len(report.Stages))
	for _, sr := range report.Stages {
		done, failed, cached := sr.Counts()
		rows = append(rows, []string{
			stageTitle(sr.Stage),
			sr.Device.String(),
			strconv.Itoa(len(sr.Items)),
			strconv.Itoa(done),
			strconv.Itoa(failed),
			strconv.Itoa(cached + int(sr.CachedFailed.GetCardinality())),
			formatDuration(sr.Duration),
		})
	}
	return renderTable(
		[]string{"Stage", "Device", "Items", "Done", "Failed", "Cached", "Time"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}

func renderAccuracyTable(m workflow.MethodReport) string {
	headers := []string{"Split", "Queries"}
	aligns := []columnAlignment{alignLeft, alignRight}
	for _, k := range summaryTopK {
		headers = append(headers, fmt.Sprintf("Top-%d", k))
		aligns = append(aligns, alignRight)
	}
	headers = append(headers, "MRR")
	aligns = append(aligns, alignRight)

	rows := make([][]string, 0, len(m.Runs)+1)
	for i, ev := range m.Runs {
		row := []string{fmt.Sprintf("run-%02d", i), strconv.Itoa(ev.Ranked)}
		for _, k := range summaryTopK {
			row = append(row, formatPercent(ev.TopK[min(k, ev.NumReference)]))
		}
		rows = append(rows, append(row, fmt.Sprintf("%.3f", ev.MeanMRR())))
	}
	if len(m.Aggregate) > 0 {
		row := []string{"mean", ""}
		for _, k := range summaryTopK {
			agg := m.Aggregate[min(k, len(m.Aggregate))-1]
			row = append(row, formatPercent(agg.Mean))
		}
		rows = append(rows, append(row, ""))
	}
	return renderTable(headers, rows, aligns)
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
