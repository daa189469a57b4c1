package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"curvrank/internal/ledger"
	"curvrank/internal/preflight"
	"curvrank/internal/workflow"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace progress and the latest run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := workflow.Inspect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			fmt.Fprintf(out, "Workspace: %s\n\n", cfg.Paths.WorkspaceDir)
			printStatus(out, status, colorize)
			return nil
		},
	}
}

func printStatus(out io.Writer, status *workflow.Status, colorize bool) {
	writeSection(out, "Workspace", colorize)
	if status.Busy {
		fmt.Fprintln(out, renderStatusLine("Lock", statusWarn, "held by a running curvrank process", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Lock", statusOK, "free", colorize))
	}
	fmt.Fprintln(out, latestRunLine(status.LatestRun, colorize))
	for _, line := range preflightLines(status.Preflight, colorize) {
		fmt.Fprintln(out, line)
	}

	if len(status.Progress) > 0 {
		fmt.Fprintln(out)
		writeSection(out, "Progress", colorize)
		fmt.Fprintln(out, renderProgressTable(status.Progress))
		for _, p := range status.Progress {
			if kind := progressKind(p); kind != statusOK {
				fmt.Fprintln(out, renderStatusLine(stageTitle(p.Stage), kind,
					fmt.Sprintf("%d failed, %d pending", p.Failed, p.Pending), colorize))
			}
		}
	}
}

func latestRunLine(run *ledger.Run, colorize bool) string {
	if run == nil {
		return renderStatusLine("Latest run", statusInfo, "none recorded", colorize)
	}
	detail := joinNonEmpty(
		fmt.Sprintf("%s %s", run.Command, run.Status),
		run.StartedAt.Local().Format(time.DateTime),
		formatDuration(run.Duration()),
		run.ErrorMessage,
	)
	return renderStatusLine("Latest run", runStatusKind(run.Status), detail, colorize)
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind, detail := statusOK, "ready"
		if !r.Passed {
			kind, detail = statusError, r.Detail
		} else if r.Detail != "" {
			detail = r.Detail
		}
		lines = append(lines, renderStatusLine(r.Name, kind, detail, colorize))
	}
	return lines
}

func renderProgressTable(progress []workflow.StageProgress) string {
	rows := make([][]string, 0, len(progress))
	for _, p := range progress {
		rows = append(rows, []string{
			stageTitle(p.Stage),
			p.Device,
			strconv.Itoa(p.Items),
			strconv.Itoa(p.Complete),
			strconv.Itoa(p.Failed),
			strconv.Itoa(p.Pending),
		})
	}
	return renderTable(
		[]string{"Stage", "Device", "Items", "Complete", "Failed", "Pending"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
}
