package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"handout/internal/api"
	"handout/internal/preflight"
	"handout/internal/workdir"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and environment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var lines []string

			lines = append(lines, renderSectionHeader("Daemon", colorize))
			client, err := ctx.client()
			if err != nil {
				return err
			}
			probeCtx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			status, statusErr := client.Status(probeCtx)
			cancel()
			if statusErr != nil {
				lines = append(lines, renderStatusLine("Daemon", statusWarn, "not reachable at "+api.BaseURL(cfg.API.Bind), colorize))
			} else {
				lines = append(lines, daemonLines(status, colorize)...)
			}

			lines = append(lines, "", renderSectionHeader("Dependencies", colorize))
			for _, dep := range preflight.CheckSystemDeps(cfg) {
				kind := statusOK
				switch {
				case dep.Available:
				case dep.Optional:
					kind = statusWarn
				default:
					kind = statusError
				}
				lines = append(lines, renderStatusLine(dep.Name, kind, dep.Detail, colorize))
			}

			lines = append(lines, "", renderSectionHeader("Storage", colorize))
			lines = append(lines, workDirLine(cfg.Paths.WorkDir, colorize))

			if !skipChecks {
				lines = append(lines, "", renderSectionHeader("Preflight", colorize))
				for _, result := range preflight.RunAll(cmd.Context(), cfg) {
					kind := statusOK
					if !result.Passed {
						kind = statusError
					}
					lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
				}
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Skip preflight checks that contact remote services")
	return cmd
}

func workDirLine(root string, colorize bool) string {
	entries, err := workdir.List(root)
	if err != nil {
		return renderStatusLine("Work dir", statusWarn, err.Error(), colorize)
	}
	return renderStatusLine("Work dir", statusInfo,
		fmt.Sprintf("%s (%d jobs, %.1f MB)", root, len(entries), float64(workdir.TotalSize(entries))/(1<<20)), colorize)
}

func daemonLines(status api.DaemonStatus, colorize bool) []string {
	lines := []string{
		renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d, since %s)", status.PID, status.StartedAt), colorize),
		renderStatusLine("Job database", statusInfo, status.JobsDBPath, colorize),
	}
	wf := status.Workflow
	lines = append(lines, renderStatusLine("Workers", statusInfo,
		fmt.Sprintf("%d active of %d", len(wf.ActiveJobs), wf.Capacity), colorize))

	statuses := make([]string, 0, len(wf.JobStats))
	for name := range wf.JobStats {
		statuses = append(statuses, name)
	}
	slices.Sort(statuses)
	counts := make([]string, 0, len(statuses))
	for _, name := range statuses {
		if wf.JobStats[name] > 0 {
			counts = append(counts, fmt.Sprintf("%s=%d", name, wf.JobStats[name]))
		}
	}
	if len(counts) == 0 {
		counts = append(counts, "empty")
	}
	lines = append(lines, renderStatusLine("Jobs", statusInfo, strings.Join(counts, " "), colorize))
	if wf.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, wf.LastError, colorize))
	}
	for _, stage := range wf.StageHealth {
		kind := statusOK
		if !stage.Ready {
			kind = statusError
		} else if stage.Detail != "" {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(stage.Name, kind, stage.Detail, colorize))
	}
	return lines
}
