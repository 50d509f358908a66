package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"storyreel/internal/daemon"
	"storyreel/internal/daemonctl"
	"storyreel/internal/deps"
	"storyreel/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show render worker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				if !errors.Is(err, daemonctl.ErrUnavailable) {
					return err
				}
				return emit(cmd, jsonOut, daemon.Status{}, func(out io.Writer, colorize bool) {
					fmt.Fprintln(out, renderStatusLine("Worker", statusError, "Not running", colorize))
				})
			}
			return emit(cmd, jsonOut, status, func(out io.Writer, colorize bool) {
				printDaemonStatus(out, status, colorize)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the raw status as JSON")
	return cmd
}

func printDaemonStatus(out io.Writer, status daemon.Status, colorize bool) {
	for _, line := range renderSectionHeader("Worker", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Worker", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Worker", statusWarn, "Stopped", colorize))
	}
	if status.Workflow.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.Workflow.LastError, colorize))
	}
	if job := status.Workflow.LastJob; job != nil {
		fmt.Fprintln(out, renderStatusLine("Last job", jobStatusKind(job.Status),
			fmt.Sprintf("%s (%s)", job.VideoID, statusLabel(job.Status)), colorize))
	}

	names := make([]string, 0, len(status.Workflow.StageHealth))
	for name := range status.Workflow.StageHealth {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		health := status.Workflow.StageHealth[name]
		label := titleCaser.String(name) + " stage"
		if health.Ready {
			fmt.Fprintln(out, renderStatusLine(label, statusOK, "Ready", colorize))
		} else {
			fmt.Fprintln(out, renderStatusLine(label, statusError, health.Detail, colorize))
		}
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprint(out, queueStatsTable(status.Workflow.QueueStats))

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range dependencyLines(status.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
}

func queueStatsTable(stats map[queue.Status]int) string {
	rows := make([][]string, 0, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		count, ok := stats[status]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{statusLabel(status), fmt.Sprintf("%d", count)})
	}
	if len(rows) == 0 {
		return "Queue is empty\n"
	}
	return renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	if len(statuses) == 0 {
		return []string{renderStatusLine("Summary", statusInfo, "No dependencies reported", colorize)}
	}
	var missing []string
	lines := make([]string, 0, len(statuses)+1)
	for _, dep := range statuses {
		switch {
		case dep.Available:
			detail := "Ready"
			if dep.Command != "" {
				detail = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, detail, colorize))
		case dep.Optional:
			lines = append(lines, renderStatusLine(dep.Name, statusWarn, dep.Detail, colorize))
		default:
			missing = append(missing, dep.Name)
			lines = append(lines, renderStatusLine(dep.Name, statusError, dep.Detail, colorize))
		}
	}
	summary := renderStatusLine("Summary", statusOK, "All required dependencies available", colorize)
	if len(missing) > 0 {
		summary = renderStatusLine("Summary", statusError, "Missing: "+strings.Join(missing, ", "), colorize)
	}
	return append([]string{summary}, lines...)
}
