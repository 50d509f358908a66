package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storyreel/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"queue"},
		Short:   "Inspect and manage the render job queue",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))
	jobsCmd.AddCommand(newJobsResetCommand(ctx))
	jobsCmd.AddCommand(newJobsAbortCommand(ctx))
	jobsCmd.AddCommand(newJobsHealthCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List render jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFilters)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				jobs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jobs == nil {
					jobs = []*queue.Job{}
				}
				return emit(cmd, jsonOut, jobs, func(out io.Writer, colorize bool) {
					if len(jobs) == 0 {
						fmt.Fprintln(out, "Queue is empty")
						return
					}
					fmt.Fprint(out, renderTable(
						[]string{"ID", "Video", "Status", "Stage", "Attempts", "Created"},
						buildJobRows(jobs, colorize),
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
					))
				})
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFilters, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print jobs as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <job-id|video-id>",
		Short: "Show one job; partial video ids are matched fuzzily",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				job, err := lookupJob(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				return emit(cmd, jsonOut, job, func(out io.Writer, colorize bool) {
					printJobDetail(out, job, colorize)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the job as JSON")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Return failed jobs to pending",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					updated, err := store.RetryFailed(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Retried %d failed jobs\n", updated)
					return nil
				}
				for _, id := range ids {
					job, err := store.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					if job == nil {
						fmt.Fprintf(out, "Job %d not found\n", id)
						continue
					}
					if job.Status != queue.StatusFailed {
						fmt.Fprintf(out, "Job %d is %s (only failed jobs can be retried)\n", id, job.Status)
						continue
					}
					if _, err := store.RetryFailed(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(out, "Job %d reset for retry\n", id)
				}
				return nil
			})
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var completed, failed, all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, flag := range []bool{completed, failed, all} {
				if flag {
					selected++
				}
			}
			if selected > 1 {
				return errors.New("specify only one of --completed, --failed or --all")
			}
			return ctx.withStore(func(store *queue.Store) error {
				var removed int64
				var err error
				label := "completed and failed jobs"
				switch {
				case completed:
					removed, err = store.ClearCompleted(cmd.Context())
					label = "completed jobs"
				case failed:
					removed, err = store.ClearFailed(cmd.Context())
					label = "failed jobs"
				case all:
					removed, err = store.Clear(cmd.Context())
					label = "jobs"
				default:
					removed, err = store.ClearCompleted(cmd.Context())
					if err == nil {
						var more int64
						more, err = store.ClearFailed(cmd.Context())
						removed += more
					}
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s\n", removed, label)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "Remove only completed jobs")
	cmd.Flags().BoolVar(&failed, "failed", false, "Remove only failed jobs")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every job, including in-flight ones")
	return cmd
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id...>",
		Short: "Remove specific jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					removed, err := store.Remove(cmd.Context(), id)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Job %d removed\n", id)
					} else {
						fmt.Fprintf(out, "Job %d not found\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newJobsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return in-flight jobs to the start of their stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				updated, err := store.ResetStuckProcessing(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d jobs\n", updated)
				return nil
			})
		},
	}
}

func newJobsAbortCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Mark every in-flight job failed",
		Long: "Abort fails jobs left in flight by a worker that will not come back, for\n" +
			"example after its pod was terminated. They can then be retried.",
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.TrimSpace(reason)
			if message == "" {
				message = queue.DaemonStopReason
			}
			return ctx.withStore(func(store *queue.Store) error {
				failed, err := store.FailInFlight(cmd.Context(), message)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Failed %d in-flight jobs\n", failed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Error message recorded on the aborted jobs")
	return cmd
}

func newJobsHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the queue database and summarize job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				db, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				dbKind := statusOK
				dbDetail := fmt.Sprintf("schema v%d, integrity ok", db.SchemaVersion)
				if !db.DatabaseReadable || !db.TableExists || !db.IntegrityCheck || len(db.MissingColumns) > 0 {
					dbKind = statusError
					dbDetail = db.Error
					if dbDetail == "" && len(db.MissingColumns) > 0 {
						dbDetail = "missing columns: " + strings.Join(db.MissingColumns, ", ")
					}
				}
				fmt.Fprintln(out, renderStatusLine("Database", dbKind, dbDetail, colorize))

				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Total: %d\nPending: %d\nProcessing: %d\nFailed: %d\nCompleted: %d\n",
					health.Total, health.Pending, health.Processing, health.Failed, health.Completed)
				return nil
			})
		},
	}
}

func parseStatuses(values []string) ([]queue.Status, error) {
	var statuses []queue.Status
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid job id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
