package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/notifications"
	"storyreel/internal/orchestrator"
	"storyreel/internal/scheduler"
)

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	var cronFlag string
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Generate stories on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}
			orch, _, err := orchestrator.FromConfig(cmd.Context(), cfg, logger,
				orchestrator.WithNotifier(notifications.NewService(cfg)),
				orchestrator.WithMetrics(metrics.New()),
			)
			if err != nil {
				return err
			}

			spec := strings.TrimSpace(cronFlag)
			if spec == "" {
				spec = cfg.Schedule.Cron
			}
			run := func(runCtx context.Context) {
				result := orch.Run(runCtx)
				if !result.Success {
					logger.Warn("scheduled generation failed",
						logging.String(logging.FieldEventType, "scheduled_generation_failed"),
						logging.String("video_id", result.VideoID),
						logging.String("error_message", result.Error),
						logging.String(logging.FieldImpact, "no video for this slot"),
					)
				}
			}
			sched, err := scheduler.New(spec, run, logger)
			if err != nil {
				return err
			}
			if runNow {
				run(cmd.Context())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scheduling story generation with %q\n", spec)
			fmt.Fprintf(out, "Next run at %s\n", sched.Next().Local().Format(time.RFC1123))
			return sched.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&cronFlag, "cron", "", "Cron expression overriding schedule.cron")
	cmd.Flags().BoolVar(&runNow, "now", false, "Generate one story immediately before waiting for the schedule")
	return cmd
}
