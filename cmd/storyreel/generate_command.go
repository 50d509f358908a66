package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storyreel/internal/metrics"
	"storyreel/internal/notifications"
	"storyreel/internal/orchestrator"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var videoID string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write, voice and store one story, then trigger the render worker",
		Long: "Generate runs the full story pipeline once and prints the result as JSON.\n" +
			"With --video-id it skips generation and re-sends the render trigger for\n" +
			"assets that are already stored.",
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

			var result orchestrator.Result
			if id := strings.TrimSpace(videoID); id != "" {
				result = orch.Redispatch(cmd.Context(), id)
			} else {
				result = orch.Run(cmd.Context())
			}
			if err := emit(cmd, true, result, nil); err != nil {
				return err
			}
			return resultError(result)
		},
	}
	cmd.Flags().StringVar(&videoID, "video-id", "", "Re-trigger rendering for an existing video id")
	return cmd
}

// resultError turns a failed run into a non-zero exit without repeating the
// JSON already printed.
func resultError(result orchestrator.Result) error {
	if result.Success {
		return nil
	}
	if result.Error != "" {
		return fmt.Errorf("generation failed (%d): %s", result.StatusCode, result.Error)
	}
	return fmt.Errorf("generation failed (%d)", result.StatusCode)
}
