package main

import (
	"github.com/spf13/cobra"

	"storyreel/internal/daemonrun"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the render worker in the foreground",
		Long: "Worker serves POST /process, renders queued jobs and releases the GPU pod\n" +
			"when the queue drains. It is the same process storyreeld runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&development, "dev", false, "Development logging with source locations")
	return cmd
}
