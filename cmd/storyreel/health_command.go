package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storyreel/internal/preflight"
	"storyreel/internal/storage"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var role string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run preflight checks against providers, storage and binaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			checkCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var bucket preflight.Pinger
			backend, err := storage.Open(checkCtx, cfg.Storage)
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Storage", statusError, err.Error(), colorize))
			} else {
				bucket = backend
			}

			var results []preflight.Result
			switch role {
			case "orchestrator":
				results = preflight.RunOrchestrator(checkCtx, cfg, bucket)
			case "worker":
				results = preflight.RunWorker(checkCtx, cfg, bucket)
			case "", "all":
				results = preflight.RunAll(checkCtx, cfg, bucket)
			default:
				return fmt.Errorf("unknown role %q (want orchestrator, worker or all)", role)
			}

			for _, line := range preflightLines(results, colorize) {
				fmt.Fprintln(out, line)
			}
			failed := preflight.Failed(results)
			if err != nil || len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed)+boolCount(err != nil))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "all", "Checks to run: orchestrator, worker or all")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall time allowed for the checks")
	return cmd
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

func boolCount(v bool) int {
	if v {
		return 1
	}
	return 0
}
