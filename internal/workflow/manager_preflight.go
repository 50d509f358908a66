package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"storyreel/internal/logging"
	"storyreel/internal/preflight"
)

// runPreflightChecks logs every check result and fails when any check did.
func (m *Manager) runPreflightChecks(ctx context.Context, logger *slog.Logger) error {
	if m.preflight == nil {
		return nil
	}
	results := m.preflight(ctx)
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
		}
	}
	failed := preflight.Failed(results)
	if len(failed) == 0 {
		logger.Info("preflight passed", logging.Int("checks", len(results)))
		return nil
	}
	reasons := make([]string, 0, len(failed))
	for _, r := range failed {
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run 'storyreel health --role worker' and fix the reported issue"),
		)
		reasons = append(reasons, r.Name+": "+r.Detail)
	}
	return fmt.Errorf("preflight checks failed: %s", strings.Join(reasons, "; "))
}
