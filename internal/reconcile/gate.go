package reconcile

import (
	"context"
	"log/slog"
)

// StartupGate runs the first sweep before the process accepts traffic.
// A failed check leaves the process up in degraded mode rather than
// aborting it, so reads keep working.
func StartupGate(ctx context.Context, engine *Engine, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	report, err := engine.Sweep(ctx)
	switch {
	case err != nil:
		logger.Error("Startup integrity check could not run, starting degraded", "error", err)
	case !report.Healthy():
		logger.Error("Startup integrity check found violations, starting degraded",
			"violations", report.DiscrepancyCount)
	default:
		logger.Info("Startup integrity check passed", "checked_payouts", report.CheckedPayouts)
	}
}
