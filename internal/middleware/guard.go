package middleware

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/equb/internal/health"
)

// ErrDegraded is returned for financial writes while the ledger is degraded.
var ErrDegraded = errors.New("ledger is in degraded mode; financial writes are disabled")

// WriteGuard rejects the given procedures with CodeUnavailable while status
// is degraded. Other procedures, including all reads, pass through.
func WriteGuard(status *health.Status, procedures ...string) connect.UnaryInterceptorFunc {
	guarded := make(map[string]bool, len(procedures))
	for _, p := range procedures {
		guarded[p] = true
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			if guarded[procedure] && status.IsDegraded() {
				slog.Warn("Financial write blocked",
					"procedure", procedure,
					"user_id", GetUserID(ctx),
					"reason", status.Reason(),
				)
				return nil, connect.NewError(connect.CodeUnavailable, ErrDegraded)
			}
			return next(ctx, req)
		}
	}
}
