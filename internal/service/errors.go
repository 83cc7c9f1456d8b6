package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
)

// ErrNoActor is returned when a handler runs without a resolved actor.
var ErrNoActor = errors.New("no actor in request context")

// codeOf maps a core error to its Connect code. Unknown errors are internal.
func codeOf(err error) connect.Code {
	var (
		notFound  *models.NotFoundError
		forbidden *models.ForbiddenError
		state     *models.StateViolationError
		invalid   *models.InvalidInputError
		conflict  *models.ConflictError
		recon     *models.ReconciliationError
	)
	switch {
	case errors.As(err, &notFound):
		return connect.CodeNotFound
	case errors.As(err, &forbidden):
		return connect.CodePermissionDenied
	case errors.As(err, &state):
		return connect.CodeFailedPrecondition
	case errors.As(err, &invalid):
		return connect.CodeInvalidArgument
	case errors.As(err, &conflict):
		return connect.CodeAlreadyExists
	case errors.As(err, &recon):
		return connect.CodeInternal
	case errors.Is(err, storage.ErrTxTimeout), errors.Is(err, context.DeadlineExceeded):
		return connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	default:
		return connect.CodeInternal
	}
}

// toConnectError wraps err with its Connect code. Errors that already
// carry a code pass through.
func toConnectError(err error) error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return err
	}
	return connect.NewError(codeOf(err), err)
}
