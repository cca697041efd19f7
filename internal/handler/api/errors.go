package api

import (
	"context"
	"errors"

	"FinScan/internal/domain/models"
	xhttp "FinScan/pkg/http"
)

// toAppError maps domain sentinels onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrConfiguration):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrStaleVersion), errors.Is(err, models.ErrInvariantViolation):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrUpstreamDataUnavailable), errors.Is(err, context.DeadlineExceeded):
		return xhttp.UnavailableError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
