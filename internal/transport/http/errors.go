package http

import (
	"errors"

	apierrors "diveops/internal/errors"
	"diveops/internal/services"
)

// serviceError maps service sentinels to API errors. Anything else is
// returned unchanged for the error handler to classify.
func serviceError(err error) error {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return apierrors.ErrSessionNotFound
	case errors.Is(err, services.ErrSessionLimit):
		return apierrors.ErrSessionLimit
	case errors.Is(err, services.ErrSigningUnsupported), errors.Is(err, services.ErrListingUnsupported):
		return apierrors.NotImplemented(err.Error())
	}
	return err
}
