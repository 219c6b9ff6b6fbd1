package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// mapSessionError translates session and service errors to an HTTP status
// and an API error code. Sentinels are matched before the wrapping types.
func mapSessionError(err error) (int, response.ErrCode) {
	var (
		startErr  *session.StartError
		submitErr *session.SubmitError
	)

	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotStarted
	case errors.Is(err, service.ErrTestNotAvailable):
		return http.StatusNotFound, response.ErrTestNotAvailable
	case errors.Is(err, service.ErrInvalidTestID):
		return http.StatusBadRequest, response.ErrInvalidID
	case errors.Is(err, service.ErrAttemptExists):
		return http.StatusConflict, response.ErrSessionAlreadyStart
	case errors.Is(err, session.ErrInvalidDuration):
		return http.StatusUnprocessableEntity, response.ErrInvalidDuration
	case errors.Is(err, session.ErrNotActive):
		return http.StatusConflict, response.ErrSessionNotActive
	case errors.Is(err, session.ErrUnknownQuestion):
		return http.StatusUnprocessableEntity, response.ErrUnknownQuestion
	case errors.Is(err, session.ErrSubmitInFlight):
		return http.StatusConflict, response.ErrSubmitInFlight
	case errors.Is(err, session.ErrNothingToRetry):
		return http.StatusConflict, response.ErrNothingToRetry
	case errors.As(err, &startErr):
		return http.StatusServiceUnavailable, response.ErrStartFailed
	case errors.As(err, &submitErr):
		return http.StatusBadGateway, response.ErrSubmitFailed
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
