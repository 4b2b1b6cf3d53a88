package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/teranos/qbridge/errors"
	"github.com/teranos/qbridge/logger"
)

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsConflictError(err):
		return http.StatusConflict
	case errors.Is(err, errors.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err as a JSON error. Client errors carry their own
// message; server errors are logged and reported generically with context.
func handleError(w http.ResponseWriter, log *zap.SugaredLogger, err error, context string) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		writeError(w, status, err.Error())
		return
	}

	log.Errorw(context, logger.FieldError, err, "details", errors.FlattenDetails(err))
	writeError(w, status, context)
}
