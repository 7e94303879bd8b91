package web

// errors.go maps service errors to HTTP responses.
//
// The technical error is logged with the request id; the client gets the
// user message from core.Describe so support can match on the code.

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"github.com/JonMunkholm/intervalmerge/internal/core"
	"github.com/JonMunkholm/intervalmerge/internal/logging"
	"github.com/JonMunkholm/intervalmerge/internal/measurement"
	"github.com/JonMunkholm/intervalmerge/internal/spreadsheet"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrTooManyExports):
		return http.StatusTooManyRequests
	case errors.Is(err, measurement.ErrFolderNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidRequest), errors.Is(err, measurement.ErrUnknownColumn):
		return http.StatusBadRequest
	case errors.Is(err, spreadsheet.ErrNoData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user message as JSON.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.Describe(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{"path", r.URL.Path, "status", status, "code", msg.Code, "error", err.Error()}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
