// Package apierror maps service errors onto HTTP responses. Components
// return typed errors; only this package knows their status codes.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/skillforge/interview-gateway/pkg/gateway/live/protocol"
	"github.com/skillforge/interview-gateway/pkg/interview"
)

// Error is the canonical wire error.
type Error struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Param     string `json:"param,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type Envelope struct {
	Error *Error `json:"error"`
}

const (
	TypeInvalidRequest = "invalid_request_error"
	TypeNotFound       = "not_found_error"
	TypeConflict       = "conflict_error"
	TypeAPI            = "api_error"
)

// FromError converts any error into a wire error plus status code. Unknown
// errors are reported as internal without leaking details.
func FromError(err error, requestID string) (*Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Type:      TypeAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &Error{
			Type:      TypeAPI,
			Message:   "request cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var validationErr *interview.ValidationError
	if errors.As(err, &validationErr) && validationErr != nil {
		return &Error{
			Type:      TypeInvalidRequest,
			Message:   validationErr.Message,
			Param:     validationErr.Param,
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) && decodeErr != nil {
		return &Error{
			Type:      TypeInvalidRequest,
			Message:   decodeErr.Message,
			Param:     decodeErr.Param,
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	if errors.Is(err, interview.ErrNotFound) {
		return &Error{
			Type:      TypeNotFound,
			Message:   "session not found",
			RequestID: requestID,
		}, http.StatusNotFound
	}
	if errors.Is(err, interview.ErrInvalidTransition) {
		return &Error{
			Type:      TypeConflict,
			Message:   "session is already finished",
			RequestID: requestID,
		}, http.StatusConflict
	}

	return &Error{
		Type:      TypeAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}
