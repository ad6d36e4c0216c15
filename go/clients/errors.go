package clients

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies an authority failure for retry decisions and
// user-facing messaging.
type ErrorKind string

const (
	KindTransient   ErrorKind = "TRANSIENT"
	KindRateLimited ErrorKind = "RATE_LIMITED"
	KindAuth        ErrorKind = "AUTH"
	KindNotFound    ErrorKind = "NOT_FOUND"
	KindConflict    ErrorKind = "CONFLICT"
	KindClient      ErrorKind = "CLIENT"
	KindServer      ErrorKind = "SERVER"
)

// APIError represents a classified failure from the authority. StatusCode is
// 0 for transport-level failures (timeouts, refused connections).
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

// UserMessage returns the user-facing message for the error kind.
func (e *APIError) UserMessage() string {
	switch e.Kind {
	case KindRateLimited:
		return "Slow down a little - too many requests."
	case KindAuth:
		return "You are not allowed to do that in this game."
	case KindNotFound:
		return "That game could not be found."
	case KindConflict:
		return "Someone beat you to it - refreshing."
	case KindServer:
		return "The game server hit a problem. Retrying."
	case KindTransient:
		return "Connection hiccup. Retrying."
	default:
		return "Something went wrong with that request."
	}
}

// ClassifyStatus maps an HTTP status code to an error kind.
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusConflict:
		return KindConflict
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code >= 500:
		return KindServer
	case code >= 400:
		return KindClient
	default:
		return KindTransient
	}
}

// ClassifyTransport wraps a transport-level failure (no HTTP response) as a
// transient error.
func ClassifyTransport(err error) *APIError {
	return &APIError{Kind: KindTransient, Message: err.Error()}
}

// IsRetryable reports whether an error is eligible for retry under the
// default predicate: transport failures, timeouts, 5xx and 429.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case KindTransient, KindServer, KindRateLimited:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRateLimited reports whether an error carries the 429 classification.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited
}
