// Package errors defines the failure taxonomy shared by the ingestion and
// query paths. Transport and status failures are retryable on the ingestion
// path; decode failures never are.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTransport        = errors.New("transport failure")
	ErrStatus           = errors.New("unexpected response status")
	ErrDecode           = errors.New("malformed payload")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrRejected         = errors.New("request rejected")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// StatusError is returned when the remote endpoint answers outside [200,300).
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d %s", ErrStatus.Error(), e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: %d %s: %s", ErrStatus.Error(), e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrStatus
}

// NewStatus builds a StatusError, keeping at most the first 256 bytes of body.
func NewStatus(statusCode int, body []byte) *StatusError {
	if len(body) > 256 {
		body = body[:256]
	}
	return &StatusError{StatusCode: statusCode, Body: string(body)}
}

// Transport wraps err as a transport failure.
func Transport(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// Decodef reports a decode failure with a formatted message.
func Decodef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// Invalidf reports a configuration validation failure.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// IsSuccess reports whether statusCode is in [200,300).
func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsRetryable reports whether err is a transport or status failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDecode) || errors.Is(err, ErrInvalidConfig) {
		return false
	}
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrStatus)
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidConfig):
		return 2
	case errors.Is(err, ErrDecode), errors.Is(err, ErrRejected):
		return 3
	case errors.Is(err, ErrTransport), errors.Is(err, ErrStatus):
		return 4
	default:
		return 1
	}
}

// Is, As and New re-export the standard helpers so callers importing this
// package under its own name need only one errors import.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)
