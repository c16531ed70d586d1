package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common storage errors
var (
	// ErrNotFound indicates the requested object was not found
	ErrNotFound = errors.New("storage: object not found")

	// ErrQueueClosed indicates a task was submitted to, or still waiting in, a closed queue
	ErrQueueClosed = errors.New("storage: queue closed")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("storage: invalid configuration")

	// ErrUnknownBucket indicates a bucket name outside publishing, modules, docs and npm
	ErrUnknownBucket = errors.New("storage: unknown bucket")
)

// ErrorKind classifies a failed backend status.
type ErrorKind int

const (
	// KindRequestTimeout is HTTP 408, or an attempt that ran past its own deadline.
	KindRequestTimeout ErrorKind = iota + 1
	// KindTooManyRequests is HTTP 429.
	KindTooManyRequests
	// KindServer is any 5xx.
	KindServer
	// KindClient is any other 4xx.
	KindClient
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindRequestTimeout:
		return "request_timeout"
	case KindTooManyRequests:
		return "too_many_requests"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind are expected to be transient.
func (k ErrorKind) Retryable() bool {
	return k == KindRequestTimeout || k == KindTooManyRequests || k == KindServer
}

// ClassifyStatus maps an HTTP status code to an ErrorKind. The boolean is
// false for codes that are not 4xx or 5xx.
func ClassifyStatus(code int) (ErrorKind, bool) {
	switch {
	case code == http.StatusRequestTimeout:
		return KindRequestTimeout, true
	case code == http.StatusTooManyRequests:
		return KindTooManyRequests, true
	case code >= 500 && code <= 599:
		return KindServer, true
	case code >= 400 && code <= 499:
		return KindClient, true
	default:
		return 0, false
	}
}

// StatusError is a backend failure carrying a classified HTTP status.
type StatusError struct {
	Kind       ErrorKind
	StatusCode int
	Provider   Provider
	Op         string
	Path       string
	Err        error
}

// Error returns the string representation of the error
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("storage %s: %s %s: %s (status %d)", e.Provider, e.Op, e.Path, e.Kind, e.StatusCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *StatusError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the task that produced this error may be retried.
func (e *StatusError) Retryable() bool {
	return e.Kind.Retryable()
}

// BackendError is a provider failure that carries no usable status, such as a
// malformed response or a transport problem. It is never retried.
type BackendError struct {
	Provider Provider
	Op       string
	Path     string
	Err      error
}

// Error returns the string representation of the error
func (e *BackendError) Error() string {
	return fmt.Sprintf("storage %s: %s %s: %v", e.Provider, e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *BackendError) Unwrap() error {
	return e.Err
}

// StreamError is a failure reading the caller's upload stream. It is never retried.
type StreamError struct {
	Path string
	Err  error
}

// Error returns the string representation of the error
func (e *StreamError) Error() string {
	return fmt.Sprintf("storage: reading upload stream for %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *StreamError) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError is returned when a task chain hit the attempt or time cap
// while still failing with retryable errors.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

// Error returns the string representation of the error
func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("storage: giving up after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying error
func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// StatusErrorFrom builds the error for a failed backend call that returned
// status code. Codes that are not 4xx/5xx produce a *BackendError.
func StatusErrorFrom(provider Provider, op, path string, code int, err error) error {
	kind, ok := ClassifyStatus(code)
	if !ok {
		if err == nil {
			err = fmt.Errorf("unexpected status %d", code)
		}
		return &BackendError{Provider: provider, Op: op, Path: path, Err: err}
	}
	return &StatusError{
		Kind:       kind,
		StatusCode: code,
		Provider:   provider,
		Op:         op,
		Path:       path,
		Err:        err,
	}
}

// TimeoutError reports an attempt that ran past its own deadline as a request
// timeout so it is retried like an HTTP 408.
func TimeoutError(provider Provider, op, path string, err error) error {
	return &StatusError{
		Kind:       KindRequestTimeout,
		StatusCode: http.StatusRequestTimeout,
		Provider:   provider,
		Op:         op,
		Path:       path,
		Err:        err,
	}
}

// IsRetryable checks if an error is retryable. Only *StatusError values are
// consulted; every other error is fatal.
func IsRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return false
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDeadlineExceeded checks whether err came from an expired context deadline.
func IsDeadlineExceeded(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
