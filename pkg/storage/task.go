package storage

import "context"

// Task is one restartable attempt at a storage operation.
//
// Run consumes the task: it owns every input it needs, must not mutate state
// shared with other tasks, and after Run returns the task value must not be
// run again. On a retryable failure Run returns a replacement task through
// Backoff which carries everything the next attempt needs, so the original
// input is never re-read.
type Task[T any] interface {
	// Op names the operation for logs and metrics (upload, download, ...).
	Op() string
	// Path is the object path or prefix the task works on.
	Path() string
	// Run performs a single attempt.
	Run(ctx context.Context) Outcome[T]
}

type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeBackoff
	outcomeFail
)

// Outcome is the result of a single Task attempt: Ok, Backoff or Fail.
type Outcome[T any] struct {
	kind  outcomeKind
	value T
	next  Task[T]
	err   error
}

// Ok finishes the task chain successfully.
func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{kind: outcomeOK, value: value}
}

// Backoff asks the queue to wait and then run next. cause is the retryable
// error that ended this attempt.
func Backoff[T any](next Task[T], cause error) Outcome[T] {
	return Outcome[T]{kind: outcomeBackoff, next: next, err: cause}
}

// Fail finishes the task chain with a fatal error.
func Fail[T any](err error) Outcome[T] {
	return Outcome[T]{kind: outcomeFail, err: err}
}

// IsOk reports whether the attempt succeeded.
func (o Outcome[T]) IsOk() bool { return o.kind == outcomeOK }

// IsBackoff reports whether the attempt should be retried.
func (o Outcome[T]) IsBackoff() bool { return o.kind == outcomeBackoff }

// IsFail reports whether the attempt failed fatally.
func (o Outcome[T]) IsFail() bool { return o.kind == outcomeFail }

// Value returns the success value; it is the zero value unless IsOk.
func (o Outcome[T]) Value() T { return o.value }

// Next returns the replacement task of a Backoff outcome.
func (o Outcome[T]) Next() Task[T] { return o.next }

// Err returns the fatal error of a Fail outcome, or the retry cause of a Backoff.
func (o Outcome[T]) Err() error { return o.err }

// String implements fmt.Stringer.
func (o Outcome[T]) String() string {
	switch o.kind {
	case outcomeOK:
		return "ok"
	case outcomeBackoff:
		return "backoff"
	default:
		return "error"
	}
}
