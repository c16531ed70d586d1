package testing

import (
	"errors"
	"fmt"

	"github.com/onsi/gomega/format"
	"github.com/onsi/gomega/types"

	"github.com/sgl-project/registry/pkg/storage"
)

// BeNotFoundError matches errors wrapping storage.ErrNotFound.
func BeNotFoundError() types.GomegaMatcher {
	return &storageErrorMatcher{name: "not found error", match: storage.IsNotFound}
}

// BeRetryableError matches errors the storage queues would retry.
func BeRetryableError() types.GomegaMatcher {
	return &storageErrorMatcher{name: "retryable storage error", match: storage.IsRetryable}
}

// BeStatusError matches a *storage.StatusError of the given kind anywhere in
// the error chain.
func BeStatusError(kind storage.ErrorKind) types.GomegaMatcher {
	return &storageErrorMatcher{
		name: fmt.Sprintf("%s status error", kind),
		match: func(err error) bool {
			var statusErr *storage.StatusError
			return errors.As(err, &statusErr) && statusErr.Kind == kind
		},
	}
}

// BeRetriesExhaustedError matches a chain that gave up after attempts attempts.
func BeRetriesExhaustedError(attempts int) types.GomegaMatcher {
	return &storageErrorMatcher{
		name: fmt.Sprintf("retries exhausted error after %d attempts", attempts),
		match: func(err error) bool {
			var exhausted *storage.RetriesExhaustedError
			return errors.As(err, &exhausted) && exhausted.Attempts == attempts
		},
	}
}

type storageErrorMatcher struct {
	name  string
	match func(error) bool
}

func (m *storageErrorMatcher) Match(actual interface{}) (bool, error) {
	if actual == nil {
		return false, nil
	}
	err, ok := actual.(error)
	if !ok {
		return false, fmt.Errorf("%s matcher expects an error", m.name)
	}
	return m.match(err), nil
}

func (m *storageErrorMatcher) FailureMessage(actual interface{}) string {
	return format.Message(actual, "to be a "+m.name)
}

func (m *storageErrorMatcher) NegatedFailureMessage(actual interface{}) string {
	return format.Message(actual, "not to be a "+m.name)
}
