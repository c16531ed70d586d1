package storage

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// jitterFactor is the randomization applied to every delay when jitter is on.
const jitterFactor = 0.25

// RetryConfig controls how a queue waits between attempts of a task chain.
type RetryConfig struct {
	// InitialDelay is the wait after the first retryable failure.
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"gt=0"`
	// MaxDelay caps a single wait.
	MaxDelay time.Duration `mapstructure:"max_delay" validate:"gtefield=InitialDelay"`
	// Multiplier grows the delay after every retry.
	Multiplier float64 `mapstructure:"multiplier" validate:"gte=1"`
	// Jitter randomizes each delay by +/-25%.
	Jitter bool `mapstructure:"jitter"`
	// MaxAttempts bounds the number of attempts in a chain; 0 means unlimited.
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=0"`
	// MaxElapsedTime bounds the wall time spent retrying; 0 means unlimited.
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time" validate:"gte=0"`
	// AttemptTimeout bounds a single backend call. It applies even after the
	// caller stopped waiting, so an abandoned attempt cannot run forever.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"gt=0"`
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
		MaxAttempts:    10,
		MaxElapsedTime: 5 * time.Minute,
		AttemptTimeout: 2 * time.Minute,
	}
}

// Validate checks the config for values the backoff policy cannot use.
func (c RetryConfig) Validate() error {
	if c.InitialDelay <= 0 {
		return fmt.Errorf("%w: retry initial delay must be positive", ErrInvalidConfig)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("%w: retry max delay %s is below initial delay %s", ErrInvalidConfig, c.MaxDelay, c.InitialDelay)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("%w: retry multiplier must be >= 1", ErrInvalidConfig)
	}
	if c.MaxAttempts < 0 || c.MaxElapsedTime < 0 {
		return fmt.Errorf("%w: retry caps must not be negative", ErrInvalidConfig)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("%w: attempt timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// newBackOff builds the delay policy for one task chain.
func (c RetryConfig) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.MaxInterval = c.MaxDelay
	b.Multiplier = c.Multiplier
	b.MaxElapsedTime = c.MaxElapsedTime
	b.RandomizationFactor = 0
	if c.Jitter {
		b.RandomizationFactor = jitterFactor
	}
	b.Reset()
	return b
}

// exhausted reports whether a chain that has made attempts attempts may not try again.
func (c RetryConfig) exhausted(attempts int) bool {
	return c.MaxAttempts > 0 && attempts >= c.MaxAttempts
}
