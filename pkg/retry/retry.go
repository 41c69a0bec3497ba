package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Config holds retry configuration
type Config struct {
	MaxRetries     int           // Maximum number of retry attempts
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
}

// DefaultConfig returns the delivery retry policy
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

func (c Config) backoff() goretry.Backoff {
	initial := c.InitialBackoff
	if initial <= 0 {
		initial = time.Millisecond
	}
	b := goretry.NewExponential(initial)
	if c.MaxBackoff > 0 {
		b = goretry.WithCappedDuration(c.MaxBackoff, b)
	}
	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return goretry.WithMaxRetries(uint64(retries), b)
}

// Do executes fn with exponential backoff. Only errors IsRetryable accepts
// are retried; anything else is returned at once.
func Do(ctx context.Context, config Config, fn func(ctx context.Context) error) error {
	attempts := 0
	err := goretry.Do(ctx, config.backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err != nil && IsRetryable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
	if err != nil && attempts > config.MaxRetries && IsRetryable(err) {
		return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, err)
	}
	return err
}

// Permanent marks an error as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Network errors and transient SMTP/HTTP failures are retryable
	errStr := strings.ToLower(err.Error())

	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"try again",
		"421",
		"450",
		"451",
		"452",
		"503",
		"502",
		"504",
		"eof",
		"broken pipe",
	}

	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}

	return false
}
