package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TransientError marks an execution failure worth retrying on a later
// iteration: timeouts, rate limits, server-side errors. The refinement loop
// records it, spends the iteration, and continues.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient execution failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks an unrecoverable execution failure: malformed requests,
// authentication problems. The refinement loop terminates the run.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal execution failure: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Fatal wraps err as a FatalError. Returns nil for nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is (or wraps) a FatalError
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Classify maps a raw agent error into the transient/fatal taxonomy.
// Already-classified errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) || IsFatal(err) {
		return err
	}
	if isRetriable(err) {
		return Transient(err)
	}
	return Fatal(err)
}

// isRetriable decides whether an error is worth retrying.
// Timeouts, rate limits, server errors and connection failures are
// retriable; client errors (4xx other than 429) are not.
func isRetriable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	msg := strings.ToLower(err.Error())

	// Rate limiting
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") {
		return true
	}

	// Server-side errors
	for _, code := range []string{"500", "502", "503", "504", "529"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	if strings.Contains(msg, "overloaded") || strings.Contains(msg, "internal server error") {
		return true
	}

	// Connection problems
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "no such host", "timeout", "timed out", "eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}

	// Client errors are not retriable
	for _, code := range []string{"400", "401", "403", "404", "422"} {
		if strings.Contains(msg, code) {
			return false
		}
	}

	return false
}
