// Package resilience wraps calls to external providers with
// classification-aware retry, exponential backoff with jitter, and a
// one-shot fallback for resource exhaustion. Centralizing the policy
// here keeps call sites free of ad hoc retry loops and gives uniform
// failure semantics across speech recognition, language-model
// inference, and speech synthesis.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
)

// Class is the failure classification driving the retry policy.
type Class int

const (
	// Transient failures are retried with exponential backoff.
	Transient Class = iota
	// ResourceExhausted failures get exactly one fallback attempt.
	ResourceExhausted
	// Permanent failures are surfaced immediately, no retry.
	Permanent
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case ResourceExhausted:
		return "resource-exhausted"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classifier maps a non-nil error to a Class.
type Classifier func(error) Class

// ClassifiedError carries an explicit class, letting providers decide
// how their failures should be treated.
type ClassifiedError struct {
	Class Class
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classed is implemented by errors that know their own class.
type Classed interface {
	ErrorClass() Class
}

// DefaultClassifier honors explicit classifications, treats context
// cancellation as permanent, and falls back to message heuristics.
func DefaultClassifier(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	var cd Classed
	if errors.As(err, &cd) {
		return cd.ErrorClass()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Permanent
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "quota", "exhausted", "out of memory", "capacity", "overloaded"):
		return ResourceExhausted
	case containsAny(msg, "timeout", "temporar", "unavailable", "busy", "connection", "reset"):
		return Transient
	case containsAny(msg, "invalid", "unsupported", "malformed", "not found", "unauthorized"):
		return Permanent
	}
	return Transient
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Options tunes one resilient call.
type Options struct {
	MaxRetries  int           // retries after the first attempt (default 3)
	BackoffBase time.Duration // first backoff delay (default 500ms)
	MaxBackoff  time.Duration // backoff cap (default 30s)
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Do runs op under the retry policy with no fallback.
func Do[T any](ctx context.Context, op func(context.Context) (T, error), classify Classifier, opts Options) (T, error) {
	return DoWithFallback(ctx, op, nil, classify, opts)
}

// DoWithFallback runs op under the retry policy. Transient failures are
// retried up to MaxRetries times with exponential backoff and jitter; a
// resource-exhausted failure triggers one fallback attempt (when a
// fallback is given) before giving up; permanent failures return
// immediately.
func DoWithFallback[T any](
	ctx context.Context,
	op func(context.Context) (T, error),
	fallback func(context.Context) (T, error),
	classify Classifier,
	opts Options,
) (T, error) {
	var zero T
	if classify == nil {
		classify = DefaultClassifier
	}
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt, opts); err != nil {
				return zero, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		switch class := classify(err); class {
		case Permanent:
			return zero, &ClassifiedError{Class: Permanent, Err: err}
		case ResourceExhausted:
			if fallback == nil {
				return zero, &ClassifiedError{Class: ResourceExhausted, Err: err}
			}
			opts.Logger.Warn("provider resources exhausted, trying fallback", "err", err)
			result, fbErr := fallback(ctx)
			if fbErr != nil {
				return zero, &ClassifiedError{Class: ResourceExhausted,
					Err: fmt.Errorf("fallback failed: %w (original: %v)", fbErr, err)}
			}
			return result, nil
		default:
			if attempt < opts.MaxRetries {
				opts.Logger.Warn("transient failure, will retry",
					"attempt", attempt+1, "max_retries", opts.MaxRetries, "err", err)
			}
		}
	}

	return zero, &ClassifiedError{Class: Transient,
		Err: fmt.Errorf("failed after %d attempts: %w", opts.MaxRetries+1, lastErr)}
}

// sleepBackoff waits base*2^(attempt-1) capped at MaxBackoff, plus up
// to half that again in jitter to avoid thundering herds.
func sleepBackoff(ctx context.Context, attempt int, opts Options) error {
	backoff := opts.BackoffBase << (attempt - 1)
	if backoff > opts.MaxBackoff || backoff <= 0 {
		backoff = opts.MaxBackoff
	}
	backoff += time.Duration(rand.Int64N(int64(backoff/2 + 1)))

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
