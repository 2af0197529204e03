// Package breakers wraps sony/gobreaker with the trip policy used for external APIs.
package breakers

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	cb "github.com/sony/gobreaker"

	"positioning-lab/internal/observability"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// clientError marks a failure caused by the request itself, e.g. an unknown model.
// It is returned to the caller but not counted against the dependency.
type clientError struct {
	err error
}

func (e *clientError) Error() string { return e.err.Error() }
func (e *clientError) Unwrap() error { return e.err }

// ClientError wraps err so that Do reports it without counting a failure.
// A nil err stays nil.
func ClientError(err error) error {
	if err == nil {
		return nil
	}
	return &clientError{err: err}
}

// Settings tune a breaker. Zero values take the defaults.
type Settings struct {
	Interval            time.Duration // closed-state counter reset period (default 60s)
	Timeout             time.Duration // open-state duration before half-open (default 60s)
	ConsecutiveFailures uint32        // trip after this many failures in a row (default 3)
	MinRequests         uint32        // requests before the ratio rule applies (default 20)
	FailureRatio        float64       // trip when failures/requests exceeds this (default 0.05)
}

// Breaker guards calls to one external dependency.
type Breaker struct {
	cb *cb.CircuitBreaker
}

// New creates a breaker. State changes are logged and exported as a gauge.
func New(name string, s Settings, log zerolog.Logger) *Breaker {
	if s.Interval == 0 {
		s.Interval = 60 * time.Second
	}
	if s.Timeout == 0 {
		s.Timeout = 60 * time.Second
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 3
	}
	if s.MinRequests == 0 {
		s.MinRequests = 20
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = 0.05
	}

	st := cb.Settings{
		Name:     name,
		Interval: s.Interval,
		Timeout:  s.Timeout,
		ReadyToTrip: func(counts cb.Counts) bool {
			if counts.ConsecutiveFailures >= s.ConsecutiveFailures {
				return true
			}
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > s.FailureRatio
		},
		// Caller cancellation and rejected requests say nothing about the dependency's health.
		IsSuccessful: func(err error) bool {
			var ce *clientError
			return err == nil || errors.Is(err, context.Canceled) || errors.As(err, &ce)
		},
		OnStateChange: func(name string, from, to cb.State) {
			observability.SetBreakerState(name, int(to))
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	observability.SetBreakerState(name, int(cb.StateClosed))
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Do runs fn through the breaker. Rejections are reported as ErrOpen.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests) {
		return zero, ErrOpen
	}
	var ce *clientError
	if errors.As(err, &ce) {
		return zero, ce.err
	}
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

// State returns the current breaker state as a string.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
