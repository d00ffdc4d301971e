// Package retry classifies job failures and computes requeue delays.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"podforge/internal/config"
	"podforge/internal/queue"
	"podforge/internal/services"
)

// Class is the retry classification of a failure.
type Class string

const (
	ClassTimeout   Class = "timeout"
	ClassRateLimit Class = "rate_limit"
	ClassTransient Class = "transient"
	ClassGenerate  Class = "generation"
	ClassPublish   Class = "publish"
	ClassFatal     Class = "fatal"
)

// Retryable reports whether the class may be retried while attempts remain.
func (c Class) Retryable() bool {
	switch c {
	case ClassTimeout, ClassRateLimit, ClassTransient, ClassGenerate:
		return true
	default:
		return false
	}
}

// Classify maps an error onto a retry class using the services markers.
// Unmarked errors are treated as transient; context deadline errors count
// as timeouts.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrAuthorization),
		errors.Is(err, services.ErrConfiguration),
		errors.Is(err, services.ErrNotFound):
		return ClassFatal
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, services.ErrRateLimit):
		return ClassRateLimit
	case errors.Is(err, services.ErrGeneration):
		return ClassGenerate
	case errors.Is(err, services.ErrPublish):
		return ClassPublish
	default:
		return ClassTransient
	}
}

// Decision is the verdict for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
	Class Class
}

// Policy computes exponential backoff: InitialDelay * Multiplier^attempt,
// optionally scaled by a jitter factor in [0.5, 1.5), capped at MaxDelay.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool

	// Float returns values in [0,1); nil uses math/rand/v2.
	Float func() float64
}

// FromConfig builds a Policy from the engine and retry configuration.
func FromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxRetries:   cfg.Engine.MaxRetries,
		InitialDelay: time.Duration(cfg.Retry.InitialDelayMillis) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxDelayMillis) * time.Millisecond,
		Multiplier:   cfg.Retry.Multiplier,
		Jitter:       cfg.Retry.Jitter,
	}
}

// ShouldRetry decides whether job should be requeued after err. The job's
// Attempt is the number of retries already consumed.
func (p Policy) ShouldRetry(job *queue.Job, err error) Decision {
	class := Classify(err)
	if err == nil || !class.Retryable() {
		return Decision{Class: class}
	}
	maxAttempts := p.MaxRetries
	if job.MaxAttempts > 0 {
		maxAttempts = job.MaxAttempts
	}
	if job.Attempt >= maxAttempts {
		return Decision{Class: class}
	}
	return Decision{Retry: true, Delay: p.Delay(job.Attempt), Class: class}
}

// Delay returns the backoff before retry number attempt (zero-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.Jitter {
		delay *= 0.5 + p.random()
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay < 0 || math.IsInf(delay, 0) || math.IsNaN(delay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

func (p Policy) random() float64 {
	if p.Float != nil {
		return p.Float()
	}
	return rand.Float64()
}
