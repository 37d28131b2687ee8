//
// Tencent is pleased to support the open source community by making trpc-graph-state available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package state

import (
	"math"
	"math/rand"
	"time"
)

// Default retry policy parameters.
const (
	DefaultRetryInitialInterval = 500 * time.Millisecond
	DefaultRetryBackoffFactor   = 2.0
	DefaultRetryMaxInterval     = 128 * time.Second
	DefaultRetryMaxAttempts     = 3
)

// RetryPolicy is an immutable retry decision table consulted by the step
// executor when a node computation fails. It never sleeps or schedules;
// callers own the waiting.
type RetryPolicy struct {
	initialInterval time.Duration
	backoffFactor   float64
	maxInterval     time.Duration
	maxAttempts     int
	jitter          bool
	retryOn         func(error) bool
}

// RetryOption configures a RetryPolicy at construction time.
type RetryOption func(*RetryPolicy)

// WithInitialInterval sets the interval before the first retry.
func WithInitialInterval(d time.Duration) RetryOption {
	return func(p *RetryPolicy) { p.initialInterval = d }
}

// WithBackoffFactor sets the multiplier applied per attempt.
func WithBackoffFactor(f float64) RetryOption {
	return func(p *RetryPolicy) { p.backoffFactor = f }
}

// WithMaxInterval caps the computed backoff interval.
func WithMaxInterval(d time.Duration) RetryOption {
	return func(p *RetryPolicy) { p.maxInterval = d }
}

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) RetryOption {
	return func(p *RetryPolicy) { p.maxAttempts = n }
}

// WithJitter enables bounded random jitter on computed intervals.
func WithJitter(enabled bool) RetryOption {
	return func(p *RetryPolicy) { p.jitter = enabled }
}

// WithRetryOn sets the predicate deciding whether a failure is retryable.
// A nil predicate retries every failure.
func WithRetryOn(pred func(error) bool) RetryOption {
	return func(p *RetryPolicy) { p.retryOn = pred }
}

// NewRetryPolicy creates an immutable retry policy. It is typically built
// once per node registration.
func NewRetryPolicy(opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		initialInterval: DefaultRetryInitialInterval,
		backoffFactor:   DefaultRetryBackoffFactor,
		maxInterval:     DefaultRetryMaxInterval,
		maxAttempts:     DefaultRetryMaxAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the total number of attempts allowed.
func (p *RetryPolicy) MaxAttempts() int { return p.maxAttempts }

// Decision is the outcome of consulting a RetryPolicy for one failure.
type Decision struct {
	// Retry reports whether the executor should retry the node.
	Retry bool
	// Wait is how long to wait before the next attempt.
	Wait time.Duration
}

// Interval returns the backoff interval for the given 1-based attempt:
// initial*factor^(attempt-1), capped at the maximum interval.
func (p *RetryPolicy) Interval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.initialInterval) * math.Pow(p.backoffFactor, float64(attempt-1))
	if d > float64(p.maxInterval) || math.IsInf(d, 1) {
		return p.maxInterval
	}
	return time.Duration(d)
}

// Decide reports whether the executor should retry after the given failed
// 1-based attempt and how long to wait before the next one.
func (p *RetryPolicy) Decide(attempt int, failure error) Decision {
	if attempt >= p.maxAttempts {
		return Decision{}
	}
	if p.retryOn != nil && !p.retryOn(failure) {
		return Decision{}
	}
	wait := p.Interval(attempt)
	if p.jitter && wait > 0 {
		wait += time.Duration(rand.Int63n(int64(wait)/2 + 1))
		if wait > p.maxInterval {
			wait = p.maxInterval
		}
	}
	return Decision{Retry: true, Wait: wait}
}
