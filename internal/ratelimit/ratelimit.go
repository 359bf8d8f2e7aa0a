// Package ratelimit throttles unauthenticated endpoints per client address
// with a sliding window, so credential guessing and registration floods are
// bounded before they reach the identity service.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until a denied caller may retry.
func (r *Result) RetryAfter(now time.Time) int {
	wait := r.ResetAt.Sub(now).Seconds()
	if wait <= 0 {
		return 1
	}
	return int(math.Ceil(wait))
}

// Store counts requests per key inside a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Policy is the budget applied to one class of endpoints.
type Policy struct {
	Limit  int
	Window time.Duration
}
