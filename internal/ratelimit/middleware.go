package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"kvault/pkg/platform/httputil"
	"kvault/pkg/requestcontext"
)

type Limiter struct {
	store    Store
	policy   Policy
	logger   *slog.Logger
	metrics  *Metrics
	disabled bool
	now      func() time.Time
}

type Option func(*Limiter)

func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithDisabled turns the limiter into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(l *Limiter) {
		l.disabled = disabled
	}
}

func New(store Store, policy Policy, logger *slog.Logger, opts ...Option) *Limiter {
	l := &Limiter{store: store, policy: policy, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if l.disabled {
		logger.Info("rate limiting disabled")
	}
	return l
}

type exceededResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	RetryAfter       int    `json:"retry_after"`
}

// PerClient limits requests per client address within class. Store failures
// fail open and are logged.
func (l *Limiter) PerClient(class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l.disabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, err := l.store.Allow(ctx, class+":"+ip, l.policy.Limit, l.policy.Window)
			if err != nil {
				l.metrics.incStoreError()
				l.logger.ErrorContext(ctx, "rate limit check failed",
					"class", class,
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				l.metrics.incDenied(class)
				l.logger.WarnContext(ctx, "rate limit exceeded",
					"class", class,
					"request_id", requestcontext.RequestID(ctx),
				)
				retry := result.RetryAfter(l.now())
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
					Error:            "rate_limit_exceeded",
					ErrorDescription: "too many requests, try again later",
					RetryAfter:       retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
