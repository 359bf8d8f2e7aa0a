// Package httptransport assembles the public HTTP surface: the shared
// middleware chain, operational endpoints and every domain handler.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kvault/internal/platform/metrics"
	id "kvault/pkg/domain"
	"kvault/pkg/platform/httputil"
	adminmw "kvault/pkg/platform/middleware/admin"
	authmw "kvault/pkg/platform/middleware/auth"
	"kvault/pkg/platform/middleware/metadata"
	request "kvault/pkg/platform/middleware/request"
	"kvault/pkg/platform/middleware/requesttime"
)

// PublicRegistrar mounts routes reachable without a credential.
type PublicRegistrar interface {
	RegisterPublic(r chi.Router)
}

// Registrar mounts routes that run after RequireAuth.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Logger       *slog.Logger
	HTTPMetrics  *metrics.HTTP
	Tokens       authmw.TokenValidator
	Revocations  authmw.TokenRevocationChecker
	MaxBodyBytes int64
	MetricsToken string
	Checks       map[string]HealthCheck
	// PublicLimit wraps every public route; nil leaves them unthrottled.
	PublicLimit  func(http.Handler) http.Handler

	// Public routes mount before authentication, Authenticated after it and
	// AdminOnly behind an additional admin role gate.
	Public        []PublicRegistrar
	Authenticated []Registrar
	AdminOnly     []Registrar
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(request.Logger(d.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(d.HTTPMetrics.Middleware)
	r.Use(request.MaxBodyBytes(d.MaxBodyBytes))

	r.Get("/health", handleHealth(d.Checks))
	r.With(adminmw.RequireOpsToken(d.MetricsToken, d.Logger)).Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if d.PublicLimit != nil {
			r.Use(d.PublicLimit)
		}
		for _, p := range d.Public {
			p.RegisterPublic(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(d.Tokens, d.Revocations, d.Logger))
		for _, h := range d.Authenticated {
			h.Register(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(d.Logger, id.RoleAdmin))
			for _, h := range d.AdminOnly {
				h.Register(r)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{
			"error":             "not_found",
			"error_description": "route not found",
		})
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
