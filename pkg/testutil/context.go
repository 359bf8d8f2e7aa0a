package testutil

import (
	"net/http"

	"kvault/pkg/domain"
	"kvault/pkg/requestcontext"
)

// WithActor attaches a resolved actor to the request context,
// the same state RequireAuth leaves behind for authenticated requests.
func WithActor(req *http.Request, actor domain.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithToken attaches the bearer token identity used by logout.
func WithToken(req *http.Request, token requestcontext.Token) *http.Request {
	return req.WithContext(requestcontext.WithToken(req.Context(), token))
}
