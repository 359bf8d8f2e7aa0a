package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvault/pkg/domain"
	"kvault/pkg/requestcontext"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (s stubValidator) ValidateToken(string) (*Claims, error) { return s.claims, s.err }

type stubRevocation struct {
	revoked bool
	err     error
}

func (s stubRevocation) IsRevoked(context.Context, string) (bool, error) { return s.revoked, s.err }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func validClaims() *Claims {
	return &Claims{
		UserID:   uuid.NewString(),
		Role:     "reviewer",
		RegionID: uuid.NewString(),
		JTI:      "jti-1",
	}
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, header string) (*httptest.ResponseRecorder, *domain.Actor) {
	t.Helper()
	var seen *domain.Actor
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a, ok := requestcontext.Actor(r.Context()); ok {
			seen = &a
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/artefacts", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireAuth(t *testing.T) {
	t.Run("missing header is 401", func(t *testing.T) {
		rec, actor := serve(t, RequireAuth(stubValidator{claims: validClaims()}, nil, discardLogger()), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, actor)
	})

	t.Run("invalid token is 401", func(t *testing.T) {
		rec, _ := serve(t, RequireAuth(stubValidator{err: errors.New("bad sig")}, nil, discardLogger()), "Bearer x")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed role claim is 401", func(t *testing.T) {
		claims := validClaims()
		claims.Role = "root"
		rec, _ := serve(t, RequireAuth(stubValidator{claims: claims}, nil, discardLogger()), "Bearer x")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revoked token is 401", func(t *testing.T) {
		rec, _ := serve(t, RequireAuth(stubValidator{claims: validClaims()}, stubRevocation{revoked: true}, discardLogger()), "Bearer x")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revocation backend failure is 500", func(t *testing.T) {
		rec, _ := serve(t, RequireAuth(stubValidator{claims: validClaims()}, stubRevocation{err: errors.New("redis down")}, discardLogger()), "Bearer x")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("valid token resolves actor", func(t *testing.T) {
		claims := validClaims()
		rec, actor := serve(t, RequireAuth(stubValidator{claims: claims}, stubRevocation{}, discardLogger()), "Bearer x")
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, actor)
		assert.Equal(t, domain.RoleReviewer, actor.Role)
		assert.Equal(t, claims.UserID, actor.ID.String())
		assert.Equal(t, claims.RegionID, actor.RegionID.String())
	})
}

func TestRequireRole(t *testing.T) {
	chain := func(role string) func(http.Handler) http.Handler {
		claims := validClaims()
		claims.Role = role
		authMW := RequireAuth(stubValidator{claims: claims}, nil, discardLogger())
		roleMW := RequireRole(discardLogger(), domain.RoleAdmin)
		return func(next http.Handler) http.Handler { return authMW(roleMW(next)) }
	}

	rec, _ := serve(t, chain("user"), "Bearer x")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = serve(t, chain("admin"), "Bearer x")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = serve(t, RequireRole(discardLogger(), domain.RoleAdmin), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
