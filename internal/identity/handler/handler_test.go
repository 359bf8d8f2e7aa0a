package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"kvault/internal/identity/models"
	"kvault/internal/identity/service"
	"kvault/internal/identity/store/revocation"
	"kvault/internal/identity/store/user"
	"kvault/internal/identity/token"
	id "kvault/pkg/domain"
	authmw "kvault/pkg/platform/middleware/auth"
	"kvault/pkg/testutil"
)

type anyRegion struct{}

func (anyRegion) Exists(context.Context, id.RegionID) (bool, error) { return true, nil }

type HandlerSuite struct {
	suite.Suite
	router http.Handler
	region id.RegionID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	tokens := token.NewService("test-key", "kvault", "kvault-api", time.Hour)
	trl := revocation.NewInMemoryTRL(nil)
	svc := service.New(user.NewInMemory(), anyRegion{}, tokens, trl)
	h := New(svc, logger)

	r := chi.NewRouter()
	h.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(token.NewMiddlewareAdapter(tokens), trl, logger))
		h.Register(r)
	})
	s.router = r
	s.region = id.RegionID(uuid.New())
}

func (s *HandlerSuite) registerAndLogin(email string) string {
	t := s.T()
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/register", map[string]string{
		"name": "Ada", "email": email, "password": "pw-123456", "regionId": s.region.String(),
	}))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": "pw-123456",
	}))
	s.Require().Equal(http.StatusOK, rr.Code)
	res := testutil.UnmarshalResponse[models.AuthResult](t, rr)
	return res.Token
}

func (s *HandlerSuite) authed(method, path, bearer string) *http.Request {
	req := testutil.NewRequest(s.T(), method, path)
	req.Header.Set("Authorization", "Bearer "+bearer)
	return req
}

func (s *HandlerSuite) TestSessionFlow() {
	bearer := s.registerAndLogin("ada@example.com")

	rr := testutil.DoRequest(s.router, s.authed(http.MethodGet, "/auth/me", bearer))
	s.Require().Equal(http.StatusOK, rr.Code)
	testutil.AssertJSONContains(s.T(), rr, "email", "ada@example.com")

	rr = testutil.DoRequest(s.router, s.authed(http.MethodPost, "/auth/logout", bearer))
	s.Equal(http.StatusNoContent, rr.Code)

	rr = testutil.DoRequest(s.router, s.authed(http.MethodGet, "/auth/me", bearer))
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *HandlerSuite) TestInvalidCredentials() {
	s.registerAndLogin("grace@example.com")

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{
		"email": "grace@example.com", "password": "wrong",
	}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestRegisterValidation() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", map[string]string{
		"name": "NoEmail", "password": "pw",
	}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func TestMe_RequiresToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	tokens := token.NewService("k", "i", "a", time.Hour)
	h := New(service.New(user.NewInMemory(), anyRegion{}, tokens, revocation.NewInMemoryTRL(nil)), logger)
	r := chi.NewRouter()
	r.Use(authmw.RequireAuth(token.NewMiddlewareAdapter(tokens), nil, logger))
	h.Register(r)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/auth/me"))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "unauthorized")
}
