package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	artefacthandler "kvault/internal/artefact/handler"
	"kvault/internal/artefact/models"
	artefactservice "kvault/internal/artefact/service"
	artefactstore "kvault/internal/artefact/store"
	audithandler "kvault/internal/audit/handler"
	"kvault/internal/blob"
	identityhandler "kvault/internal/identity/handler"
	identitymodels "kvault/internal/identity/models"
	identityservice "kvault/internal/identity/service"
	"kvault/internal/identity/store/revocation"
	"kvault/internal/identity/store/user"
	"kvault/internal/identity/token"
	"kvault/internal/ratelimit"
	regionhandler "kvault/internal/region/handler"
	regionservice "kvault/internal/region/service"
	regionstore "kvault/internal/region/store"
	"kvault/pkg/platform/audit"
	auditmemory "kvault/pkg/platform/audit/store/memory"
	"kvault/pkg/platform/audit/publisher"
	"kvault/pkg/testutil"
)

// RouterSuite drives the assembled router over in-memory stores.
type RouterSuite struct {
	suite.Suite
	router     http.Handler
	regionID   string
	adminToken string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog := publisher.NewPublisher(auditmemory.NewInMemoryStore(), publisher.WithLogger(logger))

	regions := regionservice.New(regionstore.NewInMemory(), regionservice.WithAuditPublisher(auditLog))
	region, err := regions.Ensure(ctx, "North")
	s.Require().NoError(err)
	s.regionID = region.ID.String()

	tokens := token.NewService("router-test-key", "kvault", "kvault-api", time.Hour)
	trl := revocation.NewInMemoryTRL(nil)
	identity := identityservice.New(user.NewInMemory(), regions, tokens, trl, identityservice.WithAuditPublisher(auditLog))
	_, err = identity.SeedAdmin(ctx, "Root", "admin@example.com", "admin-password", region.ID)
	s.Require().NoError(err)

	artefacts := artefactservice.New(artefactstore.NewInMemory(), blob.NewMemory(""),
		artefactservice.WithLogger(logger),
		artefactservice.WithAuditPublisher(auditLog),
	)

	s.router = NewRouter(Deps{
		Logger:       logger,
		Tokens:       token.NewMiddlewareAdapter(tokens),
		Revocations:  trl,
		MaxBodyBytes: 4 << 20,
		MetricsToken: "ops",
		Checks: map[string]HealthCheck{
			"store": func(context.Context) error { return nil },
		},
		Public: []PublicRegistrar{
			identityhandler.New(identity, logger),
			regionhandler.New(regions, logger),
		},
		Authenticated: []Registrar{
			identityhandler.New(identity, logger),
			artefacthandler.New(artefacts, logger, 2<<20),
			audithandler.New(auditLog, logger, audit.MaxListLimit),
		},
		AdminOnly: []Registrar{
			regionhandler.New(regions, logger),
		},
	})
	s.adminToken = s.login("admin@example.com", "admin-password")
}

func (s *RouterSuite) login(email, password string) string {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": password}))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[identitymodels.AuthResult](s.T(), rr).Token
}

func (s *RouterSuite) registerUser(email string) string {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", map[string]string{
		"name":     "Ada",
		"email":    email,
		"password": "correct-horse",
		"regionId": s.regionID,
	}))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[identitymodels.AuthResult](s.T(), rr).Token
}

func (s *RouterSuite) as(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func (s *RouterSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "ok")
}

func (s *RouterSuite) TestMetricsNeedsOpsToken() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	s.Equal(http.StatusUnauthorized, rr.Code)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/metrics")
	req.Header.Set("X-Ops-Token", "ops")
	rr = testutil.DoRequest(s.router, req)
	s.Equal(http.StatusOK, rr.Code)
}

func (s *RouterSuite) TestAuthenticationBoundary() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/artefacts"))
	s.Equal(http.StatusUnauthorized, rr.Code)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/regions"))
	s.Equal(http.StatusOK, rr.Code)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nowhere"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *RouterSuite) TestRegionCreationIsAdminOnly() {
	userToken := s.registerUser("ada@example.com")

	req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/regions", map[string]string{"name": "South"}), userToken)
	s.Equal(http.StatusForbidden, testutil.DoRequest(s.router, req).Code)

	req = s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/regions", map[string]string{"name": "South"}), s.adminToken)
	s.Equal(http.StatusCreated, testutil.DoRequest(s.router, req).Code)
}

func (s *RouterSuite) TestGovernanceFlow() {
	t := s.T()
	userToken := s.registerUser("ada@example.com")

	req := testutil.NewMultipartRequest(t, http.MethodPost, "/artefacts", map[string]string{
		"title": "Incident runbook",
		"tags":  "ops,oncall",
	}, &testutil.MultipartFile{Name: "runbook.md", Contents: []byte("# steps")})
	rr := testutil.DoRequest(s.router, s.as(req, userToken))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := testutil.UnmarshalResponse[models.Artefact](t, rr)
	assert.Equal(t, models.StatusDraft, created.Status)

	rr = testutil.DoRequest(s.router, s.as(testutil.NewRequest(t, http.MethodGet, "/governance/pending"), userToken))
	s.Equal(http.StatusForbidden, rr.Code)

	rr = testutil.DoRequest(s.router, s.as(testutil.NewJSONRequest(t, http.MethodPost, "/governance/submit",
		map[string]string{"artefactId": created.ID.String()}), userToken))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = testutil.DoRequest(s.router, s.as(testutil.NewRequest(t, http.MethodGet, "/governance/pending"), s.adminToken))
	require.Equal(t, http.StatusOK, rr.Code)
	pending := testutil.UnmarshalResponse[[]models.Artefact](t, rr)
	require.Len(t, *pending, 1)

	rr = testutil.DoRequest(s.router, s.as(testutil.NewJSONRequest(t, http.MethodPost, "/governance/decision", map[string]string{
		"artefactId": created.ID.String(),
		"decision":   "approved",
		"reason":     "clear and current",
	}), s.adminToken))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decided := testutil.UnmarshalResponse[models.Artefact](t, rr)
	assert.Equal(t, models.StatusApproved, decided.Status)
	require.NotNil(t, decided.ReviewerDecision)

	rr = testutil.DoRequest(s.router, s.as(testutil.NewRequest(t, http.MethodGet, "/recommendations/auto?tag=ops"), s.registerUser("grace@example.com")))
	require.Equal(t, http.StatusOK, rr.Code)
	recs := testutil.UnmarshalResponse[[]models.Artefact](t, rr)
	require.Len(t, *recs, 1)

	rr = testutil.DoRequest(s.router, s.as(testutil.NewRequest(t, http.MethodGet, "/audit"), userToken))
	require.Equal(t, http.StatusOK, rr.Code)
	entries := testutil.UnmarshalResponse[[]audit.Entry](t, rr)
	actions := make([]audit.Action, 0, len(*entries))
	for _, e := range *entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, audit.ActionArtefactCreated)
	assert.Contains(t, actions, audit.ActionArtefactSubmittedForReview)
	assert.NotContains(t, actions, audit.ActionArtefactReviewDecision)
}

func (s *RouterSuite) TestLogoutRevokesToken() {
	userToken := s.registerUser("ada@example.com")

	rr := testutil.DoRequest(s.router, s.as(testutil.NewRequest(s.T(), http.MethodPost, "/auth/logout"), userToken))
	s.Require().Less(rr.Code, 300, rr.Body.String())

	rr = testutil.DoRequest(s.router, s.as(testutil.NewRequest(s.T(), http.MethodGet, "/auth/me"), userToken))
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func TestHealthReportsFailedCheck(t *testing.T) {
	h := handleHealth(map[string]HealthCheck{
		"db":    func(context.Context) error { return errors.New("refused") },
		"cache": func(context.Context) error { return nil },
	})
	rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/health"))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"db":"unavailable","cache":"ok"}}`, rr.Body.String())
}

func TestPublicRoutesAreThrottled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	regions := regionservice.New(regionstore.NewInMemory())
	limiter := ratelimit.New(ratelimit.NewInMemory(), ratelimit.Policy{Limit: 2, Window: time.Minute}, logger)

	router := NewRouter(Deps{
		Logger:      logger,
		PublicLimit: limiter.PerClient("public"),
		Public:      []PublicRegistrar{regionhandler.New(regions, logger)},
	})

	for range 2 {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/regions"))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/regions"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
	assert.Equal(t, http.StatusOK, rr.Code, "operational routes are not throttled")
}
