package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kvault/internal/identity/metrics"
	"kvault/internal/identity/models"
	"kvault/internal/identity/secrets"
	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
	audit "kvault/pkg/platform/audit"
	"kvault/pkg/platform/middleware/metadata"
	"kvault/pkg/platform/sentinel"
	"kvault/pkg/requestcontext"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type RegionChecker interface {
	Exists(ctx context.Context, regionID id.RegionID) (bool, error)
}

type TokenIssuer interface {
	IssueAccessToken(user *models.User, now time.Time) (string, time.Time, error)
}

type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type AuditPublisher interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service registers users, authenticates them, and revokes their tokens.
type Service struct {
	users          UserStore
	regions        RegionChecker
	tokens         TokenIssuer
	revocations    RevocationList
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(users UserStore, regions RegionChecker, tokens TokenIssuer, revocations RevocationList, opts ...Option) *Service {
	s := &Service{users: users, regions: regions, tokens: tokens, revocations: revocations}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Register creates an ordinary user in an existing region and signs them in.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResult, error) {
	regionID, err := id.ParseRegionID(req.RegionID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid region")
	}
	exists, err := s.regions.Exists(ctx, regionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid region")
	}

	user, err := s.createUser(ctx, req.Name, req.Email, req.Password, id.RoleUser, regionID)
	if err != nil {
		return nil, err
	}

	details := metadata.Describe(ctx)
	details["email"] = user.Email
	s.recordAudit(ctx, audit.Entry{
		ActorID:    user.ID,
		RegionID:   user.RegionID,
		Action:     audit.ActionUserRegistered,
		TargetType: audit.TargetUser,
		TargetID:   user.ID.String(),
		Details:    details,
	})
	s.metrics.IncrementUsersRegistered()

	return s.issue(ctx, user)
}

// Login exchanges credentials for a token. Unknown email and wrong password
// are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResult, error) {
	invalid := dErrors.New(dErrors.CodeBadRequest, "invalid credentials")

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementLogin("invalid_credentials")
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if err := secrets.Verify(req.Password, user.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			s.metrics.IncrementLogin("invalid_credentials")
			s.logger.InfoContext(ctx, "login rejected",
				"user_id", user.ID.String(),
				"request_id", requestcontext.RequestID(ctx),
			)
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify credentials")
	}

	s.metrics.IncrementLogin("success")
	return s.issue(ctx, user)
}

// Me returns the caller's own profile.
func (s *Service) Me(ctx context.Context, actor id.Actor) (*models.UserView, error) {
	user, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	view := user.View()
	return &view, nil
}

// Logout revokes the presented token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, actor id.Actor, tok requestcontext.Token) error {
	if tok.ID == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "token id required")
	}
	ttl := tok.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.RevokeToken(ctx, tok.ID, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}

	s.recordAudit(ctx, audit.Entry{
		ActorID:    actor.ID,
		RegionID:   actor.RegionID,
		Action:     audit.ActionUserLoggedOut,
		TargetType: audit.TargetUser,
		TargetID:   actor.ID.String(),
		Details:    metadata.Describe(ctx),
	})
	s.metrics.IncrementLogouts()
	return nil
}

// SeedAdmin creates the bootstrap admin if the email is not yet registered.
func (s *Service) SeedAdmin(ctx context.Context, name, email, password string, regionID id.RegionID) (*models.User, error) {
	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	user, err := s.createUser(ctx, name, email, password, id.RoleAdmin, regionID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "seeded admin user",
		"user_id", user.ID.String(),
		"region_id", regionID.String(),
	)
	return user, nil
}

func (s *Service) createUser(ctx context.Context, name, email, password string, role id.Role, regionID id.RegionID) (*models.User, error) {
	hash, err := secrets.Hash(password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil, dErrors.New(dErrors.CodeValidation, "password is invalid")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	user, err := models.NewUser(id.UserID(uuid.New()), name, email, hash, role, regionID, requestcontext.Now(ctx))
	if err != nil {
		if de, ok := dErrors.As(err); ok && de.Code == dErrors.CodeInvariantViolation {
			return nil, dErrors.New(dErrors.CodeValidation, de.Message)
		}
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeValidation, "email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	return user, nil
}

func (s *Service) issue(ctx context.Context, user *models.User) (*models.AuthResult, error) {
	signed, expiresAt, err := s.tokens.IssueAccessToken(user, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	return &models.AuthResult{Token: signed, ExpiresAt: expiresAt, User: user.View()}, nil
}

func (s *Service) recordAudit(ctx context.Context, entry audit.Entry) {
	if s.auditPublisher == nil {
		return
	}
	s.auditPublisher.Record(ctx, entry)
}
