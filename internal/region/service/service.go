package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"kvault/internal/region/metrics"
	"kvault/internal/region/models"
	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
	audit "kvault/pkg/platform/audit"
	"kvault/pkg/platform/middleware/metadata"
	"kvault/pkg/platform/sentinel"
	"kvault/pkg/requestcontext"
)

type Store interface {
	CreateIfNameAvailable(ctx context.Context, region *models.Region) error
	FindByID(ctx context.Context, regionID id.RegionID) (*models.Region, error)
	FindByName(ctx context.Context, name string) (*models.Region, error)
	List(ctx context.Context) ([]*models.Region, error)
}

type AuditPublisher interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service owns the region registry.
type Service struct {
	regions        Store
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

func New(regions Store, opts ...Option) *Service {
	s := &Service{regions: regions}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// List returns all regions. It is public: registration needs it before a user exists.
func (s *Service) List(ctx context.Context) ([]*models.Region, error) {
	regions, err := s.regions.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list regions")
	}
	if regions == nil {
		regions = []*models.Region{}
	}
	return regions, nil
}

// Create registers a new region. Admin only.
func (s *Service) Create(ctx context.Context, actor id.Actor, name string) (*models.Region, error) {
	if actor.Role != id.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}

	region, err := models.NewRegion(id.RegionID(uuid.New()), name, requestcontext.Now(ctx))
	if err != nil {
		if de, ok := dErrors.As(err); ok && de.Code == dErrors.CodeInvariantViolation {
			return nil, dErrors.New(dErrors.CodeValidation, de.Message)
		}
		return nil, err
	}

	if err := s.regions.CreateIfNameAvailable(ctx, region); err != nil {
		return nil, wrapRegionErr(err, "failed to create region")
	}

	details := metadata.Describe(ctx)
	details["name"] = region.Name
	s.recordAudit(ctx, audit.Entry{
		ActorID:    actor.ID,
		RegionID:   actor.RegionID,
		Action:     audit.ActionRegionCreated,
		TargetType: audit.TargetRegion,
		TargetID:   region.ID.String(),
		Details:    details,
	})
	s.metrics.IncrementRegionsCreated()
	s.logger.InfoContext(ctx, "region created",
		"region_id", region.ID.String(),
		"actor_id", actor.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return region, nil
}

// Exists reports whether a region id is registered.
func (s *Service) Exists(ctx context.Context, regionID id.RegionID) (bool, error) {
	_, err := s.regions.FindByID(ctx, regionID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load region")
}

// Ensure returns the named region, creating it when absent. Used for bootstrap
// seeding before any admin exists, so it is not audited.
func (s *Service) Ensure(ctx context.Context, name string) (*models.Region, error) {
	existing, err := s.regions.FindByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load region")
	}

	region, err := models.NewRegion(id.RegionID(uuid.New()), name, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid seed region")
	}
	if err := s.regions.CreateIfNameAvailable(ctx, region); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			winner, err := s.regions.FindByName(ctx, name)
			if err != nil {
				return nil, wrapRegionErr(err, "failed to load region")
			}
			return winner, nil
		}
		return nil, wrapRegionErr(err, "failed to create region")
	}
	return region, nil
}

func (s *Service) recordAudit(ctx context.Context, entry audit.Entry) {
	if s.auditPublisher == nil {
		return
	}
	s.auditPublisher.Record(ctx, entry)
}

func wrapRegionErr(err error, action string) error {
	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "region already exists")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "region not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, action)
	}
}
