package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kvault/internal/region/models"
	"kvault/internal/region/store"
	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
	audit "kvault/pkg/platform/audit"
	"kvault/pkg/platform/sentinel"
	"kvault/pkg/requestcontext"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (p *recordingPublisher) Record(_ context.Context, e audit.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemory
	audit   *recordingPublisher
	service *Service
	admin   id.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s.store = store.NewInMemory()
	s.audit = &recordingPublisher{}
	s.service = New(s.store, WithAuditPublisher(s.audit))
	s.admin = id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleAdmin, RegionID: id.RegionID(uuid.New())}
}

func (s *ServiceSuite) TestCreate() {
	s.Run("admin creates a region and it is audited", func() {
		region, err := s.service.Create(s.ctx, s.admin, "  North ")
		s.Require().NoError(err)
		s.Equal("North", region.Name)

		s.Require().Len(s.audit.entries, 1)
		entry := s.audit.entries[0]
		s.Equal(audit.ActionRegionCreated, entry.Action)
		s.Equal(audit.TargetRegion, entry.TargetType)
		s.Equal(region.ID.String(), entry.TargetID)
		s.Equal(s.admin.ID, entry.ActorID)
		s.Equal("North", entry.Details["name"])
	})

	s.Run("duplicate names conflict regardless of case", func() {
		_, err := s.service.Create(s.ctx, s.admin, "NORTH")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("empty names are rejected", func() {
		_, err := s.service.Create(s.ctx, s.admin, " ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("non-admins are forbidden", func() {
		for _, role := range []id.Role{id.RoleUser, id.RoleReviewer} {
			actor := s.admin
			actor.Role = role
			_, err := s.service.Create(s.ctx, actor, "South")
			s.True(dErrors.HasCode(err, dErrors.CodeForbidden), role)
		}
	})
}

func (s *ServiceSuite) TestListAndExists() {
	empty, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.NotNil(empty)
	s.Empty(empty)

	region, err := s.service.Create(s.ctx, s.admin, "East")
	s.Require().NoError(err)

	ok, err := s.service.Exists(s.ctx, region.ID)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.service.Exists(s.ctx, id.RegionID(uuid.New()))
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ServiceSuite) TestEnsureIsIdempotent() {
	first, err := s.service.Ensure(s.ctx, "Head Office")
	s.Require().NoError(err)
	second, err := s.service.Ensure(s.ctx, "head office")
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
	s.Empty(s.audit.entries)
}

// racingStore loses every create to a concurrent writer. lookups holds the
// successive FindByName results.
type racingStore struct {
	*store.InMemory
	lookups []func() (*models.Region, error)
}

func (r *racingStore) CreateIfNameAvailable(context.Context, *models.Region) error {
	return sentinel.ErrAlreadyUsed
}

func (r *racingStore) FindByName(context.Context, string) (*models.Region, error) {
	next := r.lookups[0]
	r.lookups = r.lookups[1:]
	return next()
}

func (s *ServiceSuite) TestEnsureAfterLosingTheCreateRace() {
	notFound := func() (*models.Region, error) { return nil, sentinel.ErrNotFound }

	s.Run("returns the concurrent writer's region", func() {
		winner := &models.Region{ID: id.RegionID(uuid.New()), Name: "Head Office"}
		svc := New(&racingStore{InMemory: store.NewInMemory(), lookups: []func() (*models.Region, error){
			notFound,
			func() (*models.Region, error) { return winner, nil },
		}})

		got, err := svc.Ensure(s.ctx, "Head Office")
		s.Require().NoError(err)
		s.Equal(winner.ID, got.ID)
	})

	s.Run("store errors on the reload are translated", func() {
		svc := New(&racingStore{InMemory: store.NewInMemory(), lookups: []func() (*models.Region, error){
			notFound, notFound,
		}})

		_, err := svc.Ensure(s.ctx, "Head Office")
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
		s.NotErrorIs(err, sentinel.ErrNotFound)
	})
}
