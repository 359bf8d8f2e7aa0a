//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kvault/internal/artefact/models"
	"kvault/internal/artefact/store"
	id "kvault/pkg/domain"
	"kvault/pkg/platform/sentinel"
	"kvault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	owner    id.Actor
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "audit_log", "artefact_versions", "artefacts", "users", "regions"))

	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.owner = id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleUser, RegionID: id.RegionID(uuid.New())}
	_, err := s.postgres.DB.ExecContext(ctx, `INSERT INTO regions (id, name, created_at) VALUES ($1, $2, $3)`,
		uuid.UUID(s.owner.RegionID), "Region "+s.owner.RegionID.String(), s.now)
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, region_id, created_at)
		VALUES ($1, 'Owner', $2, 'x', 'user', $3, $4)`,
		uuid.UUID(s.owner.ID), s.owner.ID.String()+"@example.com", uuid.UUID(s.owner.RegionID), s.now)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) create(title string, tags ...string) *models.Artefact {
	a, err := models.NewArtefact(id.ArtefactID(uuid.New()), s.owner, models.Draft{Title: title, Tags: tags}, s.now)
	s.Require().NoError(err)
	v, err := models.NewVersion(id.VersionID(uuid.New()), a.ID, 1,
		models.File{URL: "https://blob/" + title, ContentID: title, Name: title + ".pdf", Size: 42}, s.owner.ID, "", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), a, v))
	return a
}

func addVersion(cur *models.Artefact, uploader id.UserID, now time.Time) (*models.Version, error) {
	n := cur.ApplyNewVersion(now)
	return models.NewVersion(id.VersionID(uuid.New()), cur.ID, n,
		models.File{URL: "https://blob/next", ContentID: "next", Name: "next.pdf"}, uploader, "", now)
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	a := s.create("Policy v1", "finance", "risk")

	found, err := s.store.FindByID(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a.Title, found.Title)
	s.Equal([]string{"finance", "risk"}, found.Tags)
	s.Equal(models.StatusDraft, found.Status)
	s.Nil(found.ReviewerDecision)
	s.True(a.CreatedAt.Equal(found.CreatedAt))

	versions, err := s.store.ListVersions(ctx, a.ID)
	s.Require().NoError(err)
	s.Require().Len(versions, 1)
	s.Equal(int64(42), versions[0].Size)
}

func (s *PostgresStoreSuite) TestDecisionPersists() {
	ctx := context.Background()
	a := s.create("Reviewed")
	reviewer := id.UserID(uuid.New())

	_, err := s.store.Execute(ctx, a.ID, func(cur *models.Artefact) error { return cur.CanSubmit() },
		func(cur *models.Artefact) (*models.Version, error) {
			cur.ApplySubmit(s.now)
			return nil, nil
		})
	s.Require().NoError(err)
	_, err = s.store.Execute(ctx, a.ID, func(cur *models.Artefact) error { return cur.CanDecide(models.DecisionApproved) },
		func(cur *models.Artefact) (*models.Version, error) {
			cur.ApplyDecision(reviewer, models.DecisionApproved, "ok", s.now)
			return nil, nil
		})
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, found.Status)
	s.Require().NotNil(found.ReviewerDecision)
	s.Equal(reviewer, found.ReviewerDecision.ReviewerID)
	s.Equal(int64(3), found.Revision)
}

func (s *PostgresStoreSuite) TestConcurrentAddVersion() {
	ctx := context.Background()
	a := s.create("Contended")
	const writers = 10

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.store.Execute(ctx, a.ID, func(*models.Artefact) error { return nil },
				func(cur *models.Artefact) (*models.Version, error) {
					return addVersion(cur, s.owner.ID, s.now)
				})
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
			continue
		}
		s.True(errors.Is(err, sentinel.ErrStale), "unexpected error: %v", err)
	}

	found, err := s.store.FindByID(ctx, a.ID)
	s.Require().NoError(err)
	versions, err := s.store.ListVersions(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(committed+1, found.LatestVersionNumber)
	s.Len(versions, found.LatestVersionNumber)
	s.Equal(found.LatestVersionNumber, versions[0].VersionNumber)
}

func (s *PostgresStoreSuite) TestListFilterAndTags() {
	ctx := context.Background()
	s.create("Quarterly Risk Report", "x", "y")
	s.create("Liquidity 100% plan", "x")
	archived := s.create("Old", "x", "z")
	_, err := s.store.Execute(ctx, archived.ID, func(*models.Artefact) error { return nil },
		func(cur *models.Artefact) (*models.Version, error) {
			cur.ApplyArchive(s.now)
			return nil, nil
		})
	s.Require().NoError(err)

	filter, err := models.NewFilter(s.owner, models.ListParams{Search: "risk QUARTERLY"}, 0)
	s.Require().NoError(err)
	items, err := s.store.List(ctx, filter)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal("Quarterly Risk Report", items[0].Title)

	filter, err = models.NewFilter(s.owner, models.ListParams{Search: "100%"}, 0)
	s.Require().NoError(err)
	items, err = s.store.List(ctx, filter)
	s.Require().NoError(err)
	s.Len(items, 1, "wildcards in search terms are literal")

	stranger := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleUser, RegionID: s.owner.RegionID}
	filter, err = models.NewFilter(stranger, models.ListParams{}, 0)
	s.Require().NoError(err)
	items, err = s.store.List(ctx, filter)
	s.Require().NoError(err)
	s.Empty(items, "drafts of other users stay hidden")

	tags, err := s.store.Tags(ctx, s.owner.RegionID, 0)
	s.Require().NoError(err)
	s.Equal([]models.TagCount{{Tag: "x", Count: 2}, {Tag: "y", Count: 1}}, tags)
}
