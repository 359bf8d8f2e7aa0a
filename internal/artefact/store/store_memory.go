package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kvault/internal/artefact/models"
	id "kvault/pkg/domain"
	"kvault/pkg/platform/sentinel"
)

// InMemory keeps artefacts in maps guarded by one mutex. Callbacks run outside
// the lock against a copy, so concurrent writers race exactly like they do
// against Postgres.
type InMemory struct {
	mu        sync.RWMutex
	artefacts map[id.ArtefactID]*models.Artefact
	versions  map[id.ArtefactID][]*models.Version
}

func NewInMemory() *InMemory {
	return &InMemory{
		artefacts: make(map[id.ArtefactID]*models.Artefact),
		versions:  make(map[id.ArtefactID][]*models.Version),
	}
}

func (s *InMemory) Create(_ context.Context, artefact *models.Artefact, version *models.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.artefacts[artefact.ID]; exists {
		return fmt.Errorf("artefact %s: %w", artefact.ID, sentinel.ErrAlreadyUsed)
	}
	s.artefacts[artefact.ID] = artefact.Clone()
	vcp := *version
	s.versions[artefact.ID] = []*models.Version{&vcp}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, artefactID id.ArtefactID) (*models.Artefact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artefacts[artefactID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

// ListVersions returns versions newest first.
func (s *InMemory) ListVersions(_ context.Context, artefactID id.ArtefactID) ([]*models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.versions[artefactID]
	out := make([]*models.Version, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		cp := *stored[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) List(_ context.Context, filter models.Filter) ([]*models.Artefact, error) {
	s.mu.RLock()
	var out []*models.Artefact
	for _, a := range s.artefacts {
		if filter.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	s.mu.RUnlock()

	models.SortByRecency(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Tags aggregates tags across the region's non-archived artefacts.
func (s *InMemory) Tags(_ context.Context, regionID id.RegionID, limit int) ([]models.TagCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var inRegion []*models.Artefact
	for _, a := range s.artefacts {
		if a.RegionID == regionID && !a.Archived {
			inRegion = append(inRegion, a)
		}
	}
	return models.CountTags(inRegion, limit), nil
}

func (s *InMemory) Execute(ctx context.Context, artefactID id.ArtefactID, validate ValidateFunc, mutate MutateFunc) (*models.Artefact, error) {
	current, err := s.FindByID(ctx, artefactID)
	if err != nil {
		return nil, err
	}
	if err := validate(current); err != nil {
		return nil, err
	}
	expected := current.Revision
	version, err := mutate(current)
	if err != nil {
		return nil, err
	}
	current.Revision = expected + 1

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.artefacts[artefactID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if stored.Revision != expected {
		return nil, fmt.Errorf("artefact %s at revision %d: %w", artefactID, expected, sentinel.ErrStale)
	}
	if version != nil {
		for _, v := range s.versions[artefactID] {
			if v.VersionNumber == version.VersionNumber {
				return nil, fmt.Errorf("version %d of %s: %w", version.VersionNumber, artefactID, sentinel.ErrStale)
			}
		}
		vcp := *version
		s.versions[artefactID] = append(s.versions[artefactID], &vcp)
		sort.Slice(s.versions[artefactID], func(i, j int) bool {
			return s.versions[artefactID][i].VersionNumber < s.versions[artefactID][j].VersionNumber
		})
	}
	s.artefacts[artefactID] = current.Clone()
	return current, nil
}
