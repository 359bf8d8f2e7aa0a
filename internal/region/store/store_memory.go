package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kvault/internal/region/models"
	id "kvault/pkg/domain"
	"kvault/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded region store for development and tests.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[id.RegionID]*models.Region
	byName map[string]id.RegionID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.RegionID]*models.Region),
		byName: make(map[string]id.RegionID),
	}
}

// CreateIfNameAvailable inserts the region unless its name is taken.
func (s *InMemory) CreateIfNameAvailable(_ context.Context, region *models.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.NameKey(region.Name)
	if _, taken := s.byName[key]; taken {
		return fmt.Errorf("region name %q: %w", region.Name, sentinel.ErrAlreadyUsed)
	}
	cp := *region
	s.byID[region.ID] = &cp
	s.byName[key] = region.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, regionID id.RegionID) (*models.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[regionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemory) FindByName(_ context.Context, name string) (*models.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regionID, ok := s.byName[models.NameKey(name)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[regionID]
	return &cp, nil
}

// List returns every region sorted by name.
func (s *InMemory) List(_ context.Context) ([]*models.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Region, 0, len(s.byID))
	for _, r := range s.byID {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return models.NameKey(out[i].Name) < models.NameKey(out[j].Name)
	})
	return out, nil
}
