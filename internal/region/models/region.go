package models

import (
	"strings"
	"time"

	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
)

// MaxNameLength bounds region names.
const MaxNameLength = 128

// Region is a tenant partition. Every user and artefact belongs to exactly one.
//
// Invariants:
//   - Name is trimmed, non-empty and at most 128 characters
//   - Name is unique case-insensitively (enforced by the store)
//   - A region is immutable once created
type Region struct {
	ID        id.RegionID `json:"id"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"createdAt"`
}

func NewRegion(regionID id.RegionID, name string, now time.Time) (*Region, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "region name is required")
	}
	if len(name) > MaxNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "region name must be 128 characters or less")
	}
	return &Region{ID: regionID, Name: name, CreatedAt: now}, nil
}

// NameKey is the case-folded form used for uniqueness.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type CreateRegionRequest struct {
	Name string `json:"name"`
}

func (r *CreateRegionRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
}

func (r *CreateRegionRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Name) > MaxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name must be 128 characters or less")
	}
	return nil
}
