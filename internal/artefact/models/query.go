package models

import (
	"slices"
	"sort"
	"strings"

	id "kvault/pkg/domain"
	platformstrings "kvault/pkg/platform/strings"
)

// Listing caps. These are backpressure limits, not pagination.
const (
	MaxListResults      = 200
	MaxTagResults       = 100
	MaxRecommendResults = 10
)

// ListParams are the caller-supplied listing filters.
type ListParams struct {
	Search          string
	Tag             string
	Status          string
	Classification  string
	IncludeArchived bool
}

// Filter is the region- and role-scoped predicate stores evaluate.
// VisibleTo is nil for privileged viewers; otherwise a row matches only when
// it is owned by VisibleTo or is approved and not confidential.
type Filter struct {
	RegionID        id.RegionID
	VisibleTo       *id.UserID
	Terms           []string
	Tag             string
	Status          *Status
	Classification  *Classification
	IncludeArchived bool
	Limit           int
}

// NewFilter validates params and scopes them to the actor.
func NewFilter(actor id.Actor, params ListParams, limit int) (Filter, error) {
	f := Filter{
		RegionID:        actor.RegionID,
		Terms:           platformstrings.Terms(params.Search),
		Tag:             strings.TrimSpace(params.Tag),
		IncludeArchived: params.IncludeArchived,
		Limit:           clampLimit(limit, MaxListResults),
	}
	if !actor.IsPrivileged() {
		viewer := actor.ID
		f.VisibleTo = &viewer
	}
	if strings.TrimSpace(params.Status) != "" {
		st, err := ParseStatus(params.Status)
		if err != nil {
			return Filter{}, err
		}
		f.Status = &st
	}
	if strings.TrimSpace(params.Classification) != "" {
		c, err := ParseClassification(params.Classification)
		if err != nil {
			return Filter{}, err
		}
		f.Classification = &c
	}
	return f, nil
}

// RecommendFilter narrows a listing to approved, non-archived artefacts.
func RecommendFilter(actor id.Actor, tag string, limit int) Filter {
	approved := StatusApproved
	f := Filter{
		RegionID: actor.RegionID,
		Tag:      strings.TrimSpace(tag),
		Status:   &approved,
		Limit:    clampLimit(limit, MaxRecommendResults),
	}
	if !actor.IsPrivileged() {
		viewer := actor.ID
		f.VisibleTo = &viewer
	}
	return f
}

// PendingFilter selects the review queue of a region.
func PendingFilter(regionID id.RegionID, limit int) Filter {
	pending := StatusPendingReview
	return Filter{
		RegionID: regionID,
		Status:   &pending,
		Limit:    clampLimit(limit, MaxListResults),
	}
}

func clampLimit(limit, ceiling int) int {
	if limit <= 0 || limit > ceiling {
		return ceiling
	}
	return limit
}

// Matches evaluates the predicate in memory. SQL stores express the same rules in WHERE.
func (f Filter) Matches(a *Artefact) bool {
	if a.RegionID != f.RegionID {
		return false
	}
	if a.Archived && !f.IncludeArchived {
		return false
	}
	if f.VisibleTo != nil && !a.IsOwnedBy(*f.VisibleTo) {
		if a.Status != StatusApproved || a.Classification == ClassificationConfidential {
			return false
		}
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.Classification != nil && a.Classification != *f.Classification {
		return false
	}
	if f.Tag != "" && !slices.Contains(a.Tags, f.Tag) {
		return false
	}
	for _, term := range f.Terms {
		if !a.matchesTerm(term) {
			return false
		}
	}
	return true
}

func (a *Artefact) matchesTerm(term string) bool {
	if strings.Contains(strings.ToLower(a.Title), term) || strings.Contains(strings.ToLower(a.Description), term) {
		return true
	}
	for _, tag := range a.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

// SortByRecency orders newest update first, id descending on ties.
func SortByRecency(items []*Artefact) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID.String() > items[j].ID.String()
	})
}

// CountTags aggregates tags across artefacts: count desc, tag asc, top limit.
func CountTags(items []*Artefact, limit int) []TagCount {
	counts := make(map[string]int)
	for _, a := range items {
		for _, tag := range a.Tags {
			counts[tag]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	limit = clampLimit(limit, MaxTagResults)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
