package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
)

func artefactIn(region id.RegionID, owner id.UserID, status Status, c Classification, tags ...string) *Artefact {
	return &Artefact{
		ID:             id.ArtefactID(uuid.New()),
		Title:          "Quarterly Risk Report",
		Description:    "covers liquidity",
		Tags:           tags,
		Status:         status,
		Classification: c,
		OwnerID:        owner,
		RegionID:       region,
		UpdatedAt:      testNow,
	}
}

func TestFilter_Visibility(t *testing.T) {
	region := id.RegionID(uuid.New())
	user := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleUser, RegionID: region}
	other := id.UserID(uuid.New())

	f, err := NewFilter(user, ListParams{}, 0)
	require.NoError(t, err)
	assert.Equal(t, MaxListResults, f.Limit)

	assert.True(t, f.Matches(artefactIn(region, user.ID, StatusDraft, ClassificationConfidential)), "own drafts are visible")
	assert.True(t, f.Matches(artefactIn(region, other, StatusApproved, ClassificationRestricted)))
	assert.False(t, f.Matches(artefactIn(region, other, StatusApproved, ClassificationConfidential)))
	assert.False(t, f.Matches(artefactIn(region, other, StatusPendingReview, ClassificationOpen)))
	assert.False(t, f.Matches(artefactIn(id.RegionID(uuid.New()), user.ID, StatusApproved, ClassificationOpen)), "other regions never match")

	reviewer := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleReviewer, RegionID: region}
	rf, err := NewFilter(reviewer, ListParams{}, 0)
	require.NoError(t, err)
	assert.Nil(t, rf.VisibleTo)
	assert.True(t, rf.Matches(artefactIn(region, other, StatusDraft, ClassificationConfidential)))
}

func TestFilter_Archived(t *testing.T) {
	region := id.RegionID(uuid.New())
	admin := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleAdmin, RegionID: region}
	a := artefactIn(region, admin.ID, StatusDraft, ClassificationOpen)
	a.Archived = true

	f, _ := NewFilter(admin, ListParams{}, 0)
	assert.False(t, f.Matches(a))

	f, _ = NewFilter(admin, ListParams{IncludeArchived: true}, 0)
	assert.True(t, f.Matches(a))
}

func TestFilter_SearchRequiresEveryTerm(t *testing.T) {
	region := id.RegionID(uuid.New())
	admin := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleAdmin, RegionID: region}
	a := artefactIn(region, admin.ID, StatusDraft, ClassificationOpen, "Finance")

	for query, want := range map[string]bool{
		"risk":              true,
		"RISK liquidity":    true,
		"finance quarterly": true,
		"risk marketing":    false,
	} {
		f, err := NewFilter(admin, ListParams{Search: query}, 0)
		require.NoError(t, err)
		assert.Equal(t, want, f.Matches(a), query)
	}
}

func TestFilter_RejectsUnknownEnums(t *testing.T) {
	actor := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleUser, RegionID: id.RegionID(uuid.New())}
	_, err := NewFilter(actor, ListParams{Status: "published"}, 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = NewFilter(actor, ListParams{Classification: "secret"}, 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestRecommendFilter(t *testing.T) {
	region := id.RegionID(uuid.New())
	user := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleUser, RegionID: region}
	other := id.UserID(uuid.New())
	f := RecommendFilter(user, "go", 50)

	assert.Equal(t, MaxRecommendResults, f.Limit)
	assert.True(t, f.Matches(artefactIn(region, other, StatusApproved, ClassificationOpen, "go")))
	assert.False(t, f.Matches(artefactIn(region, other, StatusApproved, ClassificationOpen, "rust")))
	assert.False(t, f.Matches(artefactIn(region, user.ID, StatusDraft, ClassificationOpen, "go")), "recommendations are approved only")
}

func TestSortByRecency(t *testing.T) {
	region := id.RegionID(uuid.New())
	older := artefactIn(region, id.UserID(uuid.New()), StatusDraft, ClassificationOpen)
	newer := artefactIn(region, id.UserID(uuid.New()), StatusDraft, ClassificationOpen)
	newer.UpdatedAt = testNow.Add(time.Second)

	items := []*Artefact{older, newer}
	SortByRecency(items)
	assert.Equal(t, newer.ID, items[0].ID)
}

func TestCountTags(t *testing.T) {
	region := id.RegionID(uuid.New())
	owner := id.UserID(uuid.New())
	items := []*Artefact{
		artefactIn(region, owner, StatusDraft, ClassificationOpen, "x", "y"),
		artefactIn(region, owner, StatusDraft, ClassificationOpen, "x"),
		artefactIn(region, owner, StatusDraft, ClassificationOpen, "x", "b"),
		artefactIn(region, owner, StatusDraft, ClassificationOpen, "a"),
	}

	got := CountTags(items, 0)
	assert.Equal(t, []TagCount{{"x", 3}, {"a", 1}, {"b", 1}, {"y", 1}}, got)
	assert.Len(t, CountTags(items, 2), 2)
}

func TestTagList_Unmarshal(t *testing.T) {
	var r UpdateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"tags":"a, b ,a"}`), &r))
	assert.Equal(t, TagList{"a", "b"}, *r.Tags)

	require.NoError(t, json.Unmarshal([]byte(`{"tags":["c"," d "]}`), &r))
	assert.Equal(t, TagList{"c", "d"}, *r.Tags)

	assert.Error(t, json.Unmarshal([]byte(`{"tags":42}`), &r))
}

func TestUpdateRequest_ToPatch(t *testing.T) {
	archived := "archived"
	_, err := (&UpdateRequest{LifecycleStatus: &archived}).ToPatch()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	restricted := "restricted"
	p, err := (&UpdateRequest{Classification: &restricted}).ToPatch()
	require.NoError(t, err)
	assert.Equal(t, ClassificationRestricted, *p.Classification)
	assert.Nil(t, p.Title)
}
