package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"kvault/internal/artefact/models"
	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
	"kvault/pkg/testutil"
)

var (
	regionA = id.RegionID(uuid.New())
	regionB = id.RegionID(uuid.New())
)

func actorWith(role id.Role, region id.RegionID) id.Actor {
	return id.Actor{ID: id.UserID(uuid.New()), Role: role, RegionID: region}
}

func snapshot(owner id.UserID, region id.RegionID, status models.Status, c models.Classification) *Snapshot {
	return &Snapshot{OwnerID: owner, RegionID: region, Status: status, Classification: c}
}

func TestDecide(t *testing.T) {
	owner := actorWith(id.RoleUser, regionA)
	other := actorWith(id.RoleUser, regionA)
	reviewer := actorWith(id.RoleReviewer, regionA)
	admin := actorWith(id.RoleAdmin, regionA)
	foreignAdmin := actorWith(id.RoleAdmin, regionB)

	draft := snapshot(owner.ID, regionA, models.StatusDraft, models.ClassificationOpen)
	approved := snapshot(owner.ID, regionA, models.StatusApproved, models.ClassificationRestricted)
	approvedConfidential := snapshot(owner.ID, regionA, models.StatusApproved, models.ClassificationConfidential)

	tests := []struct {
		name     string
		actor    id.Actor
		artefact *Snapshot
		op       Operation
		want     Reason
	}{
		{"anyone may create", other, nil, OpCreate, ReasonAllowed},
		{"anyone may list tags", other, nil, OpListTags, ReasonAllowed},
		{"users cannot list pending", other, nil, OpListPending, ReasonForbidden},
		{"reviewers list pending", reviewer, nil, OpListPending, ReasonAllowed},
		{"missing artefact is not found", owner, nil, OpRead, ReasonNotFound},

		{"cross region read is masked", foreignAdmin, draft, OpRead, ReasonNotFound},
		{"cross region decision is masked", foreignAdmin, draft, OpReviewDecision, ReasonNotFound},
		{"cross region owner id still masked", id.Actor{ID: owner.ID, Role: id.RoleUser, RegionID: regionB}, draft, OpUpdate, ReasonNotFound},

		{"admin reads any draft", admin, draft, OpRead, ReasonAllowed},
		{"reviewer updates", reviewer, draft, OpUpdate, ReasonAllowed},
		{"reviewer adds version", reviewer, draft, OpAddVersion, ReasonAllowed},
		{"admin archives", admin, draft, OpArchive, ReasonAllowed},
		{"reviewer decides", reviewer, draft, OpReviewDecision, ReasonAllowed},
		{"reviewer cannot submit another's draft", reviewer, draft, OpSubmitForReview, ReasonForbidden},

		{"owner reads", owner, draft, OpRead, ReasonAllowed},
		{"owner updates", owner, draft, OpUpdate, ReasonAllowed},
		{"owner adds version", owner, draft, OpAddVersion, ReasonAllowed},
		{"owner archives", owner, draft, OpArchive, ReasonAllowed},
		{"owner submits", owner, draft, OpSubmitForReview, ReasonAllowed},
		{"owner cannot decide", owner, draft, OpReviewDecision, ReasonForbidden},

		{"other cannot read draft", other, draft, OpRead, ReasonForbidden},
		{"other reads approved restricted", other, approved, OpRead, ReasonAllowed},
		{"other cannot read approved confidential", other, approvedConfidential, OpRead, ReasonForbidden},
		{"other cannot update approved", other, approved, OpUpdate, ReasonForbidden},
		{"other cannot add version", other, approved, OpAddVersion, ReasonForbidden},
		{"other cannot archive", other, approved, OpArchive, ReasonForbidden},
		{"other cannot submit", other, draft, OpSubmitForReview, ReasonForbidden},
		{"other cannot decide", other, draft, OpReviewDecision, ReasonForbidden},

		{"anonymous is refused", id.Actor{}, draft, OpRead, ReasonForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.actor, tt.artefact, tt.op)
			assert.Equal(t, tt.want, got.Reason)
			assert.Equal(t, tt.want == ReasonAllowed, got.Allowed)
		})
	}
}

func TestDecide_CrossRegionMatchesMissing(t *testing.T) {
	actor := actorWith(id.RoleAdmin, regionA)
	foreign := snapshot(id.UserID(uuid.New()), regionB, models.StatusApproved, models.ClassificationOpen)

	for _, op := range []Operation{OpRead, OpUpdate, OpAddVersion, OpArchive, OpSubmitForReview, OpReviewDecision} {
		missing := Decide(actor, nil, op).Err()
		crossRegion := Decide(actor, foreign, op).Err()
		assert.Equal(t, missing.Error(), crossRegion.Error(), op)
	}
}

func TestDecision_Err(t *testing.T) {
	testutil.Given(t, "an allowed decision", func(t *testing.T) {
		assert.NoError(t, allow().Err())
	})
	testutil.Given(t, "a not found denial", func(t *testing.T) {
		testutil.Then(t, "it maps to not_found", func(t *testing.T) {
			assert.True(t, dErrors.HasCode(deny(ReasonNotFound).Err(), dErrors.CodeNotFound))
		})
	})
	testutil.Given(t, "a forbidden denial", func(t *testing.T) {
		testutil.Then(t, "it maps to forbidden", func(t *testing.T) {
			assert.True(t, dErrors.HasCode(deny(ReasonForbidden).Err(), dErrors.CodeForbidden))
		})
	})
}

func TestSnapshotOf(t *testing.T) {
	assert.Nil(t, SnapshotOf(nil))
	a := &models.Artefact{OwnerID: id.UserID(uuid.New()), RegionID: regionA, Status: models.StatusRejected, Classification: models.ClassificationRestricted}
	s := SnapshotOf(a)
	assert.Equal(t, a.OwnerID, s.OwnerID)
	assert.Equal(t, models.StatusRejected, s.Status)
}
