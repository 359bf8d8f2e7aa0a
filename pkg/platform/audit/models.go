package audit

import (
	"context"
	"time"

	"kvault/pkg/domain"
)

// Action names a successful mutation. Values are stable wire strings.
type Action string

const (
	// Artefact lifecycle
	ActionArtefactCreated            Action = "artefact_created"
	ActionArtefactUpdated            Action = "artefact_updated"
	ActionArtefactVersionAdded       Action = "artefact_version_added"
	ActionArtefactArchived           Action = "artefact_archived"
	ActionArtefactSubmittedForReview Action = "artefact_submitted_for_review"
	ActionArtefactReviewDecision     Action = "artefact_review_decision"

	// Registry and identity
	ActionRegionCreated  Action = "region_created"
	ActionUserRegistered Action = "user_registered"
	ActionUserLoggedOut  Action = "user_logged_out"
)

type TargetType string

const (
	TargetArtefact TargetType = "artefact"
	TargetRegion   TargetType = "region"
	TargetUser     TargetType = "user"
)

// MaxListLimit caps every audit query.
const MaxListLimit = 200

// Entry is one append-only audit record.
type Entry struct {
	ID         domain.AuditEntryID `json:"id"`
	ActorID    domain.UserID       `json:"actorId"`
	RegionID   domain.RegionID     `json:"regionId"`
	Action     Action              `json:"action"`
	TargetType TargetType          `json:"targetType"`
	TargetID   string              `json:"targetId"`
	Details    map[string]any      `json:"details"`
	RequestID  string              `json:"requestId,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Query selects entries newest first. Exactly one scope should be set:
// ActorID for self-scoped listings, RegionID for region-scoped ones.
type Query struct {
	ActorID  *domain.UserID
	RegionID *domain.RegionID
	Limit    int
}

// EffectiveLimit clamps Limit into [1, MaxListLimit].
func (q Query) EffectiveLimit() int {
	if q.Limit <= 0 || q.Limit > MaxListLimit {
		return MaxListLimit
	}
	return q.Limit
}

// Matches applies the scope filters to an entry.
func (q Query) Matches(e Entry) bool {
	if q.ActorID != nil && e.ActorID != *q.ActorID {
		return false
	}
	if q.RegionID != nil && e.RegionID != *q.RegionID {
		return false
	}
	return true
}

// Appender persists entries.
type Appender interface {
	Append(ctx context.Context, entry Entry) error
}

// Store persists and queries entries.
type Store interface {
	Appender
	List(ctx context.Context, q Query) ([]Entry, error)
}
