package models

import (
	"strings"
	"time"

	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
	platformstrings "kvault/pkg/platform/strings"
)

const (
	MaxTitleLength     = 256
	InitialChangeNote  = "Initial upload"
	NewVersionNote     = "New version uploaded"
	FirstVersionNumber = 1
)

// ReviewerDecision records the latest verdict. Earlier verdicts live only in the audit log.
type ReviewerDecision struct {
	ReviewerID id.UserID `json:"reviewerId"`
	Decision   Decision  `json:"decision"`
	Reason     string    `json:"reason"`
	DecidedAt  time.Time `json:"decidedAt"`
}

// Artefact is the aggregate root for a governed document.
//
// Invariants:
//   - RegionID and OwnerID never change after creation
//   - LatestVersionNumber equals the highest stored version number, starting at 1
//   - ReviewerDecision is nil whenever Status is draft or pending_review
//   - Archived implies LifecycleStatus == archived and ArchivedAt != nil
//   - Revision increases by one on every committed mutation
type Artefact struct {
	ID                  id.ArtefactID     `json:"id"`
	Title               string            `json:"title"`
	Description         string            `json:"description"`
	Tags                []string          `json:"tags"`
	Classification      Classification    `json:"classification"`
	Status              Status            `json:"status"`
	LifecycleStatus     LifecycleStatus   `json:"lifecycleStatus"`
	LatestVersionNumber int               `json:"latestVersionNumber"`
	ReviewerDecision    *ReviewerDecision `json:"reviewerDecision"`
	OwnerID             id.UserID         `json:"ownerId"`
	RegionID            id.RegionID       `json:"regionId"`
	Archived            bool              `json:"archived"`
	ArchivedAt          *time.Time        `json:"archivedAt,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	Revision            int64             `json:"revision"`
}

// Draft describes a new artefact before it is persisted.
type Draft struct {
	Title          string
	Description    string
	Tags           []string
	Classification Classification
}

// NewArtefact creates a draft owned by actor in the actor's region.
func NewArtefact(artefactID id.ArtefactID, owner id.Actor, draft Draft, now time.Time) (*Artefact, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title is required")
	}
	if len(title) > MaxTitleLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title must be 256 characters or less")
	}
	if owner.ID.IsNil() || owner.RegionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owner and region are required")
	}
	classification := draft.Classification
	if classification == "" {
		classification = ClassificationOpen
	}
	return &Artefact{
		ID:                  artefactID,
		Title:               title,
		Description:         strings.TrimSpace(draft.Description),
		Tags:                platformstrings.DedupeAndTrim(draft.Tags),
		Classification:      classification,
		Status:              StatusDraft,
		LifecycleStatus:     LifecycleActive,
		LatestVersionNumber: FirstVersionNumber,
		OwnerID:             owner.ID,
		RegionID:            owner.RegionID,
		CreatedAt:           now,
		UpdatedAt:           now,
		Revision:            1,
	}, nil
}

func (a *Artefact) IsOwnedBy(userID id.UserID) bool {
	return a.OwnerID == userID
}

// CanSubmit checks the draft -> pending_review transition.
func (a *Artefact) CanSubmit() error {
	if a.Status != StatusDraft {
		return dErrors.New(dErrors.CodeInvalidState, "artefact is not in draft")
	}
	return nil
}

func (a *Artefact) ApplySubmit(now time.Time) {
	a.Status = StatusPendingReview
	a.ReviewerDecision = nil
	a.UpdatedAt = now
}

// CanDecide checks the pending_review -> approved|rejected transition.
func (a *Artefact) CanDecide(decision Decision) error {
	if !decision.Valid() {
		return dErrors.New(dErrors.CodeValidation, "decision must be approved or rejected")
	}
	if a.Status != StatusPendingReview {
		return dErrors.New(dErrors.CodeInvalidState, "artefact is not pending review")
	}
	return nil
}

func (a *Artefact) ApplyDecision(reviewerID id.UserID, decision Decision, reason string, now time.Time) {
	a.Status = decision.Status()
	a.ReviewerDecision = &ReviewerDecision{
		ReviewerID: reviewerID,
		Decision:   decision,
		Reason:     strings.TrimSpace(reason),
		DecidedAt:  now,
	}
	a.UpdatedAt = now
}

// ApplyNewVersion bumps the version counter and resets governance to draft.
// New content always invalidates a previous approval.
func (a *Artefact) ApplyNewVersion(now time.Time) int {
	a.LatestVersionNumber++
	a.Status = StatusDraft
	a.ReviewerDecision = nil
	a.UpdatedAt = now
	return a.LatestVersionNumber
}

// ApplyArchive archives the artefact. Returns false when it was already archived.
func (a *Artefact) ApplyArchive(now time.Time) bool {
	if a.Archived {
		return false
	}
	a.Archived = true
	a.ArchivedAt = &now
	a.LifecycleStatus = LifecycleArchived
	a.UpdatedAt = now
	return true
}

// Patch carries the fields an update may change. Nil means unchanged.
type Patch struct {
	Title           *string
	Description     *string
	Tags            *[]string
	Classification  *Classification
	LifecycleStatus *LifecycleStatus
}

func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Tags == nil && p.Classification == nil && p.LifecycleStatus == nil
}

// CanUpdate checks the patch against the current state.
func (a *Artefact) CanUpdate(p Patch) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return dErrors.New(dErrors.CodeValidation, "title cannot be empty")
		}
		if len(title) > MaxTitleLength {
			return dErrors.New(dErrors.CodeValidation, "title must be 256 characters or less")
		}
	}
	if p.LifecycleStatus != nil {
		if a.Archived {
			return dErrors.New(dErrors.CodeInvalidState, "archived artefacts cannot change lifecycle status")
		}
		if *p.LifecycleStatus == LifecycleArchived {
			return dErrors.New(dErrors.CodeValidation, "use archive to archive an artefact")
		}
	}
	return nil
}

// ApplyUpdate writes the patch and returns the names of the fields it changed.
func (a *Artefact) ApplyUpdate(p Patch, now time.Time) []string {
	var changed []string
	if p.Title != nil {
		a.Title = strings.TrimSpace(*p.Title)
		changed = append(changed, "title")
	}
	if p.Description != nil {
		a.Description = strings.TrimSpace(*p.Description)
		changed = append(changed, "description")
	}
	if p.Tags != nil {
		a.Tags = platformstrings.DedupeAndTrim(*p.Tags)
		changed = append(changed, "tags")
	}
	if p.Classification != nil {
		a.Classification = *p.Classification
		changed = append(changed, "classification")
	}
	if p.LifecycleStatus != nil {
		a.LifecycleStatus = *p.LifecycleStatus
		changed = append(changed, "lifecycleStatus")
	}
	a.UpdatedAt = now
	return changed
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (a *Artefact) Clone() *Artefact {
	cp := *a
	cp.Tags = append([]string(nil), a.Tags...)
	if cp.Tags == nil {
		cp.Tags = []string{}
	}
	if a.ReviewerDecision != nil {
		rd := *a.ReviewerDecision
		cp.ReviewerDecision = &rd
	}
	if a.ArchivedAt != nil {
		at := *a.ArchivedAt
		cp.ArchivedAt = &at
	}
	return &cp
}
