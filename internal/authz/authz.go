// Package authz holds the single source of truth for artefact access control.
//
// Decide is pure: no I/O, no side effects. Callers load the artefact, take a
// Snapshot, and ask whether the actor may perform an operation on it.
package authz

import (
	"kvault/internal/artefact/models"
	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
)

// Operation names an action an actor may attempt.
type Operation string

const (
	OpCreate          Operation = "create"
	OpRead            Operation = "read"
	OpUpdate          Operation = "update"
	OpAddVersion      Operation = "addVersion"
	OpArchive         Operation = "archive"
	OpSubmitForReview Operation = "submitForReview"
	OpReviewDecision  Operation = "reviewDecision"
	OpListPending     Operation = "listPending"
	OpListTags        Operation = "listTags"
)

// IsWrite reports whether the operation mutates an existing artefact.
func (op Operation) IsWrite() bool {
	switch op {
	case OpUpdate, OpAddVersion, OpArchive, OpSubmitForReview, OpReviewDecision:
		return true
	}
	return false
}

// Reason explains a Decision. Denials keep not_found and forbidden apart so
// cross-region lookups are indistinguishable from missing ids.
type Reason string

const (
	ReasonAllowed   Reason = "allowed"
	ReasonNotFound  Reason = "not_found"
	ReasonForbidden Reason = "forbidden"
)

type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision { return Decision{Allowed: true, Reason: ReasonAllowed} }
func deny(reason Reason) Decision { return Decision{Reason: reason} }

// Err converts a denial into a domain error. It returns nil when allowed.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonNotFound:
		return dErrors.New(dErrors.CodeNotFound, "artefact not found")
	default:
		return dErrors.New(dErrors.CodeForbidden, "not permitted to perform this action")
	}
}

// Snapshot is the subset of artefact state access control depends on.
type Snapshot struct {
	OwnerID        id.UserID
	RegionID       id.RegionID
	Status         models.Status
	Classification models.Classification
}

func SnapshotOf(a *models.Artefact) *Snapshot {
	if a == nil {
		return nil
	}
	return &Snapshot{
		OwnerID:        a.OwnerID,
		RegionID:       a.RegionID,
		Status:         a.Status,
		Classification: a.Classification,
	}
}

// Decide evaluates the rule chain. First match wins:
//  1. Region-scoped operations without a target (create, listTags, listPending)
//  2. Region boundary: another region's artefact is reported as not found
//  3. Privileged roles pass everything except submitting someone else's draft
//  4. Owners pass every artefact operation
//  5. Other users may read approved, non-confidential artefacts only
func Decide(actor id.Actor, artefact *Snapshot, op Operation) Decision {
	if actor.IsZero() {
		return deny(ReasonForbidden)
	}

	switch op {
	case OpCreate, OpListTags:
		return allow()
	case OpListPending:
		if actor.IsPrivileged() {
			return allow()
		}
		return deny(ReasonForbidden)
	}

	if artefact == nil {
		return deny(ReasonNotFound)
	}

	// Rule 2: existence across regions must not leak
	if artefact.RegionID != actor.RegionID {
		return deny(ReasonNotFound)
	}

	owner := artefact.OwnerID == actor.ID

	// Rule 3: privileged bypass
	if actor.IsPrivileged() {
		switch op {
		case OpRead, OpUpdate, OpAddVersion, OpArchive, OpReviewDecision:
			return allow()
		case OpSubmitForReview:
			if owner {
				return allow()
			}
			return deny(ReasonForbidden)
		}
	}

	// Rule 4: ownership
	if owner {
		switch op {
		case OpRead, OpUpdate, OpAddVersion, OpArchive, OpSubmitForReview:
			return allow()
		}
		return deny(ReasonForbidden)
	}

	// Rule 5: non-owner, non-privileged
	if op == OpRead && artefact.Status == models.StatusApproved &&
		artefact.Classification != models.ClassificationConfidential {
		return allow()
	}
	return deny(ReasonForbidden)
}
