package models

import (
	"strings"

	dErrors "kvault/pkg/domain-errors"
)

// Status is the governance workflow state.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusDraft, StatusPendingReview, StatusApproved, StatusRejected:
		return s, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid status")
}

// Classification is the confidentiality tier gating non-owner visibility.
type Classification string

const (
	ClassificationOpen         Classification = "open"
	ClassificationRestricted   Classification = "restricted"
	ClassificationConfidential Classification = "confidential"
)

func ParseClassification(raw string) (Classification, error) {
	switch c := Classification(strings.ToLower(strings.TrimSpace(raw))); c {
	case ClassificationOpen, ClassificationRestricted, ClassificationConfidential:
		return c, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid classification")
}

// LifecycleStatus is orthogonal to Status. Archived is terminal and only
// reachable through archive.
type LifecycleStatus string

const (
	LifecycleActive     LifecycleStatus = "active"
	LifecycleDeprecated LifecycleStatus = "deprecated"
	LifecycleArchived   LifecycleStatus = "archived"
)

// ParseSettableLifecycle accepts the values an update may set.
func ParseSettableLifecycle(raw string) (LifecycleStatus, error) {
	switch l := LifecycleStatus(strings.ToLower(strings.TrimSpace(raw))); l {
	case LifecycleActive, LifecycleDeprecated:
		return l, nil
	case LifecycleArchived:
		return "", dErrors.New(dErrors.CodeValidation, "use archive to archive an artefact")
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid lifecycle status")
}

// Decision is a reviewer's verdict.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func ParseDecision(raw string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(raw)))
	if !d.Valid() {
		return "", dErrors.New(dErrors.CodeValidation, "decision must be approved or rejected")
	}
	return d, nil
}

func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Status maps the verdict onto the workflow state it produces.
func (d Decision) Status() Status {
	if d == DecisionApproved {
		return StatusApproved
	}
	return StatusRejected
}
