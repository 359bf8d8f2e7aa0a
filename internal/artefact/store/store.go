// Package store persists artefacts and their versions.
//
// Every mutation after creation goes through Execute, which commits with a
// compare-and-swap on Artefact.Revision. A writer that loses the race gets
// sentinel.ErrStale and no partial state.
package store

import (
	"kvault/internal/artefact/models"
)

// ValidateFunc inspects the current artefact and may veto the mutation.
type ValidateFunc func(a *models.Artefact) error

// MutateFunc changes the artefact in place and optionally returns a version
// to insert in the same commit.
type MutateFunc func(a *models.Artefact) (*models.Version, error)
