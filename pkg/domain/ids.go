package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "kvault/pkg/domain-errors"
)

// Typed identifiers. Each is a distinct type so a RegionID can never be passed
// where an ArtefactID is expected.
type (
	UserID       uuid.UUID
	RegionID     uuid.UUID
	ArtefactID   uuid.UUID
	VersionID    uuid.UUID
	AuditEntryID uuid.UUID
)

func parseUUID(raw, label string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(raw) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return parsed, nil
}

func ParseUserID(raw string) (UserID, error) {
	u, err := parseUUID(raw, "user id")
	return UserID(u), err
}

func ParseRegionID(raw string) (RegionID, error) {
	u, err := parseUUID(raw, "region id")
	return RegionID(u), err
}

func ParseArtefactID(raw string) (ArtefactID, error) {
	u, err := parseUUID(raw, "artefact id")
	return ArtefactID(u), err
}

func ParseVersionID(raw string) (VersionID, error) {
	u, err := parseUUID(raw, "version id")
	return VersionID(u), err
}

func ParseAuditEntryID(raw string) (AuditEntryID, error) {
	u, err := parseUUID(raw, "audit entry id")
	return AuditEntryID(u), err
}

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id RegionID) String() string     { return uuid.UUID(id).String() }
func (id ArtefactID) String() string   { return uuid.UUID(id).String() }
func (id VersionID) String() string    { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id RegionID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ArtefactID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id VersionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders ids as canonical UUID strings in JSON payloads.
func (id UserID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id RegionID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id ArtefactID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id VersionID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id AuditEntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// unmarshalUUID accepts anything MarshalText produces, including the nil UUID.
// Use the Parse functions for caller-supplied ids.
func unmarshalUUID(b []byte, label string) (uuid.UUID, error) {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	return parsed, nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "user id")
	*id = UserID(u)
	return err
}

func (id *RegionID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "region id")
	*id = RegionID(u)
	return err
}

func (id *ArtefactID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "artefact id")
	*id = ArtefactID(u)
	return err
}

func (id *VersionID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "version id")
	*id = VersionID(u)
	return err
}

func (id *AuditEntryID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "audit entry id")
	*id = AuditEntryID(u)
	return err
}
