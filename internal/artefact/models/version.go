package models

import (
	"io"
	"strings"
	"time"

	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
)

// File is the stored content a version points at.
type File struct {
	URL         string `json:"fileUrl"`
	ContentID   string `json:"contentId"`
	Name        string `json:"fileName"`
	Size        int64  `json:"fileSize"`
	ContentType string `json:"contentType,omitempty"`
}

// Version is an immutable numbered snapshot of an artefact's content.
type Version struct {
	ID            id.VersionID  `json:"id"`
	ArtefactID    id.ArtefactID `json:"artefactId"`
	VersionNumber int           `json:"versionNumber"`
	File
	ChangeNote string    `json:"changeNote"`
	UploadedBy id.UserID `json:"uploadedBy"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func NewVersion(versionID id.VersionID, artefactID id.ArtefactID, number int, file File, uploadedBy id.UserID, changeNote string, now time.Time) (*Version, error) {
	if number < FirstVersionNumber {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "version number must be at least 1")
	}
	if file.URL == "" || file.ContentID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "version requires a stored file")
	}
	changeNote = strings.TrimSpace(changeNote)
	if changeNote == "" {
		if number == FirstVersionNumber {
			changeNote = InitialChangeNote
		} else {
			changeNote = NewVersionNote
		}
	}
	return &Version{
		ID:            versionID,
		ArtefactID:    artefactID,
		VersionNumber: number,
		File:          file,
		ChangeNote:    changeNote,
		UploadedBy:    uploadedBy,
		UploadedAt:    now,
	}, nil
}

// Upload is an incoming file before it reaches blob storage.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (u *Upload) Validate() error {
	if u == nil || u.Body == nil || strings.TrimSpace(u.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "file upload is required")
	}
	return nil
}

// Detail is an artefact with its version history, newest first. The artefact
// fields are inlined next to "versions" in JSON.
type Detail struct {
	*Artefact
	Versions []*Version `json:"versions"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}
