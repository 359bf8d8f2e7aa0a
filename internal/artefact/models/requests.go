package models

import (
	"encoding/json"
	"strings"

	dErrors "kvault/pkg/domain-errors"
	platformstrings "kvault/pkg/platform/strings"
)

// CreateInput is the parsed multipart form for a new artefact.
type CreateInput struct {
	Title          string
	Description    string
	Tags           []string
	Classification string
	ChangeNote     string
	File           *Upload
}

func (in *CreateInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Tags = platformstrings.DedupeAndTrim(in.Tags)
	in.Classification = strings.TrimSpace(in.Classification)
}

func (in *CreateInput) Validate() error {
	if in.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if err := in.File.Validate(); err != nil {
		return err
	}
	if in.Classification != "" {
		if _, err := ParseClassification(in.Classification); err != nil {
			return err
		}
	}
	return nil
}

// ToDraft assumes Validate has passed.
func (in *CreateInput) ToDraft() Draft {
	classification := ClassificationOpen
	if c, err := ParseClassification(in.Classification); err == nil {
		classification = c
	}
	return Draft{
		Title:          in.Title,
		Description:    in.Description,
		Tags:           in.Tags,
		Classification: classification,
	}
}

// AddVersionInput is the parsed multipart form for a new version.
type AddVersionInput struct {
	ChangeNote string
	File       *Upload
}

func (in *AddVersionInput) Validate() error {
	return in.File.Validate()
}

// TagList accepts either a JSON array or a comma-separated string.
type TagList []string

func (t *TagList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*t = platformstrings.DedupeAndTrim(list)
		return nil
	}
	var csv string
	if err := json.Unmarshal(b, &csv); err != nil {
		return dErrors.New(dErrors.CodeValidation, "tags must be a list or a comma-separated string")
	}
	*t = platformstrings.SplitCSV(csv)
	return nil
}

type UpdateRequest struct {
	Title           *string  `json:"title"`
	Description     *string  `json:"description"`
	Tags            *TagList `json:"tags"`
	Classification  *string  `json:"classification"`
	LifecycleStatus *string  `json:"lifecycleStatus"`
}

func (r *UpdateRequest) Validate() error {
	_, err := r.ToPatch()
	return err
}

func (r *UpdateRequest) ToPatch() (Patch, error) {
	var p Patch
	p.Title = r.Title
	p.Description = r.Description
	if r.Tags != nil {
		tags := []string(*r.Tags)
		p.Tags = &tags
	}
	if r.Classification != nil {
		c, err := ParseClassification(*r.Classification)
		if err != nil {
			return Patch{}, err
		}
		p.Classification = &c
	}
	if r.LifecycleStatus != nil {
		l, err := ParseSettableLifecycle(*r.LifecycleStatus)
		if err != nil {
			return Patch{}, err
		}
		p.LifecycleStatus = &l
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return Patch{}, dErrors.New(dErrors.CodeValidation, "title cannot be empty")
	}
	return p, nil
}

type SubmitRequest struct {
	ArtefactID string `json:"artefactId"`
}

func (r *SubmitRequest) Normalize() {
	r.ArtefactID = strings.TrimSpace(r.ArtefactID)
}

func (r *SubmitRequest) Validate() error {
	if r.ArtefactID == "" {
		return dErrors.New(dErrors.CodeValidation, "artefactId is required")
	}
	return nil
}

type DecisionRequest struct {
	ArtefactID string `json:"artefactId"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason"`
}

func (r *DecisionRequest) Normalize() {
	r.ArtefactID = strings.TrimSpace(r.ArtefactID)
	r.Decision = strings.ToLower(strings.TrimSpace(r.Decision))
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *DecisionRequest) Validate() error {
	if r.ArtefactID == "" {
		return dErrors.New(dErrors.CodeValidation, "artefactId is required")
	}
	if _, err := ParseDecision(r.Decision); err != nil {
		return err
	}
	return nil
}
