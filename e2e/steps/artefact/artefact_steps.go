package artefact

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	PUT(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	DELETE(path string) error
	Multipart(path string, fields map[string]string, fileName string, content []byte) error
	GetResponseField(field string) (interface{}, error)
	GetResponseList() ([]map[string]interface{}, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	ActAs(label string) error
	Set(key, value string)
	Get(key string) (string, error)
}

// RegisterSteps registers artefact and governance step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &artefactSteps{tc: tc}

	// Catalogue steps
	ctx.Step(`^"([^"]*)" uploads an? "([^"]*)" artefact titled "([^"]*)" tagged "([^"]*)"$`, steps.upload)
	ctx.Step(`^"([^"]*)" uploads an artefact without a file$`, steps.uploadWithoutFile)
	ctx.Step(`^"([^"]*)" adds a version to "([^"]*)" noting "([^"]*)"$`, steps.addVersion)
	ctx.Step(`^"([^"]*)" retitles "([^"]*)" to "([^"]*)"$`, steps.retitle)
	ctx.Step(`^"([^"]*)" fetches "([^"]*)"$`, steps.fetch)
	ctx.Step(`^"([^"]*)" archives "([^"]*)"$`, steps.archive)
	ctx.Step(`^"([^"]*)" lists artefacts$`, steps.list)
	ctx.Step(`^"([^"]*)" asks for recommendations$`, steps.recommend)

	// Governance steps
	ctx.Step(`^"([^"]*)" submits "([^"]*)" for review$`, steps.submit)
	ctx.Step(`^"([^"]*)" lists pending reviews$`, steps.listPending)
	ctx.Step(`^"([^"]*)" (approves|rejects) "([^"]*)" because "([^"]*)"$`, steps.decide)
	ctx.Step(`^"([^"]*)" reads the audit trail$`, steps.readAudit)

	// Assertions
	ctx.Step(`^the list should contain "([^"]*)"$`, steps.listShouldContain)
	ctx.Step(`^the list should not contain "([^"]*)"$`, steps.listShouldNotContain)
	ctx.Step(`^the audit trail should record "([^"]*)" for "([^"]*)"$`, steps.auditShouldRecord)
}

type artefactSteps struct {
	tc TestContext
}

func (s *artefactSteps) upload(ctx context.Context, actor, classification, title, tags string) error {
	if err := s.tc.ActAs(actor); err != nil {
		return err
	}
	fields := map[string]string{
		"title":          title,
		"description":    "Uploaded by " + actor,
		"tags":           tags,
		"classification": classification,
		"changeNote":     "initial upload",
	}
	if err := s.tc.Multipart("/artefacts", fields, "notes.txt", []byte("body of "+title)); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 201 {
		return fmt.Errorf("upload %q: status %d: %s", title, status, s.tc.GetLastResponseBody())
	}
	artefactID, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Set("artefact:"+title, fmt.Sprint(artefactID))
	return nil
}

func (s *artefactSteps) uploadWithoutFile(ctx context.Context, actor string) error {
	if err := s.tc.ActAs(actor); err != nil {
		return err
	}
	return s.tc.Multipart("/artefacts", map[string]string{"title": "No file"}, "", nil)
}

func (s *artefactSteps) addVersion(ctx context.Context, actor, title, note string) error {
	artefactID, err := s.artefactID(actor, title)
	if err != nil {
		return err
	}
	return s.tc.Multipart("/artefacts/"+artefactID+"/versions",
		map[string]string{"changeNote": note}, "notes-v2.txt", []byte("revised "+title))
}

func (s *artefactSteps) retitle(ctx context.Context, actor, title, newTitle string) error {
	artefactID, err := s.artefactID(actor, title)
	if err != nil {
		return err
	}
	return s.tc.PUT("/artefacts/"+artefactID, map[string]interface{}{"title": newTitle})
}

func (s *artefactSteps) fetch(ctx context.Context, actor, title string) error {
	artefactID, err := s.artefactID(actor, title)
	if err != nil {
		return err
	}
	return s.tc.GET("/artefacts/"+artefactID, nil)
}

func (s *artefactSteps) archive(ctx context.Context, actor, title string) error {
	artefactID, err := s.artefactID(actor, title)
	if err != nil {
		return err
	}
	return s.tc.DELETE("/artefacts/" + artefactID)
}

func (s *artefactSteps) list(ctx context.Context, actor string) error {
	if err := s.tc.ActAs(actor); err != nil {
		return err
	}
	return s.tc.GET("/artefacts", nil)
}

func (s *artefactSteps) recommend(ctx context.Context, actor string) error {
	if err := s.tc.ActAs(actor); err != nil {
		return err
	}
	return s.tc.GET("/recommendations/auto", nil)
}

func (s *artefactSteps) submit(ctx context.Context, actor, title string) error {
	artefactID, err := s.artefactID(actor, title)
	if err != nil {
		return err
	}
	return s.tc.POST("/governance/submit", map[string]interface{}{"artefactId": artefactID})
}

func (s *artefactSteps) listPending(ctx context.Context, actor string) error {
	if err := s.tc.ActAs(actor); err != nil {
		return err
	}
	return s.tc.GET("/governance/pending", nil)
}

func (s *artefactSteps) decide(ctx context.Context, actor, verb, title, reason string) error {
	artefactID, err := s.artefactID(actor, title)
	if err != nil {
		return err
	}
	decision := "approved"
	if verb == "rejects" {
		decision = "rejected"
	}
	return s.tc.POST("/governance/decision", map[string]interface{}{
		"artefactId": artefactID,
		"decision":   decision,
		"reason":     reason,
	})
}

func (s *artefactSteps) readAudit(ctx context.Context, actor string) error {
	if err := s.tc.ActAs(actor); err != nil {
		return err
	}
	return s.tc.GET("/audit", nil)
}

func (s *artefactSteps) listShouldContain(ctx context.Context, title string) error {
	found, err := s.listHasTitle(title)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("expected %q in list: %s", title, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *artefactSteps) listShouldNotContain(ctx context.Context, title string) error {
	found, err := s.listHasTitle(title)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("did not expect %q in list: %s", title, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *artefactSteps) auditShouldRecord(ctx context.Context, action, title string) error {
	artefactID, err := s.tc.Get("artefact:" + title)
	if err != nil {
		return err
	}
	entries, err := s.tc.GetResponseList()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e["action"] == action && e["targetId"] == artefactID {
			return nil
		}
	}
	return fmt.Errorf("no %q entry for %q in audit trail", action, title)
}

func (s *artefactSteps) listHasTitle(title string) (bool, error) {
	items, err := s.tc.GetResponseList()
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item["title"] == title {
			return true, nil
		}
	}
	return false, nil
}

func (s *artefactSteps) artefactID(actor, title string) (string, error) {
	if err := s.tc.ActAs(actor); err != nil {
		return "", err
	}
	return s.tc.Get("artefact:" + title)
}
