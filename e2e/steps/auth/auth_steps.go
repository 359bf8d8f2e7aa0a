package auth

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	AdminCredentials() (string, string)
	Unique(name string) string
	SetToken(label, token string)
	Token(label string) (string, error)
	UseBearer(token string)
	Set(key, value string)
	Get(key string) (string, error)
}

// RegisterSteps registers authentication-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	// Session steps
	ctx.Step(`^I am logged in as the administrator$`, steps.loginAsAdmin)
	ctx.Step(`^a region "([^"]*)" exists$`, steps.regionExists)
	ctx.Step(`^a contributor "([^"]*)" is registered in region "([^"]*)"$`, steps.registerContributor)
	ctx.Step(`^I register "([^"]*)" with password "([^"]*)" in region "([^"]*)"$`, steps.register)
	ctx.Step(`^I log in as "([^"]*)" with password "([^"]*)"$`, steps.login)
	ctx.Step(`^I log out as "([^"]*)"$`, steps.logout)
	ctx.Step(`^I request my profile as "([^"]*)"$`, steps.profile)

	// Validation steps
	ctx.Step(`^I GET "([^"]*)" with invalid token "([^"]*)"$`, steps.getWithInvalidToken)
}

type authSteps struct {
	tc TestContext
}

func (s *authSteps) loginAsAdmin(ctx context.Context) error {
	email, password := s.tc.AdminCredentials()
	if err := s.tc.POST("/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	}); err != nil {
		return err
	}
	if err := s.storeToken("admin", 200); err != nil {
		return err
	}
	region, err := s.tc.GetResponseField("user.regionId")
	if err != nil {
		return err
	}
	s.tc.Set("region:administrator", fmt.Sprint(region))
	return nil
}

func (s *authSteps) regionExists(ctx context.Context, name string) error {
	admin, err := s.tc.Token("admin")
	if err != nil {
		if err := s.loginAsAdmin(ctx); err != nil {
			return err
		}
		admin, _ = s.tc.Token("admin")
	}
	s.tc.UseBearer(admin)
	defer s.tc.UseBearer("")

	if err := s.tc.POST("/regions", map[string]interface{}{"name": s.tc.Unique(name)}); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 201 {
		return fmt.Errorf("create region: status %d: %s", status, s.tc.GetLastResponseBody())
	}
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Set("region:"+name, fmt.Sprint(id))
	return nil
}

func (s *authSteps) registerContributor(ctx context.Context, label, region string) error {
	if err := s.register(ctx, label, "correct-horse-battery", region); err != nil {
		return err
	}
	return s.storeToken(label, 201)
}

func (s *authSteps) register(ctx context.Context, label, password, region string) error {
	regionID, err := s.tc.Get("region:" + region)
	if err != nil {
		return err
	}
	email := s.tc.Unique(label + "@example.com")
	s.tc.Set("email:"+label, email)
	return s.tc.POST("/auth/register", map[string]interface{}{
		"name":     label,
		"email":    email,
		"password": password,
		"regionId": regionID,
	})
}

func (s *authSteps) login(ctx context.Context, label, password string) error {
	email, err := s.tc.Get("email:" + label)
	if err != nil {
		return err
	}
	if err := s.tc.POST("/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() == 200 {
		return s.storeToken(label, 200)
	}
	return nil
}

func (s *authSteps) logout(ctx context.Context, label string) error {
	tok, err := s.tc.Token(label)
	if err != nil {
		return err
	}
	s.tc.UseBearer(tok)
	return s.tc.POST("/auth/logout", nil)
}

func (s *authSteps) profile(ctx context.Context, label string) error {
	tok, err := s.tc.Token(label)
	if err != nil {
		return err
	}
	s.tc.UseBearer(tok)
	return s.tc.GET("/auth/me", nil)
}

func (s *authSteps) getWithInvalidToken(ctx context.Context, path, token string) error {
	s.tc.UseBearer("")
	return s.tc.GET(path, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func (s *authSteps) storeToken(label string, wantStatus int) error {
	if status := s.tc.GetLastResponseStatus(); status != wantStatus {
		return fmt.Errorf("expected status %d, got %d: %s", wantStatus, status, s.tc.GetLastResponseBody())
	}
	tok, err := s.tc.GetResponseField("token")
	if err != nil {
		return err
	}
	token, ok := tok.(string)
	if !ok || token == "" {
		return fmt.Errorf("token missing from response")
	}
	s.tc.SetToken(label, token)
	return nil
}
