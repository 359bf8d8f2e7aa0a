package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader() http.Header
	SetClientIP(ip string)
	UseBearer(token string)
	Get(key string) (string, error)
}

// RegisterSteps registers rate-limiting step definitions for the public
// credential routes.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I am calling from a fresh address$`, steps.callingFromFreshAddress)
	ctx.Step(`^I fail to log in as "([^"]*)" (\d+) times$`, steps.failLoginNTimes)
	ctx.Step(`^the (\d+)(?:st|nd|rd|th) attempt should have returned (\d+)$`, steps.nthAttemptShouldReturn)
	ctx.Step(`^the response should ask me to retry later$`, steps.responseShouldAskRetry)

	// Generic error messages prevent enumeration
	ctx.Step(`^I attempt login with unknown email "([^"]*)"$`, steps.attemptUnknownEmail)
	ctx.Step(`^I attempt login as "([^"]*)" with a wrong password$`, steps.attemptWrongPassword)
	ctx.Step(`^the error message should match the previous one$`, steps.errorShouldMatchPrevious)
}

type ratelimitSteps struct {
	tc       TestContext
	statuses []int
	lastErr  string
}

func (s *ratelimitSteps) callingFromFreshAddress(ctx context.Context) error {
	n := time.Now().UnixNano() / int64(time.Microsecond)
	s.tc.SetClientIP(fmt.Sprintf("198.51.%d.%d", (n>>8)&0xff, n&0xff))
	s.tc.UseBearer("")
	return nil
}

func (s *ratelimitSteps) failLoginNTimes(ctx context.Context, label string, times int) error {
	email, err := s.tc.Get("email:" + label)
	if err != nil {
		return err
	}
	s.statuses = s.statuses[:0]
	for i := 0; i < times; i++ {
		if err := s.tc.POST("/auth/login", map[string]interface{}{
			"email":    email,
			"password": "definitely-wrong",
		}); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) nthAttemptShouldReturn(ctx context.Context, n, expectedStatus int) error {
	if n < 1 || n > len(s.statuses) {
		return fmt.Errorf("only %d attempts recorded", len(s.statuses))
	}
	if got := s.statuses[n-1]; got != expectedStatus {
		return fmt.Errorf("attempt %d: expected %d, got %d (all: %v)", n, expectedStatus, got, s.statuses)
	}
	return nil
}

func (s *ratelimitSteps) responseShouldAskRetry(ctx context.Context) error {
	if s.tc.GetLastResponseStatus() != http.StatusTooManyRequests {
		return fmt.Errorf("expected 429, got %d", s.tc.GetLastResponseStatus())
	}
	retry, err := strconv.Atoi(s.tc.GetLastResponseHeader().Get("Retry-After"))
	if err != nil || retry < 1 {
		return fmt.Errorf("missing or invalid Retry-After header")
	}
	code, err := s.tc.GetResponseField("error")
	if err != nil {
		return err
	}
	if code != "rate_limit_exceeded" {
		return fmt.Errorf("unexpected error code %v", code)
	}
	return nil
}

func (s *ratelimitSteps) attemptUnknownEmail(ctx context.Context, email string) error {
	if err := s.tc.POST("/auth/login", map[string]interface{}{
		"email":    email,
		"password": "whatever-password",
	}); err != nil {
		return err
	}
	msg, err := s.errorDescription()
	if err != nil {
		return err
	}
	s.lastErr = msg
	return nil
}

func (s *ratelimitSteps) attemptWrongPassword(ctx context.Context, label string) error {
	email, err := s.tc.Get("email:" + label)
	if err != nil {
		return err
	}
	return s.tc.POST("/auth/login", map[string]interface{}{
		"email":    email,
		"password": "definitely-wrong",
	})
}

func (s *ratelimitSteps) errorShouldMatchPrevious(ctx context.Context) error {
	msg, err := s.errorDescription()
	if err != nil {
		return err
	}
	if msg != s.lastErr {
		return fmt.Errorf("error messages differ: %q vs %q", s.lastErr, msg)
	}
	return nil
}

func (s *ratelimitSteps) errorDescription() (string, error) {
	v, err := s.tc.GetResponseField("error_description")
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}
