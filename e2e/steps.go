package e2e

import (
	"github.com/cucumber/godog"

	"kvault/e2e/steps/artefact"
	"kvault/e2e/steps/auth"
	"kvault/e2e/steps/common"
	"kvault/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (background, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register authentication-specific steps
	auth.RegisterSteps(ctx, tc)

	// Register catalogue and governance steps
	artefact.RegisterSteps(ctx, tc)

	ratelimit.RegisterSteps(ctx, tc)
}
