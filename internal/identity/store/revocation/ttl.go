package revocation

import (
	"time"

	dErrors "kvault/pkg/domain-errors"
)

// Clock returns the current time; injected for tests.
type Clock func() time.Time

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "ttl must be positive")
	}
	return nil
}
