package consent

import (
	"errors"
	"strings"
)

var (
	// ErrFeatureDisabled is returned by the write API while user_consent_enabled is off.
	ErrFeatureDisabled = errors.New("user consent is disabled")
	// ErrNotAuthenticated is returned by the write API when there is no session.
	ErrNotAuthenticated = errors.New("not logged in")
	// ErrPersistenceUnavailable wraps confirmation store failures.
	ErrPersistenceUnavailable = errors.New("confirmation store unavailable")
	// ErrLocalStorageUnavailable is reported by marker stores. Callers treat it
	// as "not confirmed" and never propagate it.
	ErrLocalStorageUnavailable = errors.New("local storage unavailable")
	// ErrInProgress is returned to a caller that lost the single-flight race.
	ErrInProgress = errors.New("confirmation already in progress")
)

// RedirectTarget is where a visitor who declines is sent.
func RedirectTarget(redirectURL string) string {
	if target := strings.TrimSpace(redirectURL); target != "" {
		return target
	}
	return "/"
}
