package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type MigrationStatus int

const (
	MigrationSkipped MigrationStatus = iota
	MigrationMigrated
	MigrationFailed
)

func (s MigrationStatus) String() string {
	switch s {
	case MigrationMigrated:
		return "migrated"
	case MigrationFailed:
		return "failed"
	default:
		return "skipped"
	}
}

type SkipReason string

const (
	SkipNoUser           SkipReason = "no-user"
	SkipAlreadyConfirmed SkipReason = "already-confirmed"
	SkipNoLocalConsent   SkipReason = "no-local-consent"
	SkipInProgress       SkipReason = "in-progress"
)

type MigrationResult struct {
	Status MigrationStatus
	Reason SkipReason
	Err    error
}

func (r MigrationResult) String() string {
	switch r.Status {
	case MigrationSkipped:
		return fmt.Sprintf("skipped(%s)", r.Reason)
	case MigrationFailed:
		return fmt.Sprintf("failed(%v)", r.Err)
	default:
		return r.Status.String()
	}
}

func skipped(reason SkipReason) MigrationResult {
	return MigrationResult{Status: MigrationSkipped, Reason: reason}
}

// Migrate turns a device marker left by an anonymous confirmation into a
// server record for the now authenticated user. The marker is cleared only
// after the server accepted the confirmation, or when the user already has
// a record of their own.
func (s *Session) Migrate(ctx context.Context) MigrationResult {
	user := s.User()
	if user == nil {
		return skipped(SkipNoUser)
	}

	if user.ConfirmedAt != "" {
		s.clearMarker(ctx)
		return skipped(SkipAlreadyConfirmed)
	}

	if !s.markerPresent(ctx) {
		return skipped(SkipNoLocalConsent)
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		return skipped(SkipInProgress)
	}
	defer s.inFlight.Store(false)

	confirmedAt, err := s.submit(ctx)
	if err != nil {
		s.logger.Error("user consent migration failed", zap.Error(err), zap.String("user_id", user.UserID))
		return MigrationResult{Status: MigrationFailed, Err: err}
	}

	s.clearMarker(ctx)
	s.logger.Info("user consent migrated from anonymous to authenticated",
		zap.String("user_id", user.UserID),
		zap.String("confirmed_at", confirmedAt))

	return MigrationResult{Status: MigrationMigrated}
}
