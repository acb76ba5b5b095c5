package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"user_consent_gate/internal/messaging"
	"user_consent_gate/types"
)

// CacheInvalidator drops a user's cached confirmation.
type CacheInvalidator interface {
	Invalidate(userID string)
}

// InvalidateOnConfirmed evicts a user's cached confirmation whenever any
// replica publishes a confirmation for them.
func InvalidateOnConfirmed(ctx context.Context, publisher messaging.EventPublisher, cache CacheInvalidator, logger *zap.Logger) error {
	err := publisher.SubscribeToConfirmed(ctx, func(event types.ConfirmedEvent) {
		if event.UserID == "" {
			logger.Warn("confirmation event without user id", zap.String("event_id", event.EventID))
			return
		}
		cache.Invalidate(event.UserID)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to confirmation events: %w", err)
	}
	return nil
}
