package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"user_consent_gate/internal/consent"
	"user_consent_gate/internal/messaging"
	"user_consent_gate/internal/repository"
	"user_consent_gate/types"
)

var confirmationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "user_consent_confirmations_total",
		Help: "Confirmation submissions handled by the write API, by result.",
	},
	[]string{"result"},
)

type ConfirmationService interface {
	// Confirm records a confirmation for userID at the server clock and returns
	// the persisted confirmed_at.
	Confirm(ctx context.Context, userID, ipAddress string) (string, error)
	ConfirmedAt(ctx context.Context, userID string) (string, error)
	CurrentUser(ctx context.Context, userID string, admin bool) (*types.CurrentUser, error)
	Settings() types.PublicSettings
}

type confirmationService struct {
	repo      repository.ConfirmationRepository
	publisher messaging.EventPublisher
	policy    consent.Policy
	now       func() time.Time
	logger    *zap.Logger
}

func NewConfirmationService(repo repository.ConfirmationRepository, publisher messaging.EventPublisher, policy consent.Policy, logger *zap.Logger) ConfirmationService {
	return &confirmationService{
		repo:      repo,
		publisher: publisher,
		policy:    policy,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *confirmationService) Confirm(ctx context.Context, userID, ipAddress string) (string, error) {
	if !s.policy.Enabled {
		confirmationsTotal.WithLabelValues("disabled").Inc()
		return "", consent.ErrFeatureDisabled
	}

	if userID == "" {
		confirmationsTotal.WithLabelValues("unauthenticated").Inc()
		return "", consent.ErrNotAuthenticated
	}

	record := types.ConfirmationRecord{ConfirmedAt: consent.FormatTimestamp(s.now())}
	if s.policy.StoreIP && ipAddress != "" {
		record.IPAddress = ipAddress
	}

	if err := s.repo.Set(ctx, userID, record); err != nil {
		confirmationsTotal.WithLabelValues("error").Inc()
		s.logger.Error("failed to record confirmation", zap.Error(err), zap.String("user_id", userID))
		return "", fmt.Errorf("failed to record confirmation: %w: %w", consent.ErrPersistenceUnavailable, err)
	}

	confirmedAt, err := s.ConfirmedAt(ctx, userID)
	if err != nil || confirmedAt == "" {
		s.logger.Warn("failed to read back confirmation", zap.Error(err), zap.String("user_id", userID))
		confirmedAt = record.ConfirmedAt
	}

	confirmationsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("user consent confirmed", zap.String("user_id", userID), zap.String("confirmed_at", confirmedAt))

	event := types.ConfirmedEvent{
		EventID:     uuid.New().String(),
		UserID:      userID,
		ConfirmedAt: confirmedAt,
		IPStored:    record.IPAddress != "",
	}
	if err := s.publisher.PublishConfirmed(ctx, event); err != nil {
		s.logger.Warn("confirmation stored but event not published", zap.Error(err), zap.String("user_id", userID))
	}

	return confirmedAt, nil
}

// ConfirmedAt returns the user's confirmation time normalized to RFC 3339, or
// "" if the user never confirmed or the stored value is unreadable.
func (s *confirmationService) ConfirmedAt(ctx context.Context, userID string) (string, error) {
	record, err := s.repo.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get confirmation: %w: %w", consent.ErrPersistenceUnavailable, err)
	}

	if record == nil {
		return "", nil
	}

	t, ok := consent.ParseTimestamp(record.ConfirmedAt)
	if !ok {
		s.logger.Warn("unreadable confirmed_at in store", zap.String("user_id", userID), zap.String("value", record.ConfirmedAt))
		return "", nil
	}
	return consent.FormatTimestamp(t), nil
}

func (s *confirmationService) CurrentUser(ctx context.Context, userID string, admin bool) (*types.CurrentUser, error) {
	if userID == "" {
		return nil, consent.ErrNotAuthenticated
	}

	user := &types.CurrentUser{ID: userID, Admin: admin}

	confirmedAt, err := s.ConfirmedAt(ctx, userID)
	if err != nil {
		return nil, err
	}
	if confirmedAt != "" {
		user.UserConsentConfirmedAt = &confirmedAt
	}

	return user, nil
}

func (s *confirmationService) Settings() types.PublicSettings {
	return types.PublicSettings{
		Enabled:      s.policy.Enabled,
		ReaffirmDays: s.policy.ReaffirmDays,
		RedirectURL:  s.policy.RedirectURL,
	}
}
