package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"user_consent_gate/types"
)

const SubjectConfirmed = "user_consent.confirmed"

type EventPublisher interface {
	PublishConfirmed(ctx context.Context, event types.ConfirmedEvent) error
	SubscribeToConfirmed(ctx context.Context, handler func(types.ConfirmedEvent)) error
	Close()
}

// natsConnection is the subset of *nats.Conn the client uses.
type natsConnection interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

type natsClient struct {
	conn   natsConnection
	logger *zap.Logger
}

func NewNATSClient(url string, logger *zap.Logger) (EventPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("user-consent-gate"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", zap.String("url", url))
	return newNATSClient(conn, logger), nil
}

func newNATSClient(conn natsConnection, logger *zap.Logger) *natsClient {
	return &natsClient{
		conn:   conn,
		logger: logger,
	}
}

func (c *natsClient) PublishConfirmed(ctx context.Context, event types.ConfirmedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to marshal confirmation event", zap.Error(err))
		return fmt.Errorf("failed to marshal confirmation event: %w", err)
	}

	if err := c.conn.Publish(SubjectConfirmed, data); err != nil {
		c.logger.Error("failed to publish confirmation event", zap.Error(err), zap.String("user_id", event.UserID))
		return fmt.Errorf("failed to publish confirmation event: %w", err)
	}

	c.logger.Debug("confirmation event published", zap.String("event_id", event.EventID), zap.String("user_id", event.UserID))
	return nil
}

func (c *natsClient) SubscribeToConfirmed(ctx context.Context, handler func(types.ConfirmedEvent)) error {
	_, err := c.conn.Subscribe(SubjectConfirmed, func(msg *nats.Msg) {
		var event types.ConfirmedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			c.logger.Error("failed to unmarshal confirmation event", zap.Error(err))
			return
		}

		handler(event)
	})
	if err != nil {
		c.logger.Error("failed to subscribe to confirmation events", zap.Error(err))
		return fmt.Errorf("failed to subscribe to confirmation events: %w", err)
	}

	c.logger.Info("subscribed to confirmation events")
	return nil
}

func (c *natsClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.logger.Info("NATS connection closed")
	}
}

type noopPublisher struct{}

// NewNoopPublisher is used when no NATS URL is configured.
func NewNoopPublisher() EventPublisher { return noopPublisher{} }

func (noopPublisher) PublishConfirmed(context.Context, types.ConfirmedEvent) error { return nil }

func (noopPublisher) SubscribeToConfirmed(context.Context, func(types.ConfirmedEvent)) error {
	return nil
}

func (noopPublisher) Close() {}
