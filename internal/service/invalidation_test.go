package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"user_consent_gate/types"
)

type mockCacheInvalidator struct {
	invalidated []string
}

func (m *mockCacheInvalidator) Invalidate(userID string) {
	m.invalidated = append(m.invalidated, userID)
}

func TestInvalidateOnConfirmed(t *testing.T) {
	publisher := &mockEventPublisher{}
	cache := &mockCacheInvalidator{}

	if err := InvalidateOnConfirmed(context.Background(), publisher, cache, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if publisher.handler == nil {
		t.Fatal("expected a subscription handler to be registered")
	}

	publisher.handler(types.ConfirmedEvent{EventID: "e1", UserID: "42"})
	publisher.handler(types.ConfirmedEvent{EventID: "e2"})
	publisher.handler(types.ConfirmedEvent{EventID: "e3", UserID: "7"})

	if len(cache.invalidated) != 2 || cache.invalidated[0] != "42" || cache.invalidated[1] != "7" {
		t.Errorf("expected invalidations [42 7], but got %v", cache.invalidated)
	}
}

func TestInvalidateOnConfirmedSubscribeError(t *testing.T) {
	publisher := &mockEventPublisher{subscribeErr: errors.New("nats: connection closed")}

	err := InvalidateOnConfirmed(context.Background(), publisher, &mockCacheInvalidator{}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected error, but got nil")
	}
	if !errors.Is(err, publisher.subscribeErr) {
		t.Errorf("expected wrapped subscribe error, but got %v", err)
	}
}
