package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"user_consent_gate/types"
)

type mockConfirmationRepository struct {
	getFunc  func(ctx context.Context, userID string) (*types.ConfirmationRecord, error)
	setFunc  func(ctx context.Context, userID string, record types.ConfirmationRecord) error
	getCalls int
}

func (m *mockConfirmationRepository) Get(ctx context.Context, userID string) (*types.ConfirmationRecord, error) {
	m.getCalls++
	if m.getFunc != nil {
		return m.getFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockConfirmationRepository) Set(ctx context.Context, userID string, record types.ConfirmationRecord) error {
	if m.setFunc != nil {
		return m.setFunc(ctx, userID, record)
	}
	return nil
}

func TestMemoryConfirmationRepository(t *testing.T) {
	repo := NewMemoryConfirmationRepository(zaptest.NewLogger(t))
	ctx := context.Background()

	record, err := repo.Get(ctx, "1")
	if err != nil || record != nil {
		t.Fatalf("expected empty store, got %+v, %v", record, err)
	}

	want := types.ConfirmationRecord{ConfirmedAt: "2025-03-14T12:00:00Z"}
	if err := repo.Set(ctx, "1", want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record, err = repo.Get(ctx, "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record == nil || *record != want {
		t.Errorf("expected %+v, but got %+v", want, record)
	}

	if other, _ := repo.Get(ctx, "2"); other != nil {
		t.Errorf("expected records to be per user, but got %+v for another user", other)
	}
}

func TestCachedConfirmationRepository(t *testing.T) {
	stored := &types.ConfirmationRecord{ConfirmedAt: "2025-03-01T00:00:00Z"}
	inner := &mockConfirmationRepository{
		getFunc: func(ctx context.Context, userID string) (*types.ConfirmationRecord, error) {
			return stored, nil
		},
	}

	repo := NewCachedConfirmationRepository(inner, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		record, err := repo.Get(ctx, "1")
		if err != nil || record == nil || *record != *stored {
			t.Fatalf("unexpected result: %+v, %v", record, err)
		}
	}
	if inner.getCalls != 1 {
		t.Errorf("expected 1 call to the backing store, but got %d", inner.getCalls)
	}

	updated := types.ConfirmationRecord{ConfirmedAt: "2025-03-14T00:00:00Z"}
	if err := repo.Set(ctx, "1", updated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	record, _ := repo.Get(ctx, "1")
	if record == nil || *record != updated {
		t.Errorf("expected own write %+v, but got %+v", updated, record)
	}
}

func TestCachedConfirmationRepositoryInvalidate(t *testing.T) {
	stored := types.ConfirmationRecord{ConfirmedAt: "2025-01-01T00:00:00Z"}
	inner := &mockConfirmationRepository{
		getFunc: func(ctx context.Context, userID string) (*types.ConfirmationRecord, error) {
			record := stored
			return &record, nil
		},
	}

	repo := NewCachedConfirmationRepository(inner, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	if _, err := repo.Get(ctx, "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Another replica reaffirms the user behind this cache's back.
	stored = types.ConfirmationRecord{ConfirmedAt: "2025-03-14T00:00:00Z"}

	record, _ := repo.Get(ctx, "1")
	if record == nil || record.ConfirmedAt != "2025-01-01T00:00:00Z" {
		t.Fatalf("expected cached record before invalidation, but got %+v", record)
	}

	repo.Invalidate("1")
	repo.Invalidate("unknown")

	record, _ = repo.Get(ctx, "1")
	if record == nil || *record != stored {
		t.Errorf("expected fresh record %+v after invalidation, but got %+v", stored, record)
	}
	if inner.getCalls != 2 {
		t.Errorf("expected 2 calls to the backing store, but got %d", inner.getCalls)
	}
}

func TestCachedConfirmationRepositoryDoesNotCacheMissesOrFailures(t *testing.T) {
	failing := true
	inner := &mockConfirmationRepository{
		getFunc: func(ctx context.Context, userID string) (*types.ConfirmationRecord, error) {
			if failing {
				return nil, errors.New("connection refused")
			}
			return nil, nil
		},
		setFunc: func(ctx context.Context, userID string, record types.ConfirmationRecord) error {
			return errors.New("connection refused")
		},
	}

	repo := NewCachedConfirmationRepository(inner, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	if _, err := repo.Get(ctx, "1"); err == nil {
		t.Fatal("expected error, but got nil")
	}

	failing = false
	if record, err := repo.Get(ctx, "1"); err != nil || record != nil {
		t.Fatalf("expected miss, got %+v, %v", record, err)
	}

	if err := repo.Set(ctx, "1", types.ConfirmationRecord{ConfirmedAt: "2025-03-14T00:00:00Z"}); err == nil {
		t.Fatal("expected error, but got nil")
	}
	if record, _ := repo.Get(ctx, "1"); record != nil {
		t.Errorf("expected failed write not to be cached, but got %+v", record)
	}
	if inner.getCalls != 3 {
		t.Errorf("expected 3 calls to the backing store, but got %d", inner.getCalls)
	}
}
