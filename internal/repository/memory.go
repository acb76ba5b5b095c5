package repository

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"user_consent_gate/types"
)

// memoryConfirmationRepository keeps records in process memory. Records never
// expire; it is meant for development and single-node setups.
type memoryConfirmationRepository struct {
	c      *gocache.Cache
	logger *zap.Logger
}

func NewMemoryConfirmationRepository(logger *zap.Logger) ConfirmationRepository {
	return &memoryConfirmationRepository{
		c:      gocache.New(gocache.NoExpiration, 0),
		logger: logger,
	}
}

func (r *memoryConfirmationRepository) Get(_ context.Context, userID string) (*types.ConfirmationRecord, error) {
	v, ok := r.c.Get(StoreKey(userID))
	if !ok {
		return nil, nil
	}
	record := v.(types.ConfirmationRecord)
	return &record, nil
}

func (r *memoryConfirmationRepository) Set(_ context.Context, userID string, record types.ConfirmationRecord) error {
	r.c.Set(StoreKey(userID), record, gocache.NoExpiration)
	r.logger.Debug("confirmation stored", zap.String("key", StoreKey(userID)))
	return nil
}

// CachedConfirmationRepository serves Get from a short-lived cache. Set writes
// through and refreshes the cached entry, so a user always reads their own write.
// Writes made by other replicas become visible after Invalidate or the TTL.
type CachedConfirmationRepository struct {
	next   ConfirmationRepository
	c      *gocache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedConfirmationRepository(next ConfirmationRepository, ttl time.Duration, logger *zap.Logger) *CachedConfirmationRepository {
	return &CachedConfirmationRepository{
		next:   next,
		c:      gocache.New(ttl, 2*ttl),
		ttl:    ttl,
		logger: logger,
	}
}

func (r *CachedConfirmationRepository) Get(ctx context.Context, userID string) (*types.ConfirmationRecord, error) {
	key := StoreKey(userID)
	if v, ok := r.c.Get(key); ok {
		record := v.(types.ConfirmationRecord)
		return &record, nil
	}

	record, err := r.next.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		r.c.Set(key, *record, r.ttl)
	}
	return record, nil
}

func (r *CachedConfirmationRepository) Set(ctx context.Context, userID string, record types.ConfirmationRecord) error {
	key := StoreKey(userID)
	if err := r.next.Set(ctx, userID, record); err != nil {
		r.c.Delete(key)
		return err
	}
	r.c.Set(key, record, r.ttl)
	return nil
}

// Invalidate drops the cached record so the next Get reads the backing store.
func (r *CachedConfirmationRepository) Invalidate(userID string) {
	r.c.Delete(StoreKey(userID))
	r.logger.Debug("cached confirmation invalidated", zap.String("key", StoreKey(userID)))
}
