package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"user_consent_gate/types"
)

const redisKeyPrefix = PluginName + ":"

type redisConfirmationRepository struct {
	client redis.Cmdable
	logger *zap.Logger
}

func NewRedisConfirmationRepository(client redis.Cmdable, logger *zap.Logger) ConfirmationRepository {
	return &redisConfirmationRepository{
		client: client,
		logger: logger,
	}
}

func (r *redisConfirmationRepository) Get(ctx context.Context, userID string) (*types.ConfirmationRecord, error) {
	key := redisKeyPrefix + StoreKey(userID)

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error("failed to get confirmation", zap.Error(err), zap.String("key", key))
		return nil, fmt.Errorf("failed to get confirmation: %w", err)
	}

	return decodeRecord(value)
}

func (r *redisConfirmationRepository) Set(ctx context.Context, userID string, record types.ConfirmationRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal confirmation: %w", err)
	}

	key := redisKeyPrefix + StoreKey(userID)
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		r.logger.Error("failed to store confirmation", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to store confirmation: %w", err)
	}

	r.logger.Debug("confirmation stored", zap.String("key", key))
	return nil
}
