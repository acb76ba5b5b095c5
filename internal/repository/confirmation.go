package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"user_consent_gate/types"
)

// PluginName scopes every row this service owns in plugin_store_rows.
const PluginName = "discourse-user-consent"

const storeTypeJSON = "JSON"

// StoreKey is the stable key a user's confirmation lives under.
func StoreKey(userID string) string {
	return "user:" + userID
}

// ConfirmationRepository persists one ConfirmationRecord per user.
// Get returns (nil, nil) when the user never confirmed.
type ConfirmationRepository interface {
	Get(ctx context.Context, userID string) (*types.ConfirmationRecord, error)
	Set(ctx context.Context, userID string, record types.ConfirmationRecord) error
}

// dbPool is the subset of *pgxpool.Pool the postgres repository uses.
type dbPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type confirmationRepository struct {
	db     dbPool
	logger *zap.Logger
}

func NewConfirmationRepository(db dbPool, logger *zap.Logger) ConfirmationRepository {
	return &confirmationRepository{
		db:     db,
		logger: logger,
	}
}

func (r *confirmationRepository) Get(ctx context.Context, userID string) (*types.ConfirmationRecord, error) {
	query := `
		SELECT plugin_name, key, type_name, value
		FROM plugin_store_rows
		WHERE plugin_name = $1 AND key = $2
	`

	key := StoreKey(userID)
	var row types.PluginStoreRow
	err := r.db.QueryRow(ctx, query, PluginName, key).Scan(
		&row.PluginName,
		&row.Key,
		&row.TypeName,
		&row.Value,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get confirmation", zap.Error(err), zap.String("key", key))
		return nil, fmt.Errorf("failed to get confirmation: %w", err)
	}

	if row.TypeName != storeTypeJSON {
		r.logger.Warn("unexpected store row type", zap.String("key", key), zap.String("type_name", row.TypeName))
	}

	return decodeRecord(row.Value)
}

func (r *confirmationRepository) Set(ctx context.Context, userID string, record types.ConfirmationRecord) error {
	query := `
		INSERT INTO plugin_store_rows (plugin_name, key, type_name, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (plugin_name, key)
		DO UPDATE SET type_name = EXCLUDED.type_name, value = EXCLUDED.value
	`

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal confirmation: %w", err)
	}

	key := StoreKey(userID)
	if _, err := r.db.Exec(ctx, query, PluginName, key, storeTypeJSON, string(value)); err != nil {
		r.logger.Error("failed to store confirmation", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to store confirmation: %w", err)
	}

	r.logger.Debug("confirmation stored", zap.String("key", key))
	return nil
}

func decodeRecord(value string) (*types.ConfirmationRecord, error) {
	var record types.ConfirmationRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return nil, fmt.Errorf("failed to decode confirmation: %w", err)
	}
	return &record, nil
}
