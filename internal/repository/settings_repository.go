package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stpaulclark/merit-api/internal/models"
)

// SettingsRepository persists key/value settings, notably the counting
// period reset timestamp.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs a new repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns a setting value, or sql.ErrNoRows when unset.
func (r *SettingsRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	err := r.db.GetContext(ctx, &setting,
		`SELECT key, value, updated_at FROM settings WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return &setting, nil
}

// Set upserts a setting value.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now())
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// ResetDate returns the counting-period start. When no reset was ever
// recorded the zero time is returned and every record counts.
func (r *SettingsRepository) ResetDate(ctx context.Context) (time.Time, error) {
	setting, err := r.Get(ctx, models.SettingMonthlyResetDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, setting.Value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse reset date: %w", err)
	}
	return ts, nil
}

// SetResetDate advances the counting period to start at ts.
func (r *SettingsRepository) SetResetDate(ctx context.Context, ts time.Time) error {
	return r.Set(ctx, models.SettingMonthlyResetDate, ts.Format(time.RFC3339))
}
