package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stpaulclark/merit-api/internal/models"
)

// QuotaRepository manages per-teacher weekly quota rows. Rows double as
// limit overrides and as advisory issued-counters; live record sums remain
// the source of truth for enforcement.
type QuotaRepository struct {
	db *sqlx.DB
}

// NewQuotaRepository constructs a new repository.
func NewQuotaRepository(db *sqlx.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// Find returns the quota row for a teacher and school week, or sql.ErrNoRows.
func (r *QuotaRepository) Find(ctx context.Context, teacherID string, weekStart time.Time) (*models.WeeklyQuota, error) {
	var quota models.WeeklyQuota
	err := r.db.GetContext(ctx, &quota,
		`SELECT id, teacher_id, week_start, merits_issued, quota_limit, created_at, updated_at
FROM weekly_quotas WHERE teacher_id = $1 AND week_start = $2`,
		teacherID, weekStart)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find weekly quota: %w", err)
	}
	return &quota, nil
}

// Limit resolves the effective merit limit for a teacher and week, falling
// back to the default when no override row exists.
func (r *QuotaRepository) Limit(ctx context.Context, teacherID string, weekStart time.Time, fallback int) (int, error) {
	quota, err := r.Find(ctx, teacherID, weekStart)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fallback, nil
		}
		return 0, err
	}
	if quota.QuotaLimit <= 0 {
		return fallback, nil
	}
	return quota.QuotaLimit, nil
}

// SetLimit upserts a limit override for a teacher and school week.
func (r *QuotaRepository) SetLimit(ctx context.Context, teacherID string, weekStart time.Time, limit int) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO weekly_quotas (id, teacher_id, week_start, merits_issued, quota_limit, created_at, updated_at)
VALUES ($1, $2, $3, 0, $4, $5, $5)
ON CONFLICT (teacher_id, week_start)
DO UPDATE SET quota_limit = EXCLUDED.quota_limit, updated_at = EXCLUDED.updated_at`,
		uuid.NewString(), teacherID, weekStart, limit, now)
	if err != nil {
		return fmt.Errorf("set quota limit: %w", err)
	}
	return nil
}

// ListForWeek returns every quota row recorded for a school week.
func (r *QuotaRepository) ListForWeek(ctx context.Context, weekStart time.Time) ([]models.WeeklyQuota, error) {
	var quotas []models.WeeklyQuota
	err := r.db.SelectContext(ctx, &quotas,
		`SELECT id, teacher_id, week_start, merits_issued, quota_limit, created_at, updated_at
FROM weekly_quotas WHERE week_start = $1 ORDER BY teacher_id`,
		weekStart)
	if err != nil {
		return nil, fmt.Errorf("list weekly quotas: %w", err)
	}
	return quotas, nil
}
