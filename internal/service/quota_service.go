package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/period"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type quotaRepository interface {
	Limit(ctx context.Context, teacherID string, weekStart time.Time, fallback int) (int, error)
	SetLimit(ctx context.Context, teacherID string, weekStart time.Time, limit int) error
	ListForWeek(ctx context.Context, weekStart time.Time) ([]models.WeeklyQuota, error)
}

type teacherMeritSummer interface {
	SumTeacherMerits(ctx context.Context, teacherID string, from, to time.Time) (int, error)
}

// QuotaService answers weekly merit allowance questions. The remaining
// allowance is always recomputed from live record sums; persisted counters
// are advisory only.
type QuotaService struct {
	quotas       quotaRepository
	records      teacherMeritSummer
	defaultLimit int
	logger       *zap.Logger
	now          func() time.Time
}

// NewQuotaService constructs the service.
func NewQuotaService(quotas quotaRepository, records teacherMeritSummer, defaultLimit int, logger *zap.Logger) *QuotaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaService{
		quotas:       quotas,
		records:      records,
		defaultLimit: defaultLimit,
		logger:       logger,
		now:          time.Now,
	}
}

// Status reports a teacher's live allowance for the school week containing
// now. Principals and admins are exempt and report as unlimited.
func (s *QuotaService) Status(ctx context.Context, teacherID string, role models.UserRole) (*models.QuotaStatus, error) {
	now := s.now()
	weekStart := period.WeekStart(now)
	weekEnd := period.WeekEnd(now)

	status := &models.QuotaStatus{
		TeacherID: teacherID,
		WeekStart: weekStart,
		WeekEnd:   weekEnd,
	}
	if role.QuotaExempt() {
		status.Unlimited = true
		return status, nil
	}

	limit, err := s.quotas.Limit(ctx, teacherID, weekStart, s.defaultLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve quota limit")
	}
	used, err := s.records.SumTeacherMerits(ctx, teacherID, weekStart, weekEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum issued merits")
	}

	status.Limit = limit
	status.Used = used
	status.Remaining = limit - used
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	return status, nil
}

// SetLimit records a per-teacher override for the current school week.
func (s *QuotaService) SetLimit(ctx context.Context, actor Actor, teacherID string, limit int) error {
	if actor.Role != models.RoleAdmin && actor.Role != models.RolePrincipal {
		return appErrors.Clone(appErrors.ErrForbidden, "only principals and admins can override quotas")
	}
	if limit < 1 {
		return appErrors.Clone(appErrors.ErrValidation, "quota limit must be at least 1")
	}
	weekStart := period.WeekStart(s.now())
	if err := s.quotas.SetLimit(ctx, teacherID, weekStart, limit); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set quota limit")
	}
	s.logger.Info("quota limit overridden",
		zap.String("teacher_id", teacherID),
		zap.Time("week_start", weekStart),
		zap.Int("limit", limit))
	return nil
}

// WeekOverview lists the advisory quota rows for the current school week.
func (s *QuotaService) WeekOverview(ctx context.Context, actor Actor) ([]models.WeeklyQuota, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RolePrincipal {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only principals and admins can view the quota overview")
	}
	quotas, err := s.quotas.ListForWeek(ctx, period.WeekStart(s.now()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list weekly quotas")
	}
	return quotas, nil
}
