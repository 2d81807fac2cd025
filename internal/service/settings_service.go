package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/period"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type settingsRepository interface {
	ResetDate(ctx context.Context) (time.Time, error)
	SetResetDate(ctx context.Context, ts time.Time) error
}

// PeriodInfo describes the windows currently in force: the movable counting
// period used for reward totals and the fixed school week used for quota.
type PeriodInfo struct {
	ResetDate time.Time `json:"reset_date"`
	WeekStart time.Time `json:"week_start"`
	WeekEnd   time.Time `json:"week_end"`
	Month     string    `json:"month"`
}

// SettingsService manages the counting-period reset.
type SettingsService struct {
	settings settingsRepository
	audit    auditWriter
	cache    *CacheService
	logger   *zap.Logger
	now      func() time.Time
}

// NewSettingsService constructs the service.
func NewSettingsService(settings settingsRepository, audit auditWriter, cache *CacheService, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{settings: settings, audit: audit, cache: cache, logger: logger, now: time.Now}
}

// CurrentPeriod reports the active counting period and school week. A zero
// reset date means no reset was ever recorded and all history counts.
func (s *SettingsService) CurrentPeriod(ctx context.Context) (*PeriodInfo, error) {
	resetDate, err := s.settings.ResetDate(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve counting period")
	}
	now := s.now()
	return &PeriodInfo{
		ResetDate: resetDate,
		WeekStart: period.WeekStart(now),
		WeekEnd:   period.WeekEnd(now),
		Month:     period.MonthLabel(now),
	}, nil
}

// ResetPeriod advances the counting period to start now. All "since reset"
// aggregates restart from zero; historical records and already-granted
// rewards are untouched.
func (s *SettingsService) ResetPeriod(ctx context.Context, actor Actor) (*PeriodInfo, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RolePrincipal {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only principals and admins can reset the counting period")
	}

	previous, err := s.settings.ResetDate(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve counting period")
	}

	now := s.now()
	if err := s.settings.SetResetDate(ctx, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset counting period")
	}

	if s.audit != nil {
		log := &models.AuditLog{
			UserID:    &actor.UserID,
			Action:    models.AuditActionPeriodReset,
			TableName: "settings",
			IPAddress: actor.IP,
			UserAgent: actor.UserAgent,
		}
		if raw, err := json.Marshal(map[string]time.Time{"reset_date": previous}); err == nil {
			log.OldData = raw
		}
		if raw, err := json.Marshal(map[string]time.Time{"reset_date": now}); err == nil {
			log.NewData = raw
		}
		if err := s.audit.CreateAuditLog(ctx, log); err != nil {
			s.logger.Warn("audit log write failed", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, "dashboard:*"); err != nil {
			s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
		}
	}

	s.logger.Info("counting period reset",
		zap.Time("previous", previous),
		zap.Time("reset_date", now),
		zap.String("reset_by", actor.UserID))
	return &PeriodInfo{
		ResetDate: now,
		WeekStart: period.WeekStart(now),
		WeekEnd:   period.WeekEnd(now),
		Month:     period.MonthLabel(now),
	}, nil
}
