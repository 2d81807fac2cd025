package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/period"
	"github.com/stpaulclark/merit-api/internal/repository"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type dashboardRecordSource interface {
	SumAll(ctx context.Context, kind models.RecordKind, from time.Time) (int, error)
	SumTeacherKind(ctx context.Context, teacherID string, kind models.RecordKind, from time.Time) (int, error)
	TopStudents(ctx context.Context, kind models.RecordKind, from time.Time, limit int) ([]models.TopStudent, error)
	List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error)
}

type dashboardRewardSource interface {
	CountPendingDetentions(ctx context.Context) (int, error)
	CountPassesBetween(ctx context.Context, from, to time.Time) (int, error)
	ListDetentions(ctx context.Context, filter repository.DetentionFilter) ([]models.Detention, int, error)
	ListPasses(ctx context.Context, studentID string, since time.Time) ([]models.UniformPass, error)
}

type raffleEntrySource interface {
	EntriesForStudent(ctx context.Context, studentID string, since time.Time) (int, error)
}

// DashboardService aggregates role-specific overviews. Results are cached in
// Redis and invalidated on every ledger mutation, so a stale read is bounded
// by the TTL only when invalidation fails.
type DashboardService struct {
	records  dashboardRecordSource
	rewards  dashboardRewardSource
	raffle   raffleEntrySource
	progress *RewardService
	quota    *QuotaService
	settings resetDateSource
	cache    *CacheService
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewDashboardService constructs the service.
func NewDashboardService(
	records dashboardRecordSource,
	rewards dashboardRewardSource,
	raffle raffleEntrySource,
	progress *RewardService,
	quota *QuotaService,
	settings resetDateSource,
	cache *CacheService,
	ttl time.Duration,
	logger *zap.Logger,
) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		records:  records,
		rewards:  rewards,
		raffle:   raffle,
		progress: progress,
		quota:    quota,
		settings: settings,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// SchoolSummary builds the principal/admin overview since the last reset.
func (s *DashboardService) SchoolSummary(ctx context.Context, actor Actor) (*models.SchoolSummary, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RolePrincipal {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only principals and admins can view the school overview")
	}

	const cacheKey = "dashboard:school"
	var cached models.SchoolSummary
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	since, err := s.settings.ResetDate(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve counting period")
	}
	now := s.now()

	summary := &models.SchoolSummary{ResetDate: since}
	if summary.MeritsTotal, err = s.records.SumAll(ctx, models.RecordMerit, since); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum merits")
	}
	if summary.DemeritsTotal, err = s.records.SumAll(ctx, models.RecordDemerit, since); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum demerits")
	}
	if summary.PendingDetentions, err = s.rewards.CountPendingDetentions(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count detentions")
	}
	if summary.PassesThisWeek, err = s.rewards.CountPassesBetween(ctx, period.WeekStart(now), period.WeekEnd(now)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count passes")
	}
	if summary.TopMeritStudents, err = s.records.TopStudents(ctx, models.RecordMerit, since, 10); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rank merit students")
	}
	if summary.TopDemeritCounts, err = s.records.TopStudents(ctx, models.RecordDemerit, since, 10); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rank demerit students")
	}

	if err := s.cache.Set(ctx, cacheKey, summary, s.ttl); err != nil {
		s.logger.Warn("failed to cache school summary", zap.Error(err))
	}
	return summary, nil
}

// StudentSummary builds the student dashboard: reward progress, earned
// passes, detentions and raffle entries since the reset.
func (s *DashboardService) StudentSummary(ctx context.Context, studentID string) (*models.StudentSummary, error) {
	cacheKey := fmt.Sprintf("dashboard:student:%s", studentID)
	var cached models.StudentSummary
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	progress, err := s.progress.Progress(ctx, studentID)
	if err != nil {
		return nil, err
	}
	since, err := s.settings.ResetDate(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve counting period")
	}
	passes, err := s.rewards.ListPasses(ctx, studentID, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list passes")
	}
	detentions, _, err := s.rewards.ListDetentions(ctx, repository.DetentionFilter{StudentID: studentID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list detentions")
	}

	summary := &models.StudentSummary{
		Progress:   *progress,
		Passes:     passes,
		Detentions: detentions,
	}
	if s.raffle != nil {
		entries, err := s.raffle.EntriesForStudent(ctx, studentID, since)
		if err != nil {
			s.logger.Warn("failed to count raffle entries", zap.Error(err))
		} else {
			summary.RaffleEntries = entries
		}
	}

	if err := s.cache.Set(ctx, cacheKey, summary, s.ttl); err != nil {
		s.logger.Warn("failed to cache student summary", zap.Error(err))
	}
	return summary, nil
}

// TeacherSummary builds the issuing teacher dashboard: live quota, totals
// issued since the reset and the most recent records.
func (s *DashboardService) TeacherSummary(ctx context.Context, actor Actor) (*models.TeacherSummary, error) {
	if !actor.Role.CanIssue() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff can view the teacher dashboard")
	}

	cacheKey := fmt.Sprintf("dashboard:teacher:%s", actor.UserID)
	var cached models.TeacherSummary
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	quota, err := s.quota.Status(ctx, actor.UserID, actor.Role)
	if err != nil {
		return nil, err
	}
	since, err := s.settings.ResetDate(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve counting period")
	}
	merits, err := s.records.SumTeacherKind(ctx, actor.UserID, models.RecordMerit, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum issued merits")
	}
	demerits, err := s.records.SumTeacherKind(ctx, actor.UserID, models.RecordDemerit, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum issued demerits")
	}
	recent, _, err := s.records.List(ctx, models.RecordFilter{TeacherID: actor.UserID, PageSize: 10})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recent records")
	}

	summary := &models.TeacherSummary{
		Quota:          *quota,
		MeritsIssued:   merits,
		DemeritsIssued: demerits,
		Recent:         recent,
	}
	if err := s.cache.Set(ctx, cacheKey, summary, s.ttl); err != nil {
		s.logger.Warn("failed to cache teacher summary", zap.Error(err))
	}
	return summary, nil
}
