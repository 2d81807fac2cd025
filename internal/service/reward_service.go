package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/period"
	"github.com/stpaulclark/merit-api/internal/repository"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type rewardRepository interface {
	ListPasses(ctx context.Context, studentID string, since time.Time) ([]models.UniformPass, error)
	CountPasses(ctx context.Context, studentID string, since time.Time) (int, error)
	InsertPass(ctx context.Context, pass models.UniformPass) (*models.UniformPass, error)
	ListDetentions(ctx context.Context, filter repository.DetentionFilter) ([]models.Detention, int, error)
	CountDetentions(ctx context.Context, studentID string, since time.Time) (int, error)
	InsertDetention(ctx context.Context, det models.Detention) (*models.Detention, error)
	FindDetention(ctx context.Context, id string) (*models.Detention, error)
	ResolveDetention(ctx context.Context, id string, status models.DetentionStatus) error
}

type quantitySummer interface {
	SumQuantity(ctx context.Context, studentID string, kind models.RecordKind, from time.Time) (int, error)
}

// RewardService reads derived rewards and resolves detentions. Reward totals
// are recomputed from live record sums on every read so edits and deletes
// inside the edit window are always reflected; materialized pass/detention
// rows, once granted, are never revoked.
type RewardService struct {
	rewards            rewardRepository
	records            quantitySummer
	settings           resetDateSource
	years              activeYearSource
	audit              auditWriter
	passThreshold      int
	detentionThreshold int
	logger             *zap.Logger
	now                func() time.Time
}

// NewRewardService constructs the service.
func NewRewardService(
	rewards rewardRepository,
	records quantitySummer,
	settings resetDateSource,
	years activeYearSource,
	audit auditWriter,
	passThreshold, detentionThreshold int,
	logger *zap.Logger,
) *RewardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardService{
		rewards:            rewards,
		records:            records,
		settings:           settings,
		years:              years,
		audit:              audit,
		passThreshold:      passThreshold,
		detentionThreshold: detentionThreshold,
		logger:             logger,
		now:                time.Now,
	}
}

// Progress reports a student's totals since the counting-period reset and the
// distance to the next threshold on each side.
func (s *RewardService) Progress(ctx context.Context, studentID string) (*models.RewardProgress, error) {
	since, err := s.settings.ResetDate(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve counting period")
	}

	meritTotal, err := s.records.SumQuantity(ctx, studentID, models.RecordMerit, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum merits")
	}
	demeritTotal, err := s.records.SumQuantity(ctx, studentID, models.RecordDemerit, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum demerits")
	}
	passes, err := s.rewards.CountPasses(ctx, studentID, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count passes")
	}
	detentions, err := s.rewards.CountDetentions(ctx, studentID, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count detentions")
	}

	return &models.RewardProgress{
		StudentID:          studentID,
		MeritTotal:         meritTotal,
		DemeritTotal:       demeritTotal,
		NextPassAt:         (meritTotal/s.passThreshold + 1) * s.passThreshold,
		ProgressToNextPass: meritTotal % s.passThreshold,
		NextDetentionAt:    (demeritTotal/s.detentionThreshold + 1) * s.detentionThreshold,
		PassesEarned:       passes,
		DetentionsTotal:    detentions,
	}, nil
}

// ListPasses returns a student's uniform passes across all periods.
func (s *RewardService) ListPasses(ctx context.Context, studentID string) ([]models.UniformPass, error) {
	passes, err := s.rewards.ListPasses(ctx, studentID, time.Time{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list passes")
	}
	return passes, nil
}

// ListDetentions returns detentions per provided filter.
func (s *RewardService) ListDetentions(ctx context.Context, filter repository.DetentionFilter) ([]models.Detention, *models.Pagination, error) {
	detentions, total, err := s.rewards.ListDetentions(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list detentions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return detentions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ResolveDetention moves a pending detention to served or excused. Resolved
// detentions are terminal and never flip between outcomes.
func (s *RewardService) ResolveDetention(ctx context.Context, actor Actor, detentionID string, status models.DetentionStatus) (*models.Detention, error) {
	if !actor.Role.QuotaExempt() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only principals and admins can resolve detentions")
	}
	if !status.Resolved() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be served or excused")
	}

	det, err := s.rewards.FindDetention(ctx, detentionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "detention not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load detention")
	}

	if err := s.rewards.ResolveDetention(ctx, detentionID, status); err != nil {
		if errors.Is(err, repository.ErrDetentionResolved) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "detention already resolved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve detention")
	}

	before := *det
	det.Status = status
	s.auditDetention(ctx, actor, det.ID, &before, det)
	s.logger.Info("detention resolved",
		zap.String("detention_id", det.ID),
		zap.String("status", string(status)),
		zap.String("resolved_by", actor.UserID))
	return det, nil
}

// Rederive backfills any pass or detention rows the current totals warrant
// but that were never materialized, e.g. after restoring the database from a
// backup. Existing rows are untouched and nothing is ever removed.
func (s *RewardService) Rederive(ctx context.Context, actor Actor, studentID string) (*models.RederiveResult, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can rederive rewards")
	}

	since, err := s.settings.ResetDate(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve counting period")
	}
	meritTotal, err := s.records.SumQuantity(ctx, studentID, models.RecordMerit, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum merits")
	}
	demeritTotal, err := s.records.SumQuantity(ctx, studentID, models.RecordDemerit, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum demerits")
	}

	now := s.now()
	month := period.MonthLabel(now)
	var yearID *string
	if year, err := s.years.Active(ctx); err == nil {
		yearID = &year.ID
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve academic year")
	}

	result := &models.RederiveResult{
		StudentID:    studentID,
		MeritTotal:   meritTotal,
		DemeritTotal: demeritTotal,
	}
	for count := s.passThreshold; count <= meritTotal; count += s.passThreshold {
		pass, err := s.rewards.InsertPass(ctx, models.UniformPass{
			StudentID:      studentID,
			AcademicYearID: yearID,
			Month:          month,
			MeritsCount:    count,
			EarnedOn:       now,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to backfill pass")
		}
		if pass != nil {
			result.NewPasses = append(result.NewPasses, *pass)
		}
	}
	for count := s.detentionThreshold; count <= demeritTotal; count += s.detentionThreshold {
		det, err := s.rewards.InsertDetention(ctx, models.Detention{
			StudentID:      studentID,
			AcademicYearID: yearID,
			Month:          month,
			DemeritsCount:  count,
			Status:         models.DetentionPending,
			TriggeredOn:    now,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to backfill detention")
		}
		if det != nil {
			result.NewDetentions = append(result.NewDetentions, *det)
		}
	}

	s.logger.Info("rewards rederived",
		zap.String("student_id", studentID),
		zap.Int("new_passes", len(result.NewPasses)),
		zap.Int("new_detentions", len(result.NewDetentions)))
	return result, nil
}

func (s *RewardService) auditDetention(ctx context.Context, actor Actor, detentionID string, oldData, newData interface{}) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:    &actor.UserID,
		Action:    models.AuditActionDetentionUpdate,
		TableName: "detentions",
		RecordID:  &detentionID,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if raw, err := json.Marshal(oldData); err == nil {
		log.OldData = raw
	}
	if raw, err := json.Marshal(newData); err == nil {
		log.NewData = raw
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit log write failed", zap.Error(err))
	}
}
