package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/period"
	"github.com/stpaulclark/merit-api/internal/repository"
	"github.com/stpaulclark/merit-api/pkg/config"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type recordRepository interface {
	Issue(ctx context.Context, rec *models.Record, p repository.IssueParams) (*models.IssueResult, error)
	FindByID(ctx context.Context, id string) (*models.Record, error)
	Update(ctx context.Context, rec *models.Record) error
	SoftDelete(ctx context.Context, id, editorID string) error
	List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error)
}

type quotaLimiter interface {
	Limit(ctx context.Context, teacherID string, weekStart time.Time, fallback int) (int, error)
}

type resetDateSource interface {
	ResetDate(ctx context.Context) (time.Time, error)
}

type activeYearSource interface {
	Active(ctx context.Context) (*models.AcademicYear, error)
}

type studentFinder interface {
	FindStudent(ctx context.Context, id string) (*models.Student, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Actor identifies the authenticated caller for authorization and audit.
type Actor struct {
	UserID    string
	Role      models.UserRole
	IP        string
	UserAgent string
}

// LedgerService orchestrates record issuance, bounded edits and soft-deletes.
type LedgerService struct {
	records       recordRepository
	quotas        quotaLimiter
	settings      resetDateSource
	years         activeYearSource
	roster        studentFinder
	audit         auditWriter
	cache         *CacheService
	metrics       *MetricsService
	cfg           config.LedgerConfig
	raffleEnabled bool
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewLedgerService constructs the service.
func NewLedgerService(
	records recordRepository,
	quotas quotaLimiter,
	settings resetDateSource,
	years activeYearSource,
	roster studentFinder,
	audit auditWriter,
	cache *CacheService,
	metrics *MetricsService,
	cfg config.LedgerConfig,
	raffleEnabled bool,
	validate *validator.Validate,
	logger *zap.Logger,
) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		records:       records,
		quotas:        quotas,
		settings:      settings,
		years:         years,
		roster:        roster,
		audit:         audit,
		cache:         cache,
		metrics:       metrics,
		cfg:           cfg,
		raffleEnabled: raffleEnabled,
		validator:     validate,
		logger:        logger,
		now:           time.Now,
	}
}

// IssueRequest describes a point-issuing payload.
type IssueRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Kind      string  `json:"kind" validate:"required"`
	Reason    string  `json:"reason" validate:"required"`
	Location  *string `json:"location"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
}

// Issue creates a ledger record, enforcing the issuer's weekly merit quota
// and materializing any rewards the new totals trigger. Quota admission and
// reward derivation run inside one transaction so concurrent issuances cannot
// oversubscribe the limit or double-grant a reward.
func (s *LedgerService) Issue(ctx context.Context, actor Actor, req IssueRequest) (*models.IssueResult, error) {
	if !actor.Role.CanIssue() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers, principals and admins can issue records")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	kind := models.RecordKind(req.Kind)
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "kind must be merit or demerit")
	}
	if kind == models.RecordMerit && req.Quantity > s.cfg.MeritMaxQuantity {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("merit quantity must be between 1 and %d", s.cfg.MeritMaxQuantity))
	}
	if kind == models.RecordDemerit && req.Quantity > s.cfg.DemeritMaxQuantity {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("demerit quantity must be between 1 and %d", s.cfg.DemeritMaxQuantity))
	}

	student, err := s.roster.FindStudent(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is no longer on the active roster")
	}

	now := s.now()
	params := repository.IssueParams{
		WeekStart:          period.WeekStart(now),
		WeekEnd:            period.WeekEnd(now),
		Month:              period.MonthLabel(now),
		PassThreshold:      s.cfg.PassThreshold,
		DetentionThreshold: s.cfg.DetentionThreshold,
		AccrueRaffle:       s.raffleEnabled && kind == models.RecordMerit,
	}

	if kind == models.RecordMerit && !actor.Role.QuotaExempt() {
		limit, err := s.quotas.Limit(ctx, actor.UserID, params.WeekStart, s.cfg.WeeklyQuotaDefault)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve weekly quota")
		}
		params.QuotaLimit = limit
	}

	resetDate, err := s.settings.ResetDate(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve counting period")
	}
	params.PeriodStart = resetDate

	rec := &models.Record{
		StudentID: req.StudentID,
		TeacherID: actor.UserID,
		Kind:      kind,
		Reason:    req.Reason,
		Location:  req.Location,
		Quantity:  req.Quantity,
		CreatedAt: now,
	}
	if year, err := s.years.Active(ctx); err == nil {
		rec.AcademicYearID = &year.ID
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve academic year")
	}

	result, err := s.records.Issue(ctx, rec, params)
	if err != nil {
		var quotaErr *repository.QuotaError
		if errors.As(err, &quotaErr) {
			s.metrics.RecordQuotaRejection()
			return nil, appErrors.WithDetails(appErrors.ErrQuotaExceeded, map[string]interface{}{
				"limit":     quotaErr.Limit,
				"used":      quotaErr.Used,
				"remaining": quotaErr.Remaining(),
			})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue record")
	}

	s.metrics.RecordIssued(string(kind))
	s.recordAudit(ctx, actor, models.AuditActionRecordIssue, rec.ID, nil, rec)
	s.invalidateDashboards(ctx)

	s.logger.Info("record issued",
		zap.String("record_id", rec.ID),
		zap.String("student_id", rec.StudentID),
		zap.String("kind", string(kind)),
		zap.Int("quantity", rec.Quantity),
		zap.Int("passes", len(result.UniformPasses)),
		zap.Int("detentions", len(result.Detentions)))
	return result, nil
}

// Edit mutates reason, location or quantity of a record. Kind, student and
// issuer are immutable; the change is allowed only inside the edit window,
// measured on the server clock, and only for the original issuer or an admin.
func (s *LedgerService) Edit(ctx context.Context, actor Actor, recordID string, patch models.RecordPatch) (*models.Record, error) {
	rec, err := s.loadEditable(ctx, actor, recordID)
	if err != nil {
		return nil, err
	}

	before := *rec
	if patch.Reason != nil {
		if *patch.Reason == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "reason cannot be empty")
		}
		rec.Reason = *patch.Reason
	}
	if patch.Location != nil {
		rec.Location = patch.Location
	}
	if patch.Quantity != nil {
		max := s.cfg.MeritMaxQuantity
		if rec.Kind == models.RecordDemerit {
			max = s.cfg.DemeritMaxQuantity
		}
		if *patch.Quantity < 1 || *patch.Quantity > max {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("quantity must be between 1 and %d", max))
		}
		rec.Quantity = *patch.Quantity
	}
	rec.EditedBy = &actor.UserID

	if err := s.records.Update(ctx, rec); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update record")
	}

	s.recordAudit(ctx, actor, models.AuditActionRecordEdit, rec.ID, &before, rec)
	s.invalidateDashboards(ctx)
	s.logger.Info("record edited", zap.String("record_id", rec.ID), zap.String("editor_id", actor.UserID))
	return rec, nil
}

// SoftDelete marks a record deleted under the same window and ownership rules
// as Edit. Deletion is terminal; already-granted rewards stay granted.
func (s *LedgerService) SoftDelete(ctx context.Context, actor Actor, recordID string) error {
	rec, err := s.loadEditable(ctx, actor, recordID)
	if err != nil {
		return err
	}

	if err := s.records.SoftDelete(ctx, recordID, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete record")
	}

	s.recordAudit(ctx, actor, models.AuditActionRecordDelete, rec.ID, rec, nil)
	s.invalidateDashboards(ctx)
	s.logger.Info("record deleted", zap.String("record_id", rec.ID), zap.String("editor_id", actor.UserID))
	return nil
}

// Get returns a single record. Deleted records stay visible to admins only.
func (s *LedgerService) Get(ctx context.Context, actor Actor, recordID string) (*models.Record, error) {
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if rec.IsDeleted && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
	}
	return rec, nil
}

// List returns ledger records. Students only ever see their own rows, and
// deleted rows are limited to admin audit views.
func (s *LedgerService) List(ctx context.Context, actor Actor, filter models.RecordFilter) ([]models.Record, *models.Pagination, error) {
	if actor.Role == models.RoleStudent {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "students can only view their own records")
	}
	if filter.IncludeDeleted && actor.Role != models.RoleAdmin {
		filter.IncludeDeleted = false
	}
	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list records")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListForStudent returns a student's own visible records.
func (s *LedgerService) ListForStudent(ctx context.Context, studentID string, filter models.RecordFilter) ([]models.Record, *models.Pagination, error) {
	filter.StudentID = studentID
	filter.IncludeDeleted = false
	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list records")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// loadEditable loads a record and applies the shared mutation guards: the
// record must be live, the caller must be the issuer or an admin, and the
// edit window must still be open.
func (s *LedgerService) loadEditable(ctx context.Context, actor Actor, recordID string) (*models.Record, error) {
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if rec.IsDeleted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
	}
	if rec.TeacherID != actor.UserID && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the original issuer can modify this record")
	}
	if s.now().Sub(rec.CreatedAt) > s.cfg.EditWindow {
		return nil, appErrors.ErrEditWindowExpired
	}
	return rec, nil
}

func (s *LedgerService) recordAudit(ctx context.Context, actor Actor, action, recordID string, oldData, newData interface{}) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:    &actor.UserID,
		Action:    action,
		TableName: "records",
		RecordID:  &recordID,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if oldData != nil {
		if raw, err := json.Marshal(oldData); err == nil {
			log.OldData = raw
		}
	}
	if newData != nil {
		if raw, err := json.Marshal(newData); err == nil {
			log.NewData = raw
		}
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *LedgerService) invalidateDashboards(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "dashboard:*"); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
