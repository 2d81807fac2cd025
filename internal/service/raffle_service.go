package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/period"
	"github.com/stpaulclark/merit-api/internal/repository"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type raffleRepository interface {
	EntriesForStudent(ctx context.Context, studentID string, since time.Time) (int, error)
	CreatePrize(ctx context.Context, prize *models.RafflePrize) error
	ListPrizes(ctx context.Context, month string) ([]models.RafflePrize, error)
	DrawPrize(ctx context.Context, prizeID string) (*models.RafflePrize, error)
}

// RaffleService manages the monthly merit raffle. Entries accrue one per
// merit point at issuance; drawing a prize consumes one of the winner's
// entries.
type RaffleService struct {
	raffle    raffleRepository
	years     activeYearSource
	settings  resetDateSource
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRaffleService constructs the service.
func NewRaffleService(raffle raffleRepository, years activeYearSource, settings resetDateSource, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *RaffleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RaffleService{
		raffle:    raffle,
		years:     years,
		settings:  settings,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// CreatePrizeRequest describes a new monthly prize.
type CreatePrizeRequest struct {
	PrizeName string `json:"prize_name" validate:"required"`
	Month     string `json:"month"`
}

// CreatePrize registers a prize for a school month.
func (s *RaffleService) CreatePrize(ctx context.Context, actor Actor, req CreatePrizeRequest) (*models.RafflePrize, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RolePrincipal {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only principals and admins can manage raffle prizes")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	month := req.Month
	if month == "" {
		month = period.MonthLabel(s.now())
	}
	prize := &models.RafflePrize{
		PrizeName: req.PrizeName,
		Month:     month,
	}
	if year, err := s.years.Active(ctx); err == nil {
		prize.AcademicYearID = &year.ID
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve academic year")
	}

	if err := s.raffle.CreatePrize(ctx, prize); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create prize")
	}
	s.logger.Info("raffle prize created", zap.String("prize_id", prize.ID), zap.String("month", month))
	return prize, nil
}

// ListPrizes returns the prizes for a month, defaulting to the current one.
func (s *RaffleService) ListPrizes(ctx context.Context, month string) ([]models.RafflePrize, error) {
	if month == "" {
		month = period.MonthLabel(s.now())
	}
	prizes, err := s.raffle.ListPrizes(ctx, month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prizes")
	}
	return prizes, nil
}

// Draw picks an entry-weighted random winner for the prize and consumes one
// of the winner's entries.
func (s *RaffleService) Draw(ctx context.Context, actor Actor, prizeID string) (*models.RafflePrize, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RolePrincipal {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only principals and admins can draw prizes")
	}

	prize, err := s.raffle.DrawPrize(ctx, prizeID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "prize not found")
		case errors.Is(err, repository.ErrPrizeDrawn):
			return nil, appErrors.Clone(appErrors.ErrConflict, "prize already drawn")
		case errors.Is(err, repository.ErrNoRaffleEntries):
			return nil, appErrors.Clone(appErrors.ErrConflict, "no raffle entries for this month")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to draw prize")
	}

	if s.audit != nil {
		log := &models.AuditLog{
			UserID:    &actor.UserID,
			Action:    models.AuditActionRaffleDraw,
			TableName: "raffle_prizes",
			RecordID:  &prize.ID,
			IPAddress: actor.IP,
			UserAgent: actor.UserAgent,
		}
		if raw, err := json.Marshal(prize); err == nil {
			log.NewData = raw
		}
		if err := s.audit.CreateAuditLog(ctx, log); err != nil {
			s.logger.Warn("audit log write failed", zap.Error(err))
		}
	}

	s.logger.Info("raffle prize drawn",
		zap.String("prize_id", prize.ID),
		zap.Stringp("winner_id", prize.WinnerID))
	return prize, nil
}

// Entries reports a student's entry total since the counting-period reset.
func (s *RaffleService) Entries(ctx context.Context, studentID string) (int, error) {
	since, err := s.settings.ResetDate(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve counting period")
	}
	entries, err := s.raffle.EntriesForStudent(ctx, studentID, since)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count entries")
	}
	return entries, nil
}
