package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/period"
	"github.com/stpaulclark/merit-api/pkg/config"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
	"github.com/stpaulclark/merit-api/pkg/export"
	"github.com/stpaulclark/merit-api/pkg/jobs"
	"github.com/stpaulclark/merit-api/pkg/storage"
)

type reportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, id string) (*models.Report, error)
	MarkRunning(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, filePath string, generatedOn time.Time) error
	MarkFailed(ctx context.Context, id, message string) error
	List(ctx context.Context, limit int) ([]models.Report, error)
}

type reportRecordSource interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error)
}

// ReportLink is a time-limited download reference for a completed report.
type ReportLink struct {
	ReportID  string    `json:"report_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReportService generates weekly and monthly ledger exports asynchronously.
// Generation runs on a background worker pool; downloads go through signed,
// expiring tokens so report files are never served by guessable paths.
type ReportService struct {
	reports   reportRepository
	records   reportRecordSource
	years     activeYearSource
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	queue     *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService constructs the service and its worker queue. Call Start
// before enqueueing and Stop on shutdown.
func NewReportService(
	reports reportRepository,
	records reportRecordSource,
	years activeYearSource,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	cfg config.ReportsConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReportService{
		reports:   reports,
		records:   records,
		years:     years,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		store:     store,
		signer:    signer,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
	s.queue = jobs.NewQueue("reports", s.process, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the report workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the report workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// GenerateRequest describes a report to produce.
type GenerateRequest struct {
	ReportType string `json:"report_type" validate:"required"`
	Format     string `json:"format" validate:"required"`
	// Period is a week-start date (weekly) or month label (monthly).
	// Defaults to the current school week or month.
	Period string `json:"period"`
}

// Generate queues a report for background generation and returns the queued
// row immediately.
func (s *ReportService) Generate(ctx context.Context, actor Actor, req GenerateRequest) (*models.Report, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RolePrincipal {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only principals and admins can generate reports")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	reportType := models.ReportType(req.ReportType)
	if reportType != models.ReportWeekly && reportType != models.ReportMonthly {
		return nil, appErrors.Clone(appErrors.ErrValidation, "report_type must be weekly or monthly")
	}
	format := models.ReportFormat(req.Format)
	if format != models.ReportCSV && format != models.ReportPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	periodLabel := req.Period
	if periodLabel == "" {
		if reportType == models.ReportWeekly {
			periodLabel = period.WeekKey(s.now())
		} else {
			periodLabel = period.MonthLabel(s.now())
		}
	}
	if _, _, err := s.resolveWindow(reportType, periodLabel); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	report := &models.Report{
		ReportType: reportType,
		Period:     periodLabel,
		Format:     format,
		Status:     models.ReportQueued,
	}
	if year, err := s.years.Active(ctx); err == nil {
		report.AcademicYearID = &year.ID
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve academic year")
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue report")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: report.ID, Type: "report.generate"}); err != nil {
		s.logger.Error("failed to enqueue report", zap.String("report_id", report.ID), zap.Error(err))
		if markErr := s.reports.MarkFailed(ctx, report.ID, "queue unavailable"); markErr != nil {
			s.logger.Warn("failed to mark report failed", zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue report")
	}

	s.logger.Info("report queued",
		zap.String("report_id", report.ID),
		zap.String("type", string(reportType)),
		zap.String("period", periodLabel))
	return report, nil
}

// Get returns one report row.
func (s *ReportService) Get(ctx context.Context, id string) (*models.Report, error) {
	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	return report, nil
}

// List returns recent reports, newest first.
func (s *ReportService) List(ctx context.Context, limit int) ([]models.Report, error) {
	reports, err := s.reports.List(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	return reports, nil
}

// Link issues a signed download token for a completed report.
func (s *ReportService) Link(ctx context.Context, id string) (*ReportLink, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.Status != models.ReportCompleted || report.FilePath == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "report is not ready for download")
	}
	token, expiresAt, err := s.signer.Generate(report.ID, *report.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &ReportLink{ReportID: report.ID, Token: token, ExpiresAt: expiresAt}, nil
}

// Open validates a signed token and opens the underlying file. The caller
// owns the returned handle.
func (s *ReportService) Open(ctx context.Context, token string) (*os.File, string, error) {
	reportID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	report, err := s.Get(ctx, reportID)
	if err != nil {
		return nil, "", err
	}
	if report.FilePath == nil || *report.FilePath != relPath {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report file")
	}
	return file, path.Base(relPath), nil
}

// process runs on the worker pool and renders one queued report.
func (s *ReportService) process(ctx context.Context, job jobs.Job) error {
	report, err := s.reports.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load report %s: %w", job.ID, err)
	}
	if report.Status == models.ReportCompleted {
		return nil
	}
	if err := s.reports.MarkRunning(ctx, report.ID); err != nil {
		return err
	}

	from, to, err := s.resolveWindow(report.ReportType, report.Period)
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, report.ID, err.Error()); markErr != nil {
			s.logger.Warn("failed to mark report failed", zap.Error(markErr))
		}
		return nil
	}

	records, err := s.collectRecords(ctx, from, to)
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, report.ID, "failed to read ledger"); markErr != nil {
			s.logger.Warn("failed to mark report failed", zap.Error(markErr))
		}
		return err
	}

	dataset := buildDataset(records)
	title := fmt.Sprintf("%s ledger report %s", report.ReportType, report.Period)

	var rendered []byte
	switch report.Format {
	case models.ReportPDF:
		rendered, err = s.pdf.Render(dataset, title)
	default:
		rendered, err = s.csv.Render(dataset)
	}
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, report.ID, "rendering failed"); markErr != nil {
			s.logger.Warn("failed to mark report failed", zap.Error(markErr))
		}
		return err
	}

	filename := fmt.Sprintf("%s/%s-%s.%s", report.ReportType, report.Period, report.ID, report.Format)
	stored, err := s.store.Save(filename, rendered)
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, report.ID, "storage failed"); markErr != nil {
			s.logger.Warn("failed to mark report failed", zap.Error(markErr))
		}
		return err
	}

	if err := s.reports.MarkCompleted(ctx, report.ID, stored, s.now()); err != nil {
		return err
	}
	s.logger.Info("report generated",
		zap.String("report_id", report.ID),
		zap.String("file", stored),
		zap.Int("records", len(records)))
	return nil
}

// resolveWindow maps a report period label onto [from, to]. Weekly periods
// are school-week start dates; monthly periods are school months, which run
// from the first Friday of the labeled month to the first Friday of the next.
func (s *ReportService) resolveWindow(reportType models.ReportType, label string) (time.Time, time.Time, error) {
	switch reportType {
	case models.ReportWeekly:
		day, err := time.Parse("2006-01-02", label)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("weekly period must be a YYYY-MM-DD week start")
		}
		start := period.WeekStart(day)
		return start, period.WeekEnd(day), startErr(start, day)
	case models.ReportMonthly:
		month, err := time.Parse("2006-01", label)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("monthly period must be a YYYY-MM label")
		}
		from := period.MonthStart(month)
		to := period.MonthStart(month.AddDate(0, 1, 0)).Add(-time.Nanosecond)
		return from, to, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown report type %q", reportType)
}

// startErr rejects weekly labels that are not actual week starts.
func startErr(start, day time.Time) error {
	if !start.Equal(day) {
		return fmt.Errorf("weekly period must fall on a week start (Friday)")
	}
	return nil
}

func (s *ReportService) collectRecords(ctx context.Context, from, to time.Time) ([]models.Record, error) {
	var all []models.Record
	filter := models.RecordFilter{From: &from, To: &to, PageSize: 200}
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.records.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(all) >= total || len(batch) == 0 {
			return all, nil
		}
	}
}

func buildDataset(records []models.Record) export.Dataset {
	headers := []string{"Record ID", "Student ID", "Issued By", "Kind", "Quantity", "Reason", "Location", "Created At"}
	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		location := ""
		if rec.Location != nil {
			location = *rec.Location
		}
		rows = append(rows, map[string]string{
			"Record ID":  rec.ID,
			"Student ID": rec.StudentID,
			"Issued By":  rec.TeacherID,
			"Kind":       strings.ToUpper(string(rec.Kind)),
			"Quantity":   fmt.Sprintf("%d", rec.Quantity),
			"Reason":     rec.Reason,
			"Location":   location,
			"Created At": rec.CreatedAt.Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
