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

// ReportRepository tracks generated ledger exports.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs a new repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a queued report row.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	if report.Status == "" {
		report.Status = models.ReportQueued
	}
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO reports (id, academic_year_id, report_type, period, format, status, file_path, error_message, generated_on, created_at)
VALUES (:id, :academic_year_id, :report_type, :period, :format, :status, :file_path, :error_message, :generated_on, :created_at)`,
		report)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// FindByID loads a report row.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	err := r.db.GetContext(ctx, &report,
		`SELECT id, academic_year_id, report_type, period, format, status, file_path, error_message, generated_on, created_at
FROM reports WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find report: %w", err)
	}
	return &report, nil
}

// MarkRunning flips a queued report to running.
func (r *ReportRepository) MarkRunning(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reports SET status = 'running' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark report running: %w", err)
	}
	return nil
}

// MarkCompleted records the stored file path for a finished report.
func (r *ReportRepository) MarkCompleted(ctx context.Context, id, filePath string, generatedOn time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reports SET status = 'completed', file_path = $2, generated_on = $3, error_message = NULL WHERE id = $1`,
		id, filePath, generatedOn)
	if err != nil {
		return fmt.Errorf("mark report completed: %w", err)
	}
	return nil
}

// MarkFailed records a generation failure.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reports SET status = 'failed', error_message = $2 WHERE id = $1`, id, message)
	if err != nil {
		return fmt.Errorf("mark report failed: %w", err)
	}
	return nil
}

// List returns reports, newest first.
func (r *ReportRepository) List(ctx context.Context, limit int) ([]models.Report, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var reports []models.Report
	err := r.db.SelectContext(ctx, &reports,
		`SELECT id, academic_year_id, report_type, period, format, status, file_path, error_message, generated_on, created_at
FROM reports ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}
