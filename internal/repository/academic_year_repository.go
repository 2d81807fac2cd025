package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/stpaulclark/merit-api/internal/models"
)

// AcademicYearRepository resolves the active school year records are
// tagged with.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository constructs a new repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

// Active returns the single active academic year, or sql.ErrNoRows when
// none is configured.
func (r *AcademicYearRepository) Active(ctx context.Context) (*models.AcademicYear, error) {
	var year models.AcademicYear
	err := r.db.GetContext(ctx, &year,
		`SELECT id, year_name, start_date, end_date, is_active, created_at
FROM academic_years WHERE is_active = TRUE ORDER BY start_date DESC LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("active academic year: %w", err)
	}
	return &year, nil
}

// List returns all academic years, newest first.
func (r *AcademicYearRepository) List(ctx context.Context) ([]models.AcademicYear, error) {
	var years []models.AcademicYear
	err := r.db.SelectContext(ctx, &years,
		`SELECT id, year_name, start_date, end_date, is_active, created_at
FROM academic_years ORDER BY start_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list academic years: %w", err)
	}
	return years, nil
}
