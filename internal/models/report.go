package models

import "time"

// ReportType selects the period granularity of an export.
type ReportType string

const (
	ReportWeekly  ReportType = "weekly"
	ReportMonthly ReportType = "monthly"
)

// ReportFormat selects the rendered output.
type ReportFormat string

const (
	ReportCSV ReportFormat = "csv"
	ReportPDF ReportFormat = "pdf"
)

// ReportStatus tracks asynchronous generation.
type ReportStatus string

const (
	ReportQueued    ReportStatus = "queued"
	ReportRunning   ReportStatus = "running"
	ReportCompleted ReportStatus = "completed"
	ReportFailed    ReportStatus = "failed"
)

// Report is a generated ledger export for one school week or month.
type Report struct {
	ID             string       `db:"id" json:"id"`
	AcademicYearID *string      `db:"academic_year_id" json:"academic_year_id,omitempty"`
	ReportType     ReportType   `db:"report_type" json:"report_type"`
	Period         string       `db:"period" json:"period"`
	Format         ReportFormat `db:"format" json:"format"`
	Status         ReportStatus `db:"status" json:"status"`
	FilePath       *string      `db:"file_path" json:"-"`
	ErrorMessage   *string      `db:"error_message" json:"error_message,omitempty"`
	GeneratedOn    *time.Time   `db:"generated_on" json:"generated_on,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}
