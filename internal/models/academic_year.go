package models

import "time"

// AcademicYear tags records with the school year they were issued in.
// Exactly one year is active at a time.
type AcademicYear struct {
	ID        string    `db:"id" json:"id"`
	YearName  string    `db:"year_name" json:"year_name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
