package models

import "time"

// Student is a roster row. UserID is populated once the student's identity
// has been linked at first login.
type Student struct {
	ID             string    `db:"id" json:"id"`
	UserID         *string   `db:"user_id" json:"user_id,omitempty"`
	Email          string    `db:"email" json:"email"`
	FullName       string    `db:"full_name" json:"full_name"`
	EnglishName    string    `db:"english_name" json:"english_name"`
	Grade          string    `db:"grade" json:"grade"`
	Section        string    `db:"section" json:"section"`
	AcademicYearID *string   `db:"academic_year_id" json:"academic_year_id,omitempty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Teacher is a staff roster row.
type Teacher struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Principal is a roster row for principals.
type Principal struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Admin is a roster row for application administrators.
type Admin struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RosterMatch is the result of the priority roster lookup during login.
type RosterMatch struct {
	Role     UserRole
	RosterID string
	FullName string
	Linked   bool
}

// StudentFilter narrows student listings.
type StudentFilter struct {
	Grade    string
	Section  string
	Search   string
	Active   *bool
	Page     int
	PageSize int
}
