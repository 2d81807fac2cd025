package models

import "time"

// UniformPass is materialized each time a student's merit total since the
// counting-period reset crosses a multiple of the pass threshold. Passes are
// sticky: later edits or soft-deletes of contributing records never revoke
// an earned pass.
type UniformPass struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	AcademicYearID *string   `db:"academic_year_id" json:"academic_year_id,omitempty"`
	Month          string    `db:"month" json:"month"`
	MeritsCount    int       `db:"merits_count" json:"merits_count"`
	EarnedOn       time.Time `db:"earned_on" json:"earned_on"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// DetentionStatus tracks the lifecycle of a triggered detention.
type DetentionStatus string

const (
	DetentionPending DetentionStatus = "pending"
	DetentionServed  DetentionStatus = "served"
	DetentionExcused DetentionStatus = "excused"
)

// Valid reports whether the status is a known value.
func (s DetentionStatus) Valid() bool {
	return s == DetentionPending || s == DetentionServed || s == DetentionExcused
}

// Resolved reports whether the detention has left the pending state.
// Resolved detentions never reopen.
func (s DetentionStatus) Resolved() bool {
	return s == DetentionServed || s == DetentionExcused
}

// Detention is materialized each time a student's demerit total since the
// counting-period reset crosses a multiple of the detention threshold.
type Detention struct {
	ID             string          `db:"id" json:"id"`
	StudentID      string          `db:"student_id" json:"student_id"`
	AcademicYearID *string         `db:"academic_year_id" json:"academic_year_id,omitempty"`
	Month          string          `db:"month" json:"month"`
	DemeritsCount  int             `db:"demerits_count" json:"demerits_count"`
	Status         DetentionStatus `db:"status" json:"status"`
	TriggeredOn    time.Time       `db:"triggered_on" json:"triggered_on"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// RewardProgress summarizes how far a student is from the next threshold.
type RewardProgress struct {
	StudentID          string `json:"student_id"`
	MeritTotal         int    `json:"merit_total"`
	DemeritTotal       int    `json:"demerit_total"`
	NextPassAt         int    `json:"next_pass_at"`
	ProgressToNextPass int    `json:"progress_to_next_pass"`
	NextDetentionAt    int    `json:"next_detention_at"`
	PassesEarned       int    `json:"passes_earned"`
	DetentionsTotal    int    `json:"detentions_total"`
}

// RederiveResult reports what a derivation backfill materialized.
type RederiveResult struct {
	StudentID     string        `json:"student_id"`
	MeritTotal    int           `json:"merit_total"`
	DemeritTotal  int           `json:"demerit_total"`
	NewPasses     []UniformPass `json:"new_passes"`
	NewDetentions []Detention   `json:"new_detentions"`
}
