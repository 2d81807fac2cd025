package models

import "time"

// RaffleEntry accumulates a student's monthly raffle tickets. One entry is
// earned per merit point issued since the counting-period reset; entries are
// consumed when a prize draw selects the student.
type RaffleEntry struct {
	ID               string    `db:"id" json:"id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	AcademicYearID   *string   `db:"academic_year_id" json:"academic_year_id,omitempty"`
	Month            string    `db:"month" json:"month"`
	TotalEntries     int       `db:"total_entries" json:"total_entries"`
	RemainingEntries int       `db:"remaining_entries" json:"remaining_entries"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// RafflePrize is a monthly prize drawable by an admin or principal.
type RafflePrize struct {
	ID             string     `db:"id" json:"id"`
	AcademicYearID *string    `db:"academic_year_id" json:"academic_year_id,omitempty"`
	PrizeName      string     `db:"prize_name" json:"prize_name"`
	Month          string     `db:"month" json:"month"`
	Claimed        bool       `db:"claimed" json:"claimed"`
	WinnerID       *string    `db:"winner_id" json:"winner_id,omitempty"`
	DrawnAt        *time.Time `db:"drawn_at" json:"drawn_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
