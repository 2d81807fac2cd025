package models

import "time"

// WeeklyQuota is the persisted per-teacher, per-school-week allowance row.
// MeritsIssued is a cached counter kept for reporting; the authoritative
// value is always the live sum over non-deleted merit records in the week.
type WeeklyQuota struct {
	ID           string    `db:"id" json:"id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	WeekStart    time.Time `db:"week_start" json:"week_start"`
	MeritsIssued int       `db:"merits_issued" json:"merits_issued"`
	QuotaLimit   int       `db:"quota_limit" json:"quota_limit"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// QuotaStatus is the live view served to issuing teachers.
type QuotaStatus struct {
	TeacherID string    `json:"teacher_id"`
	WeekStart time.Time `json:"week_start"`
	WeekEnd   time.Time `json:"week_end"`
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	Unlimited bool      `json:"unlimited"`
}
