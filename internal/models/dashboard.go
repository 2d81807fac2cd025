package models

import "time"

// TopStudent ranks a student by points accrued since the reset.
type TopStudent struct {
	StudentID string `db:"student_id" json:"student_id"`
	FullName  string `db:"full_name" json:"full_name"`
	Grade     string `db:"grade" json:"grade"`
	Section   string `db:"section" json:"section"`
	Total     int    `db:"total" json:"total"`
}

// SchoolSummary is the principal/admin overview since the last reset.
type SchoolSummary struct {
	ResetDate         time.Time    `json:"reset_date"`
	MeritsTotal       int          `json:"merits_total"`
	DemeritsTotal     int          `json:"demerits_total"`
	PendingDetentions int          `json:"pending_detentions"`
	PassesThisWeek    int          `json:"passes_this_week"`
	TopMeritStudents  []TopStudent `json:"top_merit_students"`
	TopDemeritCounts  []TopStudent `json:"top_demerit_students"`
}

// StudentSummary is the student dashboard view.
type StudentSummary struct {
	Progress      RewardProgress `json:"progress"`
	Passes        []UniformPass  `json:"passes"`
	Detentions    []Detention    `json:"detentions"`
	RaffleEntries int            `json:"raffle_entries"`
}

// TeacherSummary is the issuing teacher dashboard view.
type TeacherSummary struct {
	Quota          QuotaStatus `json:"quota"`
	MeritsIssued   int         `json:"merits_issued"`
	DemeritsIssued int         `json:"demerits_issued"`
	Recent         []Record    `json:"recent"`
}

// SystemMetrics is a lightweight aggregate of runtime counters for the
// admin status endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
