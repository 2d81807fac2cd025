package models

import "time"

// RecordKind distinguishes merit from demerit events.
type RecordKind string

const (
	RecordMerit   RecordKind = "merit"
	RecordDemerit RecordKind = "demerit"
)

// Valid reports whether the kind is one of the two known values.
func (k RecordKind) Valid() bool {
	return k == RecordMerit || k == RecordDemerit
}

// Record is a single point-issuing event. Kind, student and issuer are
// immutable after creation; reason, location and quantity may be edited by
// the original issuer inside the edit window. Records are never hard-deleted.
type Record struct {
	ID             string     `db:"id" json:"id"`
	StudentID      string     `db:"student_id" json:"student_id"`
	TeacherID      string     `db:"teacher_id" json:"teacher_id"`
	AcademicYearID *string    `db:"academic_year_id" json:"academic_year_id,omitempty"`
	Kind           RecordKind `db:"kind" json:"kind"`
	Reason         string     `db:"reason" json:"reason"`
	Location       *string    `db:"location" json:"location,omitempty"`
	Quantity       int        `db:"quantity" json:"quantity"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	EditedBy       *string    `db:"edited_by" json:"edited_by,omitempty"`
	IsDeleted      bool       `db:"is_deleted" json:"is_deleted"`
}

// RecordFilter narrows record listings. Deleted rows are excluded unless
// IncludeDeleted is set (audit views only).
type RecordFilter struct {
	StudentID      string
	TeacherID      string
	Kind           RecordKind
	From           *time.Time
	To             *time.Time
	IncludeDeleted bool
	Page           int
	PageSize       int
}

// RecordPatch carries the only fields an edit may change.
type RecordPatch struct {
	Reason   *string `json:"reason,omitempty"`
	Location *string `json:"location,omitempty"`
	Quantity *int    `json:"quantity,omitempty"`
}

// IssueResult reports everything a single issuance produced.
type IssueResult struct {
	Record         *Record       `json:"record"`
	UniformPasses  []UniformPass `json:"uniform_passes,omitempty"`
	Detentions     []Detention   `json:"detentions,omitempty"`
	RemainingQuota *int          `json:"remaining_quota,omitempty"`
	MeritTotal     int           `json:"merit_total"`
	DemeritTotal   int           `json:"demerit_total"`
	RaffleEntries  int           `json:"raffle_entries,omitempty"`
}
