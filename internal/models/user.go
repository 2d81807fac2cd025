package models

import "time"

// UserRole represents the available roles for the RBAC system. When an email
// appears on more than one roster the highest-priority role wins:
// admin > principal > teacher > student.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RolePrincipal UserRole = "PRINCIPAL"
	RoleTeacher   UserRole = "TEACHER"
	RoleStudent   UserRole = "STUDENT"
)

// CanIssue reports whether the role may issue merit/demerit records.
func (r UserRole) CanIssue() bool {
	return r == RoleAdmin || r == RolePrincipal || r == RoleTeacher
}

// QuotaExempt reports whether the role bypasses the weekly merit quota.
func (r UserRole) QuotaExempt() bool {
	return r == RoleAdmin || r == RolePrincipal
}

// User represents a linked identity stored in the users table.
type User struct {
	ID              string     `db:"id" json:"id"`
	Email           string     `db:"email" json:"email"`
	FullName        string     `db:"full_name" json:"full_name"`
	Role            UserRole   `db:"role" json:"role"`
	ExternalSubject string     `db:"external_subject" json:"-"`
	Active          bool       `db:"active" json:"active"`
	LastLogin       *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
