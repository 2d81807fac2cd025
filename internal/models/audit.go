package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin           = "LOGIN"
	AuditActionLogout          = "LOGOUT"
	AuditActionRecordIssue     = "RECORD_ISSUE"
	AuditActionRecordEdit      = "RECORD_EDIT"
	AuditActionRecordDelete    = "RECORD_DELETE"
	AuditActionDetentionUpdate = "DETENTION_UPDATE"
	AuditActionPeriodReset     = "PERIOD_RESET"
	AuditActionRaffleDraw      = "RAFFLE_DRAW"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	TableName string    `db:"table_name" json:"table_name"`
	RecordID  *string   `db:"record_id" json:"record_id,omitempty"`
	OldData   []byte    `db:"old_data" json:"old_data,omitempty"`
	NewData   []byte    `db:"new_data" json:"new_data,omitempty"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
