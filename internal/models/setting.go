package models

import "time"

// SettingMonthlyResetDate is the key holding the counting-period reset
// timestamp. Advancing it restarts every "since reset" aggregate without
// touching historical rows.
const SettingMonthlyResetDate = "monthly_reset_date"

// Setting is a single key/value configuration row.
type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
