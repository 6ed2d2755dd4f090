package models

import "time"

// PinCredential is a student's kiosk PIN. ActualPin is kept in clear text for
// administrative display and reissue only; verification always uses PinHash.
type PinCredential struct {
	TenantID       string     `db:"tenant_id" json:"tenant_id"`
	StudentID      string     `db:"student_id" json:"student_id"`
	PinHash        string     `db:"pin_hash" json:"-"`
	ActualPin      string     `db:"actual_pin" json:"-"`
	IsLocked       bool       `db:"is_locked" json:"is_locked"`
	FailedAttempts int        `db:"failed_attempts" json:"failed_attempts"`
	LastFailedAt   *time.Time `db:"last_failed_at" json:"last_failed_at,omitempty"`
	LastChangedAt  time.Time  `db:"last_changed_at" json:"last_changed_at"`
	LastUsedAt     *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}

// PinFailure is the counter state after a failed verification.
type PinFailure struct {
	FailedAttempts int  `db:"failed_attempts"`
	IsLocked       bool `db:"is_locked"`
}
