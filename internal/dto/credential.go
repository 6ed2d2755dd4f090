package dto

import "time"

// IssueScopeTokenRequest asks for a kiosk token bound to one seat layout.
type IssueScopeTokenRequest struct {
	LayoutID string `json:"layoutId" validate:"required"`
}

// ScopeTokenResponse carries a signed kiosk token.
type ScopeTokenResponse struct {
	Token     string    `json:"token"`
	TenantID  string    `json:"tenantId"`
	LayoutID  string    `json:"layoutId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssuePinRequest optionally carries an operator-chosen PIN; empty means random.
type IssuePinRequest struct {
	Pin string `json:"pin" validate:"omitempty,numeric,min=4,max=8"`
}

// PinResponse returns the plaintext PIN to the operator once.
type PinResponse struct {
	StudentID string    `json:"studentId"`
	Pin       string    `json:"pin"`
	ChangedAt time.Time `json:"changedAt"`
}
