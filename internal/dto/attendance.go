package dto

import (
	"time"

	"github.com/noah-isme/studyhall-attendance/internal/models"
)

// PinCheckRequest is submitted by a seat-layout kiosk. SeatNumber, when sent,
// pins the lookup to the student seated there.
type PinCheckRequest struct {
	ScopeToken string `json:"scopeToken"`
	Pin        string `json:"pin" validate:"required,numeric,min=4,max=8"`
	SeatNumber *int   `json:"seatNumber" validate:"omitempty,min=1"`
}

// PinCheckResponse reports the applied action.
type PinCheckResponse struct {
	Action  string                  `json:"action"`
	Message string                  `json:"message"`
	Record  models.AttendanceRecord `json:"record"`
}

// ExcuseRequest marks a record as an excused absence.
type ExcuseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// OverrideRequest forces a record into checked_in or checked_out. At defaults
// to the current instant.
type OverrideRequest struct {
	Status string     `json:"status" validate:"required,oneof=checked_in checked_out"`
	At     *time.Time `json:"at"`
}

// AttendanceListQuery filters the administrative record listing.
type AttendanceListQuery struct {
	Date      string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	Status    string `form:"status" validate:"omitempty,oneof=scheduled not_arrived checked_in checked_out absent_unexcused absent_excused"`
	StudentID string `form:"studentId"`
}

// UnclosedQuery selects checked-in records dated before Date.
type UnclosedQuery struct {
	Date string `form:"date" validate:"omitempty,datetime=2006-01-02"`
}
