package models

import "time"

// SeatAssignmentStatus tracks whether a seat is currently held by the student.
type SeatAssignmentStatus string

const (
	SeatAssignmentActive   SeatAssignmentStatus = "active"
	SeatAssignmentReleased SeatAssignmentStatus = "released"
)

// SeatAssignment binds a student to a seat. ExpectedSchedule is a cached copy of
// the student's timetable and must match it while the assignment is active.
type SeatAssignment struct {
	ID               string               `db:"id" json:"id"`
	TenantID         string               `db:"tenant_id" json:"tenant_id"`
	LayoutID         string               `db:"layout_id" json:"layout_id"`
	SeatID           string               `db:"seat_id" json:"seat_id"`
	SeatNumber       int                  `db:"seat_number" json:"seat_number"`
	StudentID        string               `db:"student_id" json:"student_id"`
	TimetableID      *string              `db:"timetable_id" json:"timetable_id,omitempty"`
	Status           SeatAssignmentStatus `db:"status" json:"status"`
	ExpectedSchedule WeeklySchedule       `db:"expected_schedule" json:"expected_schedule,omitempty"`
	UpdatedAt        time.Time            `db:"updated_at" json:"updated_at"`
}
