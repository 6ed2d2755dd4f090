package models

import "time"

// AttendanceStatus represents the lifecycle state of an attendance record.
type AttendanceStatus string

const (
	AttendanceStatusScheduled       AttendanceStatus = "scheduled"
	AttendanceStatusNotArrived      AttendanceStatus = "not_arrived"
	AttendanceStatusCheckedIn       AttendanceStatus = "checked_in"
	AttendanceStatusCheckedOut      AttendanceStatus = "checked_out"
	AttendanceStatusAbsentUnexcused AttendanceStatus = "absent_unexcused"
	AttendanceStatusAbsentExcused   AttendanceStatus = "absent_excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusScheduled, AttendanceStatusNotArrived, AttendanceStatusCheckedIn,
		AttendanceStatusCheckedOut, AttendanceStatusAbsentUnexcused, AttendanceStatusAbsentExcused:
		return true
	default:
		return false
	}
}

// Open reports whether the record still awaits an arrival.
func (s AttendanceStatus) Open() bool {
	return s == AttendanceStatusScheduled || s == AttendanceStatusNotArrived
}

// Terminal reports whether automated transitions may no longer touch the record.
func (s AttendanceStatus) Terminal() bool {
	switch s {
	case AttendanceStatusCheckedOut, AttendanceStatusAbsentUnexcused, AttendanceStatusAbsentExcused:
		return true
	default:
		return false
	}
}

// CheckMethod records how a check event was captured.
type CheckMethod string

const (
	CheckMethodPin    CheckMethod = "pin"
	CheckMethodManual CheckMethod = "manual"
)

// AttendanceRecord is one block of one student's day.
type AttendanceRecord struct {
	ID                    string           `db:"id" json:"id"`
	TenantID              string           `db:"tenant_id" json:"tenant_id"`
	StudentID             string           `db:"student_id" json:"student_id"`
	SeatID                string           `db:"seat_id" json:"seat_id"`
	SeatNumber            int              `db:"seat_number" json:"seat_number"`
	Date                  string           `db:"date" json:"date"`
	DayOfWeek             string           `db:"day_of_week" json:"day_of_week"`
	ExpectedArrivalTime   string           `db:"expected_arrival_time" json:"expected_arrival_time"`
	ExpectedDepartureTime string           `db:"expected_departure_time" json:"expected_departure_time"`
	Status                AttendanceStatus `db:"status" json:"status"`
	ActualArrivalTime     *time.Time       `db:"actual_arrival_time" json:"actual_arrival_time,omitempty"`
	ActualDepartureTime   *time.Time       `db:"actual_departure_time" json:"actual_departure_time,omitempty"`
	IsLate                bool             `db:"is_late" json:"is_late"`
	LateMinutes           *int             `db:"late_minutes" json:"late_minutes,omitempty"`
	IsEarlyLeave          *bool            `db:"is_early_leave" json:"is_early_leave,omitempty"`
	EarlyLeaveMinutes     *int             `db:"early_leave_minutes" json:"early_leave_minutes,omitempty"`
	CheckInMethod         *CheckMethod     `db:"check_in_method" json:"check_in_method,omitempty"`
	CheckOutMethod        *CheckMethod     `db:"check_out_method" json:"check_out_method,omitempty"`
	ExcusedReason         *string          `db:"excused_reason" json:"excused_reason,omitempty"`
	SessionNumber         int              `db:"session_number" json:"session_number"`
	IsLatestSession       bool             `db:"is_latest_session" json:"is_latest_session"`
	NotArrivedAt          *time.Time       `db:"not_arrived_at" json:"not_arrived_at,omitempty"`
	AbsentConfirmedAt     *time.Time       `db:"absent_confirmed_at" json:"absent_confirmed_at,omitempty"`
	AbsentMarkedAt        *time.Time       `db:"absent_marked_at" json:"absent_marked_at,omitempty"`
	CreatedAt             time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceFilter narrows record listings within a tenant.
type AttendanceFilter struct {
	TenantID  string
	Date      string
	StudentID string
	Status    *AttendanceStatus
}

// RecordUpdate is a compare-and-set write: Record is persisted only while the
// stored status still equals ExpectedStatus.
type RecordUpdate struct {
	Record         AttendanceRecord
	ExpectedStatus AttendanceStatus
}
