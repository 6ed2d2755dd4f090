package attendance

import (
	"fmt"
	"time"

	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

// EventKind names a lifecycle event.
type EventKind string

const (
	EventStartTimeReached EventKind = "start_time_reached"
	EventGraceExpired     EventKind = "grace_expired"
	EventCheckIn          EventKind = "check_in"
	EventCheckOut         EventKind = "check_out"
	EventExcuse           EventKind = "excuse"
	EventManualOverride   EventKind = "manual_override"
)

// Event drives a record from one status to another. Instants carried by events
// must already be expressed in the civil location of the record's date.
type Event interface {
	Kind() EventKind
}

// StartTimeReached fires when the block's expected arrival time ticks by.
type StartTimeReached struct {
	At time.Time
}

// GraceExpired fires once the response window and grace period have elapsed.
// ConfirmedAt is the instant absence became true; MarkedAt is when the sweep ran.
type GraceExpired struct {
	ConfirmedAt time.Time
	MarkedAt    time.Time
}

// CheckIn records an arrival.
type CheckIn struct {
	At     time.Time
	Method models.CheckMethod
}

// CheckOut records a departure.
type CheckOut struct {
	At     time.Time
	Method models.CheckMethod
}

// Excuse marks a record as an excused absence. Administrative only.
type Excuse struct {
	Reason string
}

// ManualOverride forces a record into checked_in or checked_out regardless of
// its current state. Administrative only.
type ManualOverride struct {
	Target models.AttendanceStatus
	At     time.Time
}

func (StartTimeReached) Kind() EventKind { return EventStartTimeReached }
func (GraceExpired) Kind() EventKind     { return EventGraceExpired }
func (CheckIn) Kind() EventKind          { return EventCheckIn }
func (CheckOut) Kind() EventKind         { return EventCheckOut }
func (Excuse) Kind() EventKind           { return EventExcuse }
func (ManualOverride) Kind() EventKind   { return EventManualOverride }

// Effect describes an applied transition.
type Effect struct {
	Event EventKind
	From  models.AttendanceStatus
	To    models.AttendanceStatus
}

// Transition applies ev to rec and returns the updated copy. It is the only
// place record statuses change, for both the scheduled sweeps and check events.
func Transition(rec models.AttendanceRecord, ev Event) (models.AttendanceRecord, Effect, error) {
	from := rec.Status
	next := rec

	switch e := ev.(type) {
	case StartTimeReached:
		if from != models.AttendanceStatusScheduled {
			return rec, Effect{}, invalid(from, ev)
		}
		at := e.At
		next.Status = models.AttendanceStatusNotArrived
		next.NotArrivedAt = &at

	case GraceExpired:
		if from != models.AttendanceStatusNotArrived {
			return rec, Effect{}, invalid(from, ev)
		}
		confirmed, marked := e.ConfirmedAt, e.MarkedAt
		next.Status = models.AttendanceStatusAbsentUnexcused
		next.AbsentConfirmedAt = &confirmed
		next.AbsentMarkedAt = &marked

	case CheckIn:
		if !from.Open() {
			return rec, Effect{}, invalid(from, ev)
		}
		if err := applyArrival(&next, e.At, e.Method); err != nil {
			return rec, Effect{}, err
		}

	case CheckOut:
		if from != models.AttendanceStatusCheckedIn {
			return rec, Effect{}, invalid(from, ev)
		}
		if err := applyDeparture(&next, e.At, e.Method); err != nil {
			return rec, Effect{}, err
		}

	case Excuse:
		if from == models.AttendanceStatusCheckedIn || from == models.AttendanceStatusCheckedOut {
			return rec, Effect{}, invalid(from, ev)
		}
		reason := e.Reason
		next.Status = models.AttendanceStatusAbsentExcused
		next.ExcusedReason = &reason

	case ManualOverride:
		switch e.Target {
		case models.AttendanceStatusCheckedIn:
			next.ActualDepartureTime = nil
			next.IsEarlyLeave = nil
			next.EarlyLeaveMinutes = nil
			next.CheckOutMethod = nil
			if err := applyArrival(&next, e.At, models.CheckMethodManual); err != nil {
				return rec, Effect{}, err
			}
		case models.AttendanceStatusCheckedOut:
			if err := applyDeparture(&next, e.At, models.CheckMethodManual); err != nil {
				return rec, Effect{}, err
			}
		default:
			return rec, Effect{}, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("manual override cannot target %q", e.Target))
		}
		next.ExcusedReason = nil
		next.AbsentConfirmedAt = nil
		next.AbsentMarkedAt = nil

	default:
		return rec, Effect{}, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("unsupported event %T", ev))
	}

	return next, Effect{Event: ev.Kind(), From: from, To: next.Status}, nil
}

// LateMinutes returns whole minutes between the expected arrival and at; zero or
// negative means on time.
func LateMinutes(rec models.AttendanceRecord, at time.Time) (int, error) {
	expected, err := civiltime.At(rec.Date, rec.ExpectedArrivalTime, at.Location())
	if err != nil {
		return 0, err
	}
	return civiltime.WholeMinutes(expected, at), nil
}

// EarlyLeaveMinutes returns whole minutes between at and the expected departure;
// zero or negative means the student stayed until the end.
func EarlyLeaveMinutes(rec models.AttendanceRecord, at time.Time) (int, error) {
	expected, err := civiltime.At(rec.Date, rec.ExpectedDepartureTime, at.Location())
	if err != nil {
		return 0, err
	}
	return civiltime.WholeMinutes(at, expected), nil
}

func applyArrival(rec *models.AttendanceRecord, at time.Time, method models.CheckMethod) error {
	diff, err := LateMinutes(*rec, at)
	if err != nil {
		return fmt.Errorf("compute lateness: %w", err)
	}
	late := maxInt(diff, 0)
	arrival := at
	m := method

	rec.Status = models.AttendanceStatusCheckedIn
	rec.ActualArrivalTime = &arrival
	rec.CheckInMethod = &m
	rec.IsLate = late > 0
	rec.LateMinutes = &late
	return nil
}

func applyDeparture(rec *models.AttendanceRecord, at time.Time, method models.CheckMethod) error {
	diff, err := EarlyLeaveMinutes(*rec, at)
	if err != nil {
		return fmt.Errorf("compute early leave: %w", err)
	}
	early := maxInt(diff, 0)
	isEarly := early > 0
	departure := at
	m := method

	rec.Status = models.AttendanceStatusCheckedOut
	rec.ActualDepartureTime = &departure
	rec.CheckOutMethod = &m
	rec.IsEarlyLeave = &isEarly
	rec.EarlyLeaveMinutes = &early
	return nil
}

func invalid(from models.AttendanceStatus, ev Event) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot apply %s to a %s record", ev.Kind(), from))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
