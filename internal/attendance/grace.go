package attendance

import (
	"time"

	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
)

// GracePolicy holds the fixed windows granted after a block ends before an
// unclaimed record is confirmed absent.
type GracePolicy struct {
	ResponseWindow time.Duration
	GracePeriod    time.Duration
}

// DefaultGracePolicy is the 30 minute response window plus 5 minute grace.
var DefaultGracePolicy = GracePolicy{ResponseWindow: 30 * time.Minute, GracePeriod: 5 * time.Minute}

// Window is the total time allowed after the expected departure.
func (p GracePolicy) Window() time.Duration {
	return p.ResponseWindow + p.GracePeriod
}

// Deadline is the expected departure instant plus the window.
func (p GracePolicy) Deadline(rec models.AttendanceRecord, loc *time.Location) (time.Time, error) {
	departure, err := civiltime.At(rec.Date, rec.ExpectedDepartureTime, loc)
	if err != nil {
		return time.Time{}, err
	}
	return departure.Add(p.Window()), nil
}

// ConfirmedAt reconstructs the instant absence became true from the moment the
// record went not_arrived plus the block duration and the window. Records
// without a not_arrived stamp fall back to the deadline.
func (p GracePolicy) ConfirmedAt(rec models.AttendanceRecord, loc *time.Location) (time.Time, error) {
	deadline, err := p.Deadline(rec, loc)
	if err != nil {
		return time.Time{}, err
	}
	if rec.NotArrivedAt == nil {
		return deadline, nil
	}
	start, err := civiltime.ParseClock(rec.ExpectedArrivalTime)
	if err != nil {
		return time.Time{}, err
	}
	end, err := civiltime.ParseClock(rec.ExpectedDepartureTime)
	if err != nil {
		return time.Time{}, err
	}
	if end < start {
		return deadline, nil
	}
	duration := time.Duration(end-start) * time.Minute
	return rec.NotArrivedAt.In(loc).Add(duration + p.Window()), nil
}

// Expire returns the GraceExpired event for rec when now is past its deadline.
func (p GracePolicy) Expire(rec models.AttendanceRecord, now time.Time) (GraceExpired, bool, error) {
	loc := now.Location()
	deadline, err := p.Deadline(rec, loc)
	if err != nil {
		return GraceExpired{}, false, err
	}
	if !now.After(deadline) {
		return GraceExpired{}, false, nil
	}
	confirmed, err := p.ConfirmedAt(rec, loc)
	if err != nil {
		return GraceExpired{}, false, err
	}
	return GraceExpired{ConfirmedAt: confirmed, MarkedAt: now}, true, nil
}
