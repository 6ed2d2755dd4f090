package attendance

import (
	"sort"
	"time"

	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

// CheckAction is the outcome of a PIN check.
type CheckAction string

const (
	ActionCheckedIn  CheckAction = "checked_in"
	ActionCheckedOut CheckAction = "checked_out"
)

// SelectCheckTarget picks the single record a check event applies to among one
// student's records for a day.
//
// The earliest open (scheduled or not_arrived) record is the check-in target,
// unless the student is still inside an earlier checked-in session and the open
// one has not started yet, in which case the most recent such session is
// checked out.
// With no open record the latest session absorbs the check-out.
func SelectCheckTarget(records []models.AttendanceRecord, now time.Time) (models.AttendanceRecord, CheckAction, error) {
	ordered := make([]models.AttendanceRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SessionNumber < ordered[j].SessionNumber
	})

	var open, inside, latest *models.AttendanceRecord
	for i := range ordered {
		rec := &ordered[i]
		if open == nil && rec.Status.Open() {
			open = rec
		}
		if rec.IsLatestSession {
			latest = rec
		}
	}

	if open != nil {
		// the session the student is in is the most recent one entered before open
		for i := range ordered {
			rec := &ordered[i]
			if rec.SessionNumber >= open.SessionNumber {
				break
			}
			if rec.Status == models.AttendanceStatusCheckedIn {
				inside = rec
			}
		}
		if inside != nil && beforeStart(*open, now) {
			return *inside, ActionCheckedOut, nil
		}
		return *open, ActionCheckedIn, nil
	}
	if latest != nil && latest.Status == models.AttendanceStatusCheckedIn {
		return *latest, ActionCheckedOut, nil
	}
	return models.AttendanceRecord{}, "", appErrors.ErrNoApplicableSession
}

func beforeStart(rec models.AttendanceRecord, now time.Time) bool {
	start, err := civiltime.At(rec.Date, rec.ExpectedArrivalTime, now.Location())
	if err != nil {
		return false
	}
	return now.Before(start)
}

// EventFor builds the lifecycle event matching a selected action.
func EventFor(action CheckAction, at time.Time, method models.CheckMethod) Event {
	if action == ActionCheckedOut {
		return CheckOut{At: at, Method: method}
	}
	return CheckIn{At: at, Method: method}
}
