package dto

import "github.com/noah-isme/studyhall-attendance/internal/models"

// UpdateTimetableRequest replaces a student's weekly schedule.
type UpdateTimetableRequest struct {
	DailySchedules models.WeeklySchedule `json:"dailySchedules" validate:"required,dive,keys,weekday,endkeys"`
}

// TimetableResponse echoes the stored timetable with non-fatal warnings.
type TimetableResponse struct {
	Timetable models.Timetable `json:"timetable"`
	Warnings  []string         `json:"warnings,omitempty"`
}
