package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SlotType classifies a timetable slot.
type SlotType string

const (
	SlotTypeClass     SlotType = "class"
	SlotTypeSelfStudy SlotType = "self_study"
	// SlotTypeExternal marks an excusable break; it splits continuous blocks.
	SlotTypeExternal SlotType = "external"
)

// Valid reports whether the slot type is supported.
func (t SlotType) Valid() bool {
	switch t {
	case SlotTypeClass, SlotTypeSelfStudy, SlotTypeExternal:
		return true
	default:
		return false
	}
}

// IsObligation reports whether attendance is expected during the slot.
func (t SlotType) IsObligation() bool {
	return t == SlotTypeClass || t == SlotTypeSelfStudy
}

// TimeSlot is one entry of a day's timetable.
type TimeSlot struct {
	StartTime string   `json:"startTime" validate:"required,clock"`
	EndTime   string   `json:"endTime" validate:"required,clock"`
	Subject   string   `json:"subject"`
	Type      SlotType `json:"type" validate:"required,slot_type"`
}

// DaySchedule holds a day's slots.
type DaySchedule struct {
	IsActive  bool       `json:"isActive"`
	TimeSlots []TimeSlot `json:"timeSlots" validate:"dive"`
}

// WeeklySchedule maps lowercase weekday keys (monday..sunday) to day entries.
type WeeklySchedule map[string]DaySchedule

// Day returns the entry for a weekday key.
func (w WeeklySchedule) Day(dayOfWeek string) (DaySchedule, bool) {
	if w == nil {
		return DaySchedule{}, false
	}
	day, ok := w[dayOfWeek]
	return day, ok
}

// Value implements driver.Valuer for JSONB columns.
func (w WeeklySchedule) Value() (driver.Value, error) {
	if w == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(w)
}

// Scan implements sql.Scanner for JSONB columns.
func (w *WeeklySchedule) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*w = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan weekly schedule: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*w = nil
		return nil
	}
	decoded := WeeklySchedule{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("scan weekly schedule: %w", err)
	}
	*w = decoded
	return nil
}

// Timetable is the student-owned weekly schedule document.
type Timetable struct {
	ID             string         `db:"id" json:"id"`
	TenantID       string         `db:"tenant_id" json:"tenant_id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	DailySchedules WeeklySchedule `db:"daily_schedules" json:"daily_schedules"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// ContinuousBlock is a maximal run of obligation slots within a day.
type ContinuousBlock struct {
	Slots     []TimeSlot `json:"slots"`
	StartTime string     `json:"startTime"`
	EndTime   string     `json:"endTime"`
}
