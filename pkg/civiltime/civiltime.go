// Package civiltime resolves "now" and "today" in the single civil timezone the
// attendance records are partitioned by, and converts HH:mm clock strings.
package civiltime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the civil date format used as the daily partition key.
	DateLayout = "2006-01-02"
	// ClockLayout is the zero-padded 24h wall clock format of timetable slots.
	ClockLayout = "15:04"

	minutesPerDay = 24 * 60
)

// Clock abstracts the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.At }

// Service answers civil-time questions in one location.
type Service struct {
	loc   *time.Location
	clock Clock
}

// New loads the named IANA location. A nil clock uses the system clock.
func New(timezone string, clock Clock) (*Service, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return NewWithLocation(loc, clock), nil
}

// NewWithLocation builds a Service from an already resolved location.
func NewWithLocation(loc *time.Location, clock Clock) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{loc: loc, clock: clock}
}

// Location returns the civil location.
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the current instant expressed in the civil location.
func (s *Service) Now() time.Time { return s.clock.Now().In(s.loc) }

// Today returns the civil date for the current instant.
func (s *Service) Today() string { return s.Now().Format(DateLayout) }

// DateOf returns the civil date of t.
func (s *Service) DateOf(t time.Time) string { return t.In(s.loc).Format(DateLayout) }

// ClockString formats t as HH:mm in the civil location.
func (s *Service) ClockString(t time.Time) string { return t.In(s.loc).Format(ClockLayout) }

// At resolves a civil date and clock string into an instant.
func (s *Service) At(date, clock string) (time.Time, error) {
	return At(date, clock, s.loc)
}

// DayOfWeek returns the lowercase English weekday for a civil date.
func (s *Service) DayOfWeek(date string) (string, error) {
	d, err := time.ParseInLocation(DateLayout, date, s.loc)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", date, err)
	}
	return WeekdayKey(d.Weekday()), nil
}

// WeekdayKey maps a time.Weekday to its schedule key.
func WeekdayKey(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// ParseClock converts HH:mm into minutes since midnight.
func ParseClock(clock string) (int, error) {
	if len(clock) != 5 || clock[2] != ':' {
		return 0, fmt.Errorf("invalid clock %q: expected HH:mm", clock)
	}
	hours, err := strconv.Atoi(clock[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", clock, err)
	}
	minutes, err := strconv.Atoi(clock[3:])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", clock, err)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid clock %q: out of range", clock)
	}
	return hours*60 + minutes, nil
}

// FormatClock converts minutes since midnight into HH:mm, wrapping at midnight.
func FormatClock(minutes int) string {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ValidClock reports whether clock is a well formed HH:mm string.
func ValidClock(clock string) bool {
	_, err := ParseClock(clock)
	return err == nil
}

// At resolves a civil date and clock string in loc.
func At(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), minutes/60, minutes%60, 0, 0, loc), nil
}

// WholeMinutes returns the number of complete minutes from a to b, truncating
// both instants to the minute first. Negative when b precedes a.
func WholeMinutes(a, b time.Time) int {
	return int(b.Truncate(time.Minute).Sub(a.Truncate(time.Minute)) / time.Minute)
}
