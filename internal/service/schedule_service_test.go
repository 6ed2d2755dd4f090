package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
	"github.com/noah-isme/studyhall-attendance/pkg/jobs"
)

type timetableStoreStub struct {
	previous models.WeeklySchedule
	saved    models.WeeklySchedule
}

func (s *timetableStoreStub) FindByStudent(_ context.Context, tenantID, studentID string) (*models.Timetable, error) {
	if s.saved == nil {
		return nil, sql.ErrNoRows
	}
	return &models.Timetable{ID: "tt1", TenantID: tenantID, StudentID: studentID, DailySchedules: s.saved}, nil
}

func (s *timetableStoreStub) Save(_ context.Context, tenantID, studentID string, schedule models.WeeklySchedule) (*models.Timetable, models.WeeklySchedule, error) {
	s.saved = schedule
	return &models.Timetable{ID: "tt1", TenantID: tenantID, StudentID: studentID, DailySchedules: schedule}, s.previous, nil
}

type publisherStub struct {
	jobs []jobs.Job
	err  error
}

func (p *publisherStub) Enqueue(job jobs.Job) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func newScheduleFixture(pub *publisherStub) (*ScheduleService, *timetableStoreStub) {
	store := &timetableStoreStub{}
	students := studentStub{students: map[string]models.Student{"s1": {ID: "s1", TenantID: "t1"}}}
	return NewScheduleService(store, students, pub, nil, nil, 30*time.Minute), store
}

func TestScheduleServiceStoresSortedAndEnqueues(t *testing.T) {
	pub := &publisherStub{}
	svc, store := newScheduleFixture(pub)

	resp, err := svc.UpdateTimetable(context.Background(), "t1", "s1", dto.UpdateTimetableRequest{DailySchedules: canonicalMonday()})
	require.NoError(t, err)
	assert.Empty(t, resp.Warnings)
	assert.Equal(t, "09:00", store.saved["monday"].TimeSlots[0].StartTime)

	require.Len(t, pub.jobs, 1)
	change, ok := pub.jobs[0].Payload.(ScheduleChange)
	require.True(t, ok)
	assert.Equal(t, "tt1", change.TimetableID)

	var after models.WeeklySchedule
	require.NoError(t, json.Unmarshal(change.After, &after))
	assert.Len(t, after["monday"].TimeSlots, 5)
}

func TestScheduleServiceWarnsOnMisalignedStart(t *testing.T) {
	svc, _ := newScheduleFixture(&publisherStub{})
	schedule := models.WeeklySchedule{"tuesday": {IsActive: true, TimeSlots: []models.TimeSlot{
		{StartTime: "09:10", EndTime: "10:00", Type: models.SlotTypeClass},
	}}}

	resp, err := svc.UpdateTimetable(context.Background(), "t1", "s1", dto.UpdateTimetableRequest{DailySchedules: schedule})
	require.NoError(t, err)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "09:10")
}

func TestScheduleServiceValidation(t *testing.T) {
	svc, _ := newScheduleFixture(&publisherStub{})
	cases := map[string]models.WeeklySchedule{
		"bad clock":   {"monday": {IsActive: true, TimeSlots: []models.TimeSlot{{StartTime: "9:00", EndTime: "10:00", Type: models.SlotTypeClass}}}},
		"bad type":    {"monday": {IsActive: true, TimeSlots: []models.TimeSlot{{StartTime: "09:00", EndTime: "10:00", Type: "lunch"}}}},
		"reversed":    {"monday": {IsActive: true, TimeSlots: []models.TimeSlot{{StartTime: "11:00", EndTime: "10:00", Type: models.SlotTypeClass}}}},
		"bad weekday": {"funday": {IsActive: true}},
	}
	for name, schedule := range cases {
		_, err := svc.UpdateTimetable(context.Background(), "t1", "s1", dto.UpdateTimetableRequest{DailySchedules: schedule})
		assert.ErrorIs(t, err, appErrors.ErrValidation, name)
	}

	_, err := svc.UpdateTimetable(context.Background(), "t1", "ghost", dto.UpdateTimetableRequest{DailySchedules: canonicalMonday()})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestScheduleServiceIgnoresQueueFailure(t *testing.T) {
	svc, _ := newScheduleFixture(&publisherStub{err: errors.New("queue not running")})
	_, err := svc.UpdateTimetable(context.Background(), "t1", "s1", dto.UpdateTimetableRequest{DailySchedules: canonicalMonday()})
	assert.NoError(t, err)
}

func TestScheduleServiceGetTimetable(t *testing.T) {
	svc, _ := newScheduleFixture(&publisherStub{})

	_, err := svc.GetTimetable(context.Background(), "t1", "s1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.UpdateTimetable(context.Background(), "t1", "s1", dto.UpdateTimetableRequest{DailySchedules: canonicalMonday()})
	require.NoError(t, err)
	tt, err := svc.GetTimetable(context.Background(), "t1", "s1")
	require.NoError(t, err)
	assert.True(t, tt.DailySchedules["monday"].IsActive)
}
