package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/studyhall-attendance/internal/attendance"
	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

type scopeStub struct {
	scope *models.Scope
}

func (s scopeStub) ResolveScope(_ context.Context, token string) (*models.Scope, error) {
	if token != "kiosk-token" {
		return nil, appErrors.ErrInvalidScopeToken
	}
	return s.scope, nil
}

type seatStub struct {
	bySeat  map[int]models.SeatAssignment
	members map[string]bool
}

func (s seatStub) FindActiveBySeat(_ context.Context, _, _ string, seatNumber int) (*models.SeatAssignment, error) {
	a, ok := s.bySeat[seatNumber]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (s seatStub) InLayout(_ context.Context, _, _, studentID string) (bool, error) {
	return s.members[studentID], nil
}

type checkFixture struct {
	svc   *CheckService
	store *memRecordStore
	pins  *memPinRepo
	clock *stepClock
}

func hashPin(t *testing.T, pin string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newCheckFixture(t *testing.T) checkFixture {
	t.Helper()
	civil, clock := newCivil("08:00")

	s1 := dayRecord("s1-1", "s1", "09:00", "12:00", models.AttendanceStatusScheduled, 1)
	s2 := dayRecord("s1-2", "s1", "14:00", "18:00", models.AttendanceStatusScheduled, 2)
	s2.IsLatestSession = true
	store := newMemRecordStore(s1, s2)

	pins := newMemPinRepo(
		models.PinCredential{TenantID: "t1", StudentID: "s1", PinHash: hashPin(t, "1234"), ActualPin: "1234"},
		models.PinCredential{TenantID: "t1", StudentID: "s9", PinHash: hashPin(t, "9999"), ActualPin: "9999"},
	)
	pinSvc := NewPinService(pins, studentStub{}, nil, nil, PinConfig{MaxFailedAttempts: 5, HashCost: bcrypt.MinCost})
	students := studentStub{students: map[string]models.Student{
		"s1": {ID: "s1", TenantID: "t1", FullName: "Kim Minji"},
		"s9": {ID: "s9", TenantID: "t1", FullName: "Elsewhere"},
	}}
	seats := seatStub{
		bySeat:  map[int]models.SeatAssignment{7: {ID: "a1", TenantID: "t1", StudentID: "s1", SeatNumber: 7}},
		members: map[string]bool{"s1": true},
	}

	svc := NewCheckService(scopeStub{scope: &models.Scope{TenantID: "t1", LayoutID: "layout-1"}}, seats, pinSvc, students, store, civil, nil, nil, nil)
	return checkFixture{svc: svc, store: store, pins: pins, clock: clock}
}

func pinReq(pin string) dto.PinCheckRequest {
	return dto.PinCheckRequest{ScopeToken: "kiosk-token", Pin: pin}
}

func TestCheckServiceFullDay(t *testing.T) {
	f := newCheckFixture(t)
	ctx := context.Background()

	f.clock.Set("09:10")
	resp, err := f.svc.ApplyPinCheck(ctx, pinReq("1234"))
	require.NoError(t, err)
	assert.Equal(t, string(attendance.ActionCheckedIn), resp.Action)
	assert.Equal(t, "s1-1", resp.Record.ID)
	assert.True(t, resp.Record.IsLate)
	assert.Equal(t, 10, *resp.Record.LateMinutes)
	assert.Equal(t, "Kim Minji checked in 10 min late", resp.Message)

	f.clock.Set("12:05")
	resp, err = f.svc.ApplyPinCheck(ctx, pinReq("1234"))
	require.NoError(t, err)
	assert.Equal(t, string(attendance.ActionCheckedOut), resp.Action)
	assert.Equal(t, "s1-1", resp.Record.ID)
	assert.False(t, *resp.Record.IsEarlyLeave)
	assert.Equal(t, "Kim Minji checked out", resp.Message)

	f.clock.Set("14:20")
	resp, err = f.svc.ApplyPinCheck(ctx, pinReq("1234"))
	require.NoError(t, err)
	assert.Equal(t, "s1-2", resp.Record.ID)
	assert.Equal(t, 20, *resp.Record.LateMinutes)

	f.clock.Set("17:50")
	resp, err = f.svc.ApplyPinCheck(ctx, pinReq("1234"))
	require.NoError(t, err)
	assert.Equal(t, string(attendance.ActionCheckedOut), resp.Action)
	assert.True(t, *resp.Record.IsEarlyLeave)
	assert.Equal(t, 10, *resp.Record.EarlyLeaveMinutes)
	assert.Equal(t, "Kim Minji checked out 10 min early", resp.Message)

	f.clock.Set("18:30")
	_, err = f.svc.ApplyPinCheck(ctx, pinReq("1234"))
	assert.ErrorIs(t, err, appErrors.ErrNoApplicableSession)

	stored := f.store.get("s1-2")
	assert.Equal(t, models.AttendanceStatusCheckedOut, stored.Status)
	require.NotNil(t, stored.CheckOutMethod)
	assert.Equal(t, models.CheckMethodPin, *stored.CheckOutMethod)
}

func TestCheckServiceWithSeatNumberLocksOut(t *testing.T) {
	f := newCheckFixture(t)
	ctx := context.Background()
	f.clock.Set("09:05")
	seatNumber := 7

	for i := 0; i < 5; i++ {
		_, err := f.svc.ApplyPinCheck(ctx, dto.PinCheckRequest{ScopeToken: "kiosk-token", Pin: "0000", SeatNumber: &seatNumber})
		assert.ErrorIs(t, err, appErrors.ErrPinRejected)
	}
	cred := f.pins.state("t1", "s1")
	assert.True(t, cred.IsLocked)
	assert.Equal(t, 5, cred.FailedAttempts)

	_, err := f.svc.ApplyPinCheck(ctx, dto.PinCheckRequest{ScopeToken: "kiosk-token", Pin: "1234", SeatNumber: &seatNumber})
	assert.ErrorIs(t, err, appErrors.ErrPinRejected)
	assert.Equal(t, 5, f.pins.state("t1", "s1").FailedAttempts)
	assert.Equal(t, models.AttendanceStatusScheduled, f.store.get("s1-1").Status)
}

func TestCheckServiceRejectsUnknownIdentities(t *testing.T) {
	f := newCheckFixture(t)
	ctx := context.Background()
	f.clock.Set("09:05")

	_, err := f.svc.ApplyPinCheck(ctx, pinReq("5555"))
	assert.ErrorIs(t, err, appErrors.ErrPinRejected)

	emptySeat := 3
	_, err = f.svc.ApplyPinCheck(ctx, dto.PinCheckRequest{ScopeToken: "kiosk-token", Pin: "1234", SeatNumber: &emptySeat})
	assert.ErrorIs(t, err, appErrors.ErrPinRejected)

	// valid PIN of a student seated in another layout
	_, err = f.svc.ApplyPinCheck(ctx, pinReq("9999"))
	assert.ErrorIs(t, err, appErrors.ErrPinRejected)

	_, err = f.svc.ApplyPinCheck(ctx, dto.PinCheckRequest{ScopeToken: "stolen", Pin: "1234"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidScopeToken)

	_, err = f.svc.ApplyPinCheck(ctx, dto.PinCheckRequest{ScopeToken: "kiosk-token", Pin: "12"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCheckServiceRetriesLostRaceOnce(t *testing.T) {
	f := newCheckFixture(t)
	f.clock.Set("09:00")
	f.store.casMisses = 1

	resp, err := f.svc.ApplyPinCheck(context.Background(), pinReq("1234"))
	require.NoError(t, err)
	assert.Equal(t, "Kim Minji checked in", resp.Message)
	assert.Equal(t, models.AttendanceStatusCheckedIn, f.store.get("s1-1").Status)

	f.store.casMisses = 2
	f.clock.Set("09:30")
	_, err = f.svc.ApplyPinCheck(context.Background(), pinReq("1234"))
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestCheckServiceSkipsAbsentRecords(t *testing.T) {
	f := newCheckFixture(t)
	rec := f.store.get("s1-1")
	rec.Status = models.AttendanceStatusAbsentUnexcused
	f.store.records[rec.ID] = rec

	f.clock.Set("13:00")
	resp, err := f.svc.ApplyPinCheck(context.Background(), pinReq("1234"))
	require.NoError(t, err)
	assert.Equal(t, "s1-2", resp.Record.ID)
	assert.Equal(t, models.AttendanceStatusAbsentUnexcused, f.store.get("s1-1").Status)
}
