package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
)

var kst = time.FixedZone("KST", 9*3600)

// stepClock is a mutable clock for walking through a day.
type stepClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *stepClock) Set(clock string) {
	at, err := civiltime.At("2026-10-19", clock, kst)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.at = at
	c.mu.Unlock()
}

func newCivil(clock string) (*civiltime.Service, *stepClock) {
	c := &stepClock{}
	c.Set(clock)
	return civiltime.NewWithLocation(kst, c), c
}

func kstAt(clock string) time.Time {
	at, err := civiltime.At("2026-10-19", clock, kst)
	if err != nil {
		panic(err)
	}
	return at
}

// canonicalMonday has two continuous blocks: 09:00-12:00 and 14:00-18:00.
func canonicalMonday() models.WeeklySchedule {
	return models.WeeklySchedule{
		"monday": {
			IsActive: true,
			TimeSlots: []models.TimeSlot{
				{StartTime: "14:00", EndTime: "16:00", Subject: "Physics", Type: models.SlotTypeClass},
				{StartTime: "09:00", EndTime: "10:00", Subject: "Math", Type: models.SlotTypeClass},
				{StartTime: "10:00", EndTime: "12:00", Subject: "Review", Type: models.SlotTypeSelfStudy},
				{StartTime: "12:00", EndTime: "14:00", Subject: "Academy", Type: models.SlotTypeExternal},
				{StartTime: "16:00", EndTime: "18:00", Subject: "Review", Type: models.SlotTypeSelfStudy},
			},
		},
	}
}

type tenantStub struct {
	tenants []models.Tenant
	err     error
}

func (s tenantStub) ListActive(context.Context) ([]models.Tenant, error) {
	return s.tenants, s.err
}

func (s tenantStub) LayoutExists(_ context.Context, tenantID, layoutID string) (bool, error) {
	return tenantID == "t1" && layoutID == "layout-1", s.err
}

type memRecordStore struct {
	mu        sync.Mutex
	records   map[string]models.AttendanceRecord
	casMisses int
	applyErr  map[string]error
}

func newMemRecordStore(recs ...models.AttendanceRecord) *memRecordStore {
	m := &memRecordStore{records: map[string]models.AttendanceRecord{}, applyErr: map[string]error{}}
	for _, r := range recs {
		m.records[r.ID] = r
	}
	return m
}

func (m *memRecordStore) get(id string) models.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

func (m *memRecordStore) filter(keep func(models.AttendanceRecord) bool) []models.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AttendanceRecord
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].SessionNumber < out[j].SessionNumber
	})
	return out
}

func (m *memRecordStore) StudentsWithRecords(_ context.Context, tenantID, date string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for _, r := range m.filter(func(r models.AttendanceRecord) bool { return r.TenantID == tenantID && r.Date == date }) {
		out[r.StudentID] = struct{}{}
	}
	return out, nil
}

func (m *memRecordStore) InsertBatch(_ context.Context, records []models.AttendanceRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, rec := range records {
		dup := false
		for _, existing := range m.records {
			if existing.TenantID == rec.TenantID && existing.StudentID == rec.StudentID &&
				existing.Date == rec.Date && existing.SessionNumber == rec.SessionNumber {
				dup = true
				break
			}
		}
		if !dup {
			m.records[rec.ID] = rec
			inserted++
		}
	}
	return inserted, nil
}

func (m *memRecordStore) ListScheduledStartingAt(_ context.Context, tenantID, date, clock string) ([]models.AttendanceRecord, error) {
	return m.filter(func(r models.AttendanceRecord) bool {
		return r.TenantID == tenantID && r.Date == date && r.Status == models.AttendanceStatusScheduled && r.ExpectedArrivalTime == clock
	}), nil
}

func (m *memRecordStore) ListNotArrived(_ context.Context, tenantID, uptoDate string) ([]models.AttendanceRecord, error) {
	return m.filter(func(r models.AttendanceRecord) bool {
		return r.TenantID == tenantID && r.Status == models.AttendanceStatusNotArrived && r.Date <= uptoDate
	}), nil
}

func (m *memRecordStore) ListByStudentDate(_ context.Context, tenantID, studentID, date string) ([]models.AttendanceRecord, error) {
	return m.filter(func(r models.AttendanceRecord) bool {
		return r.TenantID == tenantID && r.StudentID == studentID && r.Date == date
	}), nil
}

func (m *memRecordStore) FindByID(_ context.Context, tenantID, id string) (*models.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (m *memRecordStore) List(_ context.Context, f models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	return m.filter(func(r models.AttendanceRecord) bool {
		return r.TenantID == f.TenantID && (f.Date == "" || r.Date == f.Date) &&
			(f.StudentID == "" || r.StudentID == f.StudentID) && (f.Status == nil || r.Status == *f.Status)
	}), nil
}

func (m *memRecordStore) ListCheckedIn(_ context.Context, tenantID, uptoDate string) ([]models.AttendanceRecord, error) {
	return m.filter(func(r models.AttendanceRecord) bool {
		return r.TenantID == tenantID && r.Status == models.AttendanceStatusCheckedIn && r.Date <= uptoDate
	}), nil
}

func (m *memRecordStore) CompareAndSet(_ context.Context, rec models.AttendanceRecord, expected models.AttendanceStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.casMisses > 0 {
		m.casMisses--
		return false, nil
	}
	stored, ok := m.records[rec.ID]
	if !ok || stored.Status != expected {
		return false, nil
	}
	m.records[rec.ID] = rec
	return true, nil
}

func (m *memRecordStore) ApplyUpdates(ctx context.Context, updates []models.RecordUpdate) (int, error) {
	if len(updates) > 0 {
		if err := m.applyErr[updates[0].Record.TenantID]; err != nil {
			return 0, err
		}
	}
	applied := 0
	for _, u := range updates {
		ok, _ := m.CompareAndSet(ctx, u.Record, u.ExpectedStatus)
		if ok {
			applied++
		}
	}
	return applied, nil
}

type memPinRepo struct {
	mu    sync.Mutex
	creds map[string]models.PinCredential
}

func newMemPinRepo(creds ...models.PinCredential) *memPinRepo {
	r := &memPinRepo{creds: map[string]models.PinCredential{}}
	for _, c := range creds {
		r.creds[c.TenantID+"/"+c.StudentID] = c
	}
	return r
}

func (r *memPinRepo) FindByStudent(_ context.Context, tenantID, studentID string) (*models.PinCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[tenantID+"/"+studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r *memPinRepo) FindByPin(_ context.Context, tenantID, pin string) (*models.PinCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creds {
		if c.TenantID == tenantID && c.ActualPin == pin {
			found := c
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memPinRepo) PinInUse(_ context.Context, tenantID, pin, exceptStudentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creds {
		if c.TenantID == tenantID && c.ActualPin == pin && c.StudentID != exceptStudentID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memPinRepo) RecordFailure(_ context.Context, tenantID, studentID string, threshold int, at time.Time) (*models.PinFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tenantID + "/" + studentID
	c, ok := r.creds[key]
	if !ok {
		return nil, errors.New("missing credential")
	}
	c.FailedAttempts++
	c.IsLocked = c.IsLocked || c.FailedAttempts >= threshold
	c.LastFailedAt = &at
	r.creds[key] = c
	return &models.PinFailure{FailedAttempts: c.FailedAttempts, IsLocked: c.IsLocked}, nil
}

func (r *memPinRepo) RecordSuccess(_ context.Context, tenantID, studentID, pinHash string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tenantID + "/" + studentID
	c, ok := r.creds[key]
	if !ok || c.IsLocked || c.PinHash != pinHash {
		return false, nil
	}
	c.FailedAttempts = 0
	c.LastUsedAt = &at
	r.creds[key] = c
	return true, nil
}

func (r *memPinRepo) Upsert(_ context.Context, cred models.PinCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[cred.TenantID+"/"+cred.StudentID] = cred
	return nil
}

func (r *memPinRepo) Unlock(_ context.Context, tenantID, studentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tenantID + "/" + studentID
	c, ok := r.creds[key]
	if !ok {
		return false, nil
	}
	c.IsLocked = false
	c.FailedAttempts = 0
	r.creds[key] = c
	return true, nil
}

func (r *memPinRepo) state(tenantID, studentID string) models.PinCredential {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creds[tenantID+"/"+studentID]
}

type studentStub struct {
	students map[string]models.Student
}

func (s studentStub) FindByID(_ context.Context, tenantID, id string) (*models.Student, error) {
	st, ok := s.students[id]
	if !ok || st.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

func (s studentStub) Exists(_ context.Context, tenantID, id string) (bool, error) {
	st, ok := s.students[id]
	return ok && st.TenantID == tenantID, nil
}
