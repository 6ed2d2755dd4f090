package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studyhall-attendance/internal/models"
)

// AttendanceRecordRepository persists per-block attendance records.
type AttendanceRecordRepository struct {
	db *sqlx.DB
}

// NewAttendanceRecordRepository constructs the repository.
func NewAttendanceRecordRepository(db *sqlx.DB) *AttendanceRecordRepository {
	return &AttendanceRecordRepository{db: db}
}

// The DATE column is read back as text so it round-trips as a civil date.
const attendanceColumns = `id, tenant_id, student_id, seat_id, seat_number, to_char(date, 'YYYY-MM-DD') AS date, day_of_week,
expected_arrival_time, expected_departure_time, status, actual_arrival_time, actual_departure_time,
is_late, late_minutes, is_early_leave, early_leave_minutes, check_in_method, check_out_method,
excused_reason, session_number, is_latest_session, not_arrived_at, absent_confirmed_at, absent_marked_at,
created_at, updated_at`

const insertAttendanceRecord = `INSERT INTO attendance_records (
id, tenant_id, student_id, seat_id, seat_number, date, day_of_week, expected_arrival_time, expected_departure_time,
status, is_late, session_number, is_latest_session, created_at, updated_at)
VALUES (:id, :tenant_id, :student_id, :seat_id, :seat_number, :date, :day_of_week, :expected_arrival_time, :expected_departure_time,
:status, :is_late, :session_number, :is_latest_session, :created_at, :updated_at)
ON CONFLICT (tenant_id, student_id, date, session_number) DO NOTHING`

const updateAttendanceRecord = `UPDATE attendance_records SET
status = :status,
actual_arrival_time = :actual_arrival_time,
actual_departure_time = :actual_departure_time,
is_late = :is_late,
late_minutes = :late_minutes,
is_early_leave = :is_early_leave,
early_leave_minutes = :early_leave_minutes,
check_in_method = :check_in_method,
check_out_method = :check_out_method,
excused_reason = :excused_reason,
not_arrived_at = :not_arrived_at,
absent_confirmed_at = :absent_confirmed_at,
absent_marked_at = :absent_marked_at,
updated_at = :updated_at
WHERE id = :id AND tenant_id = :tenant_id AND status = :expected_status`

type recordUpdateArgs struct {
	models.AttendanceRecord
	ExpectedStatus models.AttendanceStatus `db:"expected_status"`
}

// StudentsWithRecords returns the ids of students that already have any record
// for the date.
func (r *AttendanceRecordRepository) StudentsWithRecords(ctx context.Context, tenantID, date string) (map[string]struct{}, error) {
	var ids []string
	query := `SELECT DISTINCT student_id FROM attendance_records WHERE tenant_id = $1 AND date = $2`
	if err := r.db.SelectContext(ctx, &ids, query, tenantID, date); err != nil {
		return nil, fmt.Errorf("list students with records: %w", err)
	}
	result := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		result[id] = struct{}{}
	}
	return result, nil
}

// InsertBatch writes records in one transaction. Rows that collide with an
// existing session are left untouched; the number actually inserted is returned.
func (r *AttendanceRecordRepository) InsertBatch(ctx context.Context, records []models.AttendanceRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	inserted := 0
	err := withTx(ctx, r.db, "insert attendance batch", func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, insertAttendanceRecord)
		if err != nil {
			return fmt.Errorf("prepare attendance insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i := range records {
			rec := records[i]
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = now
			}
			rec.UpdatedAt = now
			res, err := stmt.ExecContext(ctx, rec)
			if err != nil {
				return fmt.Errorf("insert attendance record %s/%d: %w", rec.StudentID, rec.SessionNumber, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("attendance insert rows affected: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListScheduledStartingAt returns scheduled records whose block starts at clock.
func (r *AttendanceRecordRepository) ListScheduledStartingAt(ctx context.Context, tenantID, date, clock string) ([]models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records
WHERE tenant_id = $1 AND date = $2 AND status = 'scheduled' AND expected_arrival_time = $3
ORDER BY student_id, session_number`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, date, clock); err != nil {
		return nil, fmt.Errorf("list scheduled records: %w", err)
	}
	return rows, nil
}

// ListNotArrived returns not_arrived records dated on or before the given date.
func (r *AttendanceRecordRepository) ListNotArrived(ctx context.Context, tenantID, uptoDate string) ([]models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records
WHERE tenant_id = $1 AND status = 'not_arrived' AND date <= $2
ORDER BY date, expected_departure_time, student_id`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, uptoDate); err != nil {
		return nil, fmt.Errorf("list not arrived records: %w", err)
	}
	return rows, nil
}

// ListByStudentDate returns a student's records for a date ordered by session.
func (r *AttendanceRecordRepository) ListByStudentDate(ctx context.Context, tenantID, studentID, date string) ([]models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records
WHERE tenant_id = $1 AND student_id = $2 AND date = $3
ORDER BY session_number`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, studentID, date); err != nil {
		return nil, fmt.Errorf("list student records: %w", err)
	}
	return rows, nil
}

// FindByID returns a record or sql.ErrNoRows.
func (r *AttendanceRecordRepository) FindByID(ctx context.Context, tenantID, id string) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE tenant_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &rec, query, tenantID, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns records matching the filter.
func (r *AttendanceRecordRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	conditions := []string{"tenant_id = $1"}
	args := []interface{}{filter.TenantID}
	if filter.Date != "" {
		args = append(args, filter.Date)
		conditions = append(conditions, fmt.Sprintf("date = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY date, seat_number, session_number`

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return rows, nil
}

// ListCheckedIn returns checked_in records dated on or before the given date.
// Sweeps never close them; stale ones are surfaced to operators.
func (r *AttendanceRecordRepository) ListCheckedIn(ctx context.Context, tenantID, uptoDate string) ([]models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records
WHERE tenant_id = $1 AND status = 'checked_in' AND date <= $2
ORDER BY date, seat_number, session_number`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, uptoDate); err != nil {
		return nil, fmt.Errorf("list checked in records: %w", err)
	}
	return rows, nil
}

// CompareAndSet writes one record if its stored status still matches expected.
// It reports whether the row was written.
func (r *AttendanceRecordRepository) CompareAndSet(ctx context.Context, rec models.AttendanceRecord, expected models.AttendanceStatus) (bool, error) {
	rec.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, updateAttendanceRecord, recordUpdateArgs{AttendanceRecord: rec, ExpectedStatus: expected})
	if err != nil {
		return false, fmt.Errorf("update attendance record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attendance update rows affected: %w", err)
	}
	return n == 1, nil
}

// ApplyUpdates writes a batch of compare-and-set updates in one transaction and
// returns how many rows were written. Rows whose status moved on are skipped.
func (r *AttendanceRecordRepository) ApplyUpdates(ctx context.Context, updates []models.RecordUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	applied := 0
	err := withTx(ctx, r.db, "apply attendance updates", func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, updateAttendanceRecord)
		if err != nil {
			return fmt.Errorf("prepare attendance update: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, u := range updates {
			rec := u.Record
			rec.UpdatedAt = now
			res, err := stmt.ExecContext(ctx, recordUpdateArgs{AttendanceRecord: rec, ExpectedStatus: u.ExpectedStatus})
			if err != nil {
				return fmt.Errorf("update attendance record %s: %w", rec.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("attendance update rows affected: %w", err)
			}
			applied += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}
