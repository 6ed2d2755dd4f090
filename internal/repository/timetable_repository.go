package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/studyhall-attendance/internal/models"
)

// TimetableRepository persists weekly schedules.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

const timetableColumns = `id, tenant_id, student_id, daily_schedules, updated_at`

// FindByIDs loads timetables keyed by id. Unknown ids are simply absent.
func (r *TimetableRepository) FindByIDs(ctx context.Context, tenantID string, ids []string) (map[string]models.Timetable, error) {
	result := make(map[string]models.Timetable, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query := `SELECT ` + timetableColumns + ` FROM timetables WHERE tenant_id = $1 AND id = ANY($2)`
	var rows []models.Timetable
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("load timetables: %w", err)
	}
	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}

// FindByStudent returns the student's timetable or sql.ErrNoRows.
func (r *TimetableRepository) FindByStudent(ctx context.Context, tenantID, studentID string) (*models.Timetable, error) {
	var tt models.Timetable
	query := `SELECT ` + timetableColumns + ` FROM timetables WHERE tenant_id = $1 AND student_id = $2 ORDER BY updated_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &tt, query, tenantID, studentID); err != nil {
		return nil, err
	}
	return &tt, nil
}

// Save replaces the student's weekly schedule, creating the timetable when the
// student has none, and returns the stored row together with the previous schedule.
func (r *TimetableRepository) Save(ctx context.Context, tenantID, studentID string, schedule models.WeeklySchedule) (*models.Timetable, models.WeeklySchedule, error) {
	var (
		stored   models.Timetable
		previous models.WeeklySchedule
	)
	err := withTx(ctx, r.db, "save timetable", func(tx *sqlx.Tx) error {
		var current models.Timetable
		lockQuery := `SELECT ` + timetableColumns + ` FROM timetables WHERE tenant_id = $1 AND student_id = $2 ORDER BY updated_at DESC LIMIT 1 FOR UPDATE`
		err := tx.GetContext(ctx, &current, lockQuery, tenantID, studentID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			current = models.Timetable{ID: uuid.NewString(), TenantID: tenantID, StudentID: studentID}
		case err != nil:
			return fmt.Errorf("lock timetable: %w", err)
		default:
			previous = current.DailySchedules
		}

		upsert := `INSERT INTO timetables (id, tenant_id, student_id, daily_schedules, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET daily_schedules = EXCLUDED.daily_schedules, updated_at = EXCLUDED.updated_at
RETURNING ` + timetableColumns
		if err := tx.GetContext(ctx, &stored, upsert, current.ID, tenantID, studentID, schedule, time.Now().UTC()); err != nil {
			return fmt.Errorf("upsert timetable: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &stored, previous, nil
}
