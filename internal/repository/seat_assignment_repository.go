package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/studyhall-attendance/internal/models"
)

// SeatAssignmentRepository reads seat assignments and owns the single write path
// of their cached expected schedule.
type SeatAssignmentRepository struct {
	db *sqlx.DB
}

// NewSeatAssignmentRepository constructs the repository.
func NewSeatAssignmentRepository(db *sqlx.DB) *SeatAssignmentRepository {
	return &SeatAssignmentRepository{db: db}
}

const seatAssignmentColumns = `id, tenant_id, layout_id, seat_id, seat_number, student_id, timetable_id, status, expected_schedule, updated_at`

// ListActive returns the tenant's active assignments.
func (r *SeatAssignmentRepository) ListActive(ctx context.Context, tenantID string) ([]models.SeatAssignment, error) {
	query := `SELECT ` + seatAssignmentColumns + ` FROM seat_assignments WHERE tenant_id = $1 AND status = 'active' ORDER BY seat_number`
	var rows []models.SeatAssignment
	if err := r.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		return nil, fmt.Errorf("list active seat assignments: %w", err)
	}
	return rows, nil
}

// FindActiveBySeat resolves the active assignment at a seat of a layout or
// returns sql.ErrNoRows.
func (r *SeatAssignmentRepository) FindActiveBySeat(ctx context.Context, tenantID, layoutID string, seatNumber int) (*models.SeatAssignment, error) {
	var row models.SeatAssignment
	query := `SELECT ` + seatAssignmentColumns + ` FROM seat_assignments
WHERE tenant_id = $1 AND layout_id = $2 AND seat_number = $3 AND status = 'active' LIMIT 1`
	if err := r.db.GetContext(ctx, &row, query, tenantID, layoutID, seatNumber); err != nil {
		return nil, err
	}
	return &row, nil
}

// InLayout reports whether the student holds an active seat in the layout.
func (r *SeatAssignmentRepository) InLayout(ctx context.Context, tenantID, layoutID, studentID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM seat_assignments WHERE tenant_id = $1 AND layout_id = $2 AND student_id = $3 AND status = 'active')`
	if err := r.db.GetContext(ctx, &exists, query, tenantID, layoutID, studentID); err != nil {
		return false, fmt.Errorf("check seat assignment: %w", err)
	}
	return exists, nil
}

// ListActiveByTimetable returns the student's active assignments that cache the
// given timetable or are not yet linked to one.
func (r *SeatAssignmentRepository) ListActiveByTimetable(ctx context.Context, tenantID, studentID, timetableID string) ([]models.SeatAssignment, error) {
	query := `SELECT ` + seatAssignmentColumns + ` FROM seat_assignments
WHERE tenant_id = $1 AND student_id = $2 AND (timetable_id = $3 OR timetable_id IS NULL) AND status = 'active'
ORDER BY id`
	var rows []models.SeatAssignment
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, studentID, timetableID); err != nil {
		return nil, fmt.Errorf("list seat assignments by timetable: %w", err)
	}
	return rows, nil
}

// UpdateExpectedSchedule overwrites the cached schedule, and links the timetable,
// on the given assignments in one transaction. It returns the rows written.
func (r *SeatAssignmentRepository) UpdateExpectedSchedule(ctx context.Context, tenantID, timetableID string, ids []string, schedule models.WeeklySchedule) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var updated int64
	err := withTx(ctx, r.db, "update expected schedule", func(tx *sqlx.Tx) error {
		query := `UPDATE seat_assignments SET expected_schedule = $1, timetable_id = $2, updated_at = $3
WHERE tenant_id = $4 AND id = ANY($5) AND status = 'active'`
		res, err := tx.ExecContext(ctx, query, schedule, timetableID, time.Now().UTC(), tenantID, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("update expected schedule: %w", err)
		}
		updated, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("expected schedule rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(updated), nil
}
