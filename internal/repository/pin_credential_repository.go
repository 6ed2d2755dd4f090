package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studyhall-attendance/internal/models"
)

// PinCredentialRepository stores kiosk PIN credentials.
type PinCredentialRepository struct {
	db *sqlx.DB
}

// NewPinCredentialRepository constructs the repository.
func NewPinCredentialRepository(db *sqlx.DB) *PinCredentialRepository {
	return &PinCredentialRepository{db: db}
}

const pinCredentialColumns = `tenant_id, student_id, pin_hash, actual_pin, is_locked, failed_attempts, last_failed_at, last_changed_at, last_used_at`

// FindByStudent returns the student's credential or sql.ErrNoRows.
func (r *PinCredentialRepository) FindByStudent(ctx context.Context, tenantID, studentID string) (*models.PinCredential, error) {
	var cred models.PinCredential
	query := `SELECT ` + pinCredentialColumns + ` FROM pin_credentials WHERE tenant_id = $1 AND student_id = $2`
	if err := r.db.GetContext(ctx, &cred, query, tenantID, studentID); err != nil {
		return nil, err
	}
	return &cred, nil
}

// FindByPin resolves the credential holding pin within the tenant or returns
// sql.ErrNoRows.
func (r *PinCredentialRepository) FindByPin(ctx context.Context, tenantID, pin string) (*models.PinCredential, error) {
	var cred models.PinCredential
	query := `SELECT ` + pinCredentialColumns + ` FROM pin_credentials WHERE tenant_id = $1 AND actual_pin = $2`
	if err := r.db.GetContext(ctx, &cred, query, tenantID, pin); err != nil {
		return nil, err
	}
	return &cred, nil
}

// PinInUse reports whether another student of the tenant already holds pin.
func (r *PinCredentialRepository) PinInUse(ctx context.Context, tenantID, pin, exceptStudentID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pin_credentials WHERE tenant_id = $1 AND actual_pin = $2 AND student_id <> $3)`
	if err := r.db.GetContext(ctx, &exists, query, tenantID, pin, exceptStudentID); err != nil {
		return false, fmt.Errorf("check pin usage: %w", err)
	}
	return exists, nil
}

// RecordFailure increments the failure counter and locks the credential once the
// threshold is reached, in a single statement so concurrent attempts cannot
// lose an increment.
func (r *PinCredentialRepository) RecordFailure(ctx context.Context, tenantID, studentID string, threshold int, at time.Time) (*models.PinFailure, error) {
	var state models.PinFailure
	query := `UPDATE pin_credentials
SET failed_attempts = failed_attempts + 1,
    is_locked = is_locked OR failed_attempts + 1 >= $3,
    last_failed_at = $4
WHERE tenant_id = $1 AND student_id = $2
RETURNING failed_attempts, is_locked`
	if err := r.db.GetContext(ctx, &state, query, tenantID, studentID, threshold, at.UTC()); err != nil {
		return nil, fmt.Errorf("record pin failure: %w", err)
	}
	return &state, nil
}

// RecordSuccess clears the failure counter and stamps the last use. It only
// touches a credential that is still unlocked and still carries pinHash, and
// reports whether it did; a concurrent lock or rotation makes it a no-op.
func (r *PinCredentialRepository) RecordSuccess(ctx context.Context, tenantID, studentID, pinHash string, at time.Time) (bool, error) {
	query := `UPDATE pin_credentials SET failed_attempts = 0, last_used_at = $4
WHERE tenant_id = $1 AND student_id = $2 AND pin_hash = $3 AND is_locked = FALSE`
	res, err := r.db.ExecContext(ctx, query, tenantID, studentID, pinHash, at.UTC())
	if err != nil {
		return false, fmt.Errorf("record pin success: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record pin success rows affected: %w", err)
	}
	return n > 0, nil
}

// Upsert stores a new PIN for the student and clears any lock.
func (r *PinCredentialRepository) Upsert(ctx context.Context, cred models.PinCredential) error {
	query := `INSERT INTO pin_credentials (tenant_id, student_id, pin_hash, actual_pin, is_locked, failed_attempts, last_changed_at)
VALUES (:tenant_id, :student_id, :pin_hash, :actual_pin, FALSE, 0, :last_changed_at)
ON CONFLICT (tenant_id, student_id) DO UPDATE SET
    pin_hash = EXCLUDED.pin_hash,
    actual_pin = EXCLUDED.actual_pin,
    is_locked = FALSE,
    failed_attempts = 0,
    last_failed_at = NULL,
    last_changed_at = EXCLUDED.last_changed_at`
	if _, err := r.db.NamedExecContext(ctx, query, cred); err != nil {
		return fmt.Errorf("upsert pin credential: %w", err)
	}
	return nil
}

// Unlock clears the lock and counter. It reports whether a credential existed.
func (r *PinCredentialRepository) Unlock(ctx context.Context, tenantID, studentID string) (bool, error) {
	query := `UPDATE pin_credentials SET is_locked = FALSE, failed_attempts = 0 WHERE tenant_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, tenantID, studentID)
	if err != nil {
		return false, fmt.Errorf("unlock pin credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unlock rows affected: %w", err)
	}
	return n > 0, nil
}
