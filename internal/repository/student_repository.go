package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studyhall-attendance/internal/models"
)

// StudentRepository reads student rows within a tenant.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student; sql.ErrNoRows is returned unwrapped when missing.
func (r *StudentRepository) FindByID(ctx context.Context, tenantID, id string) (*models.Student, error) {
	var student models.Student
	query := `SELECT id, tenant_id, full_name, created_at FROM students WHERE tenant_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &student, query, tenantID, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Exists reports whether the student belongs to the tenant.
func (r *StudentRepository) Exists(ctx context.Context, tenantID, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM students WHERE tenant_id = $1 AND id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, tenantID, id); err != nil {
		return false, fmt.Errorf("check student: %w", err)
	}
	return exists, nil
}
