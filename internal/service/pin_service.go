package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

const maxPinDrawAttempts = 20

type pinCredentialRepository interface {
	FindByStudent(ctx context.Context, tenantID, studentID string) (*models.PinCredential, error)
	FindByPin(ctx context.Context, tenantID, pin string) (*models.PinCredential, error)
	PinInUse(ctx context.Context, tenantID, pin, exceptStudentID string) (bool, error)
	RecordFailure(ctx context.Context, tenantID, studentID string, threshold int, at time.Time) (*models.PinFailure, error)
	RecordSuccess(ctx context.Context, tenantID, studentID, pinHash string, at time.Time) (bool, error)
	Upsert(ctx context.Context, cred models.PinCredential) error
	Unlock(ctx context.Context, tenantID, studentID string) (bool, error)
}

type studentChecker interface {
	Exists(ctx context.Context, tenantID, id string) (bool, error)
}

// PinConfig controls PIN generation and lockout.
type PinConfig struct {
	MaxFailedAttempts int
	HashCost          int
	Length            int
}

// PinService issues, verifies and unlocks kiosk PIN credentials.
type PinService struct {
	repo      pinCredentialRepository
	students  studentChecker
	validator *validator.Validate
	logger    *zap.Logger
	config    PinConfig
	now       func() time.Time
}

// NewPinService constructs the PIN service.
func NewPinService(repo pinCredentialRepository, students studentChecker, validate *validator.Validate, logger *zap.Logger, cfg PinConfig) *PinService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 5
	}
	if cfg.HashCost < bcrypt.MinCost || cfg.HashCost > bcrypt.MaxCost {
		cfg.HashCost = bcrypt.DefaultCost
	}
	if cfg.Length < 4 || cfg.Length > 8 {
		cfg.Length = 4
	}
	return &PinService{repo: repo, students: students, validator: validate, logger: logger, config: cfg, now: time.Now}
}

// Issue sets a new PIN for the student, drawing a random one unless the request
// names it, and clears any lock. The plaintext is returned once.
func (s *PinService) Issue(ctx context.Context, tenantID, studentID string, req dto.IssuePinRequest) (*dto.PinResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pin payload")
	}
	exists, err := s.students.Exists(ctx, tenantID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	pin := req.Pin
	if pin != "" {
		inUse, err := s.repo.PinInUse(ctx, tenantID, pin, studentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pin")
		}
		if inUse {
			return nil, appErrors.Clone(appErrors.ErrConflict, "pin already in use")
		}
	} else {
		pin, err = s.drawUniquePin(ctx, tenantID, studentID)
		if err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.config.HashCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash pin")
	}

	changedAt := s.now().UTC()
	cred := models.PinCredential{
		TenantID:      tenantID,
		StudentID:     studentID,
		PinHash:       string(hash),
		ActualPin:     pin,
		LastChangedAt: changedAt,
	}
	if err := s.repo.Upsert(ctx, cred); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "pin already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store pin")
	}

	s.logger.Info("pin issued", zap.String("tenant_id", tenantID), zap.String("student_id", studentID))
	return &dto.PinResponse{StudentID: studentID, Pin: pin, ChangedAt: changedAt}, nil
}

// Unlock clears a locked credential.
func (s *PinService) Unlock(ctx context.Context, tenantID, studentID string) error {
	found, err := s.repo.Unlock(ctx, tenantID, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unlock pin")
	}
	if !found {
		return appErrors.Clone(appErrors.ErrNotFound, "pin credential not found")
	}
	s.logger.Info("pin unlocked", zap.String("tenant_id", tenantID), zap.String("student_id", studentID))
	return nil
}

// Lookup resolves the credential a PIN identifies. With studentID the student's
// own credential is loaded; otherwise the tenant-wide PIN index is used. Every
// miss is reported as ErrPinRejected.
func (s *PinService) Lookup(ctx context.Context, tenantID, studentID, pin string) (*models.PinCredential, error) {
	var (
		cred *models.PinCredential
		err  error
	)
	if studentID != "" {
		cred, err = s.repo.FindByStudent(ctx, tenantID, studentID)
	} else {
		cred, err = s.repo.FindByPin(ctx, tenantID, pin)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.ErrPinRejected
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pin credential")
	}
	return cred, nil
}

// Verify checks pin against the credential. A locked credential is rejected
// without counting; a mismatch bumps the counter and may lock it. A match only
// succeeds while the stored credential is still unlocked.
func (s *PinService) Verify(ctx context.Context, cred *models.PinCredential, pin string) error {
	if cred.IsLocked {
		s.logger.Warn("pin attempt on locked credential", zap.String("tenant_id", cred.TenantID), zap.String("student_id", cred.StudentID))
		return appErrors.ErrPinRejected
	}

	now := s.now()
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PinHash), []byte(pin)); err != nil {
		state, recErr := s.repo.RecordFailure(ctx, cred.TenantID, cred.StudentID, s.config.MaxFailedAttempts, now)
		if recErr != nil {
			s.logger.Error("failed to record pin failure", zap.String("student_id", cred.StudentID), zap.Error(recErr))
			return appErrors.ErrPinRejected
		}
		if state.IsLocked {
			s.logger.Warn("pin credential locked",
				zap.String("tenant_id", cred.TenantID),
				zap.String("student_id", cred.StudentID),
				zap.Int("failed_attempts", state.FailedAttempts),
			)
		}
		return appErrors.ErrPinRejected
	}

	// The credential may have been locked or rotated since it was loaded.
	current, err := s.repo.RecordSuccess(ctx, cred.TenantID, cred.StudentID, cred.PinHash, now)
	if err != nil {
		s.logger.Error("failed to record pin success", zap.String("student_id", cred.StudentID), zap.Error(err))
		return appErrors.ErrPinRejected
	}
	if !current {
		s.logger.Warn("pin matched a stale credential", zap.String("tenant_id", cred.TenantID), zap.String("student_id", cred.StudentID))
		return appErrors.ErrPinRejected
	}
	return nil
}

func (s *PinService) drawUniquePin(ctx context.Context, tenantID, studentID string) (string, error) {
	for i := 0; i < maxPinDrawAttempts; i++ {
		pin, err := randomPin(s.config.Length)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate pin")
		}
		inUse, err := s.repo.PinInUse(ctx, tenantID, pin, studentID)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pin")
		}
		if !inUse {
			return pin, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrConflict, "could not find a free pin; increase the pin length")
}

func randomPin(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
