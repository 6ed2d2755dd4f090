package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

func newPinFixture(creds ...models.PinCredential) (*PinService, *memPinRepo) {
	repo := newMemPinRepo(creds...)
	students := studentStub{students: map[string]models.Student{
		"s1": {ID: "s1", TenantID: "t1"},
		"s2": {ID: "s2", TenantID: "t1"},
	}}
	return NewPinService(repo, students, nil, nil, PinConfig{MaxFailedAttempts: 3, HashCost: bcrypt.MinCost, Length: 6}), repo
}

func TestPinServiceIssueRandomPin(t *testing.T) {
	svc, repo := newPinFixture()

	resp, err := svc.Issue(context.Background(), "t1", "s1", dto.IssuePinRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Pin, 6)

	stored := repo.state("t1", "s1")
	assert.Equal(t, resp.Pin, stored.ActualPin)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PinHash), []byte(resp.Pin)))
}

func TestPinServiceIssueRejectsTakenPin(t *testing.T) {
	svc, _ := newPinFixture(models.PinCredential{TenantID: "t1", StudentID: "s2", ActualPin: "4321"})

	_, err := svc.Issue(context.Background(), "t1", "s1", dto.IssuePinRequest{Pin: "4321"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Issue(context.Background(), "t1", "ghost", dto.IssuePinRequest{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Issue(context.Background(), "t1", "s1", dto.IssuePinRequest{Pin: "12ab"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPinServiceVerifyCountsAndLocks(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	require.NoError(t, err)
	svc, repo := newPinFixture(models.PinCredential{TenantID: "t1", StudentID: "s1", PinHash: string(hash), ActualPin: "1234"})
	ctx := context.Background()

	cred, err := svc.Lookup(ctx, "t1", "s1", "0000")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Verify(ctx, cred, "0000"), appErrors.ErrPinRejected)
	assert.Equal(t, 1, repo.state("t1", "s1").FailedAttempts)

	cred, _ = svc.Lookup(ctx, "t1", "s1", "1234")
	require.NoError(t, svc.Verify(ctx, cred, "1234"))
	assert.Zero(t, repo.state("t1", "s1").FailedAttempts)
	assert.NotNil(t, repo.state("t1", "s1").LastUsedAt)

	for i := 0; i < 3; i++ {
		cred, _ = svc.Lookup(ctx, "t1", "s1", "0000")
		_ = svc.Verify(ctx, cred, "0000")
	}
	assert.True(t, repo.state("t1", "s1").IsLocked)

	cred, _ = svc.Lookup(ctx, "t1", "s1", "1234")
	assert.ErrorIs(t, svc.Verify(ctx, cred, "1234"), appErrors.ErrPinRejected)
	assert.Equal(t, 3, repo.state("t1", "s1").FailedAttempts)

	require.NoError(t, svc.Unlock(ctx, "t1", "s1"))
	cred, _ = svc.Lookup(ctx, "t1", "s1", "1234")
	assert.NoError(t, svc.Verify(ctx, cred, "1234"))
}

func TestPinServiceVerifyRejectsCredentialLockedSinceLookup(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	require.NoError(t, err)
	svc, repo := newPinFixture(models.PinCredential{TenantID: "t1", StudentID: "s1", PinHash: string(hash), ActualPin: "1234"})
	ctx := context.Background()

	loaded, err := svc.Lookup(ctx, "t1", "s1", "1234")
	require.NoError(t, err)
	require.False(t, loaded.IsLocked)

	for i := 0; i < 3; i++ {
		cred, _ := svc.Lookup(ctx, "t1", "s1", "0000")
		_ = svc.Verify(ctx, cred, "0000")
	}
	require.True(t, repo.state("t1", "s1").IsLocked)

	assert.ErrorIs(t, svc.Verify(ctx, loaded, "1234"), appErrors.ErrPinRejected)
	state := repo.state("t1", "s1")
	assert.True(t, state.IsLocked)
	assert.Equal(t, 3, state.FailedAttempts)
	assert.Nil(t, state.LastUsedAt)
}

func TestPinServiceLookupMisses(t *testing.T) {
	svc, _ := newPinFixture()
	_, err := svc.Lookup(context.Background(), "t1", "", "1234")
	assert.ErrorIs(t, err, appErrors.ErrPinRejected)
	assert.ErrorIs(t, svc.Unlock(context.Background(), "t1", "s1"), appErrors.ErrNotFound)
}
