package mfa

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository/memory"
	"github.com/diarisk/health-api/pkg/security"
)

func newTestService(t *testing.T) (*Service, *memory.UserRepository, model.Principal) {
	t.Helper()

	codec, err := security.NewCodec("test-secret")
	require.NoError(t, err)

	users := memory.NewUserRepository()
	principal := model.Principal{
		ID:    uuid.New(),
		Email: "jane@example.com",
		Role:  model.RoleUser,
	}
	require.NoError(t, users.Create(context.Background(), &model.User{
		Base:   model.Base{ID: principal.ID},
		Email:  principal.Email,
		Role:   principal.Role,
		Status: model.StatusActive,
	}))

	return NewService(users, codec, "diarisk", nil, nil), users, principal
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    codePeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestBeginEnrollment(t *testing.T) {
	svc, users, principal := newTestService(t)
	ctx := context.Background()

	setup, err := svc.BeginEnrollment(ctx, principal)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.QRURI, "otpauth://totp/"))
	assert.Contains(t, setup.QRURI, "issuer=diarisk")
	assert.Contains(t, setup.QRURI, "secret="+setup.Secret)

	// The stored secret is protected, never the raw base32.
	user, err := users.Get(ctx, principal.ID)
	require.NoError(t, err)
	require.NotNil(t, user.MFASecret)
	assert.NotContains(t, *user.MFASecret, setup.Secret)
	assert.False(t, user.MFAEnabled)
}

func TestEnrollmentStateMachine(t *testing.T) {
	svc, _, principal := newTestService(t)
	ctx := context.Background()

	// Completing before starting is rejected.
	err := svc.CompleteEnrollment(ctx, principal.ID, "123456")
	assert.ErrorIs(t, err, ErrNotInitiated)

	setup, err := svc.BeginEnrollment(ctx, principal)
	require.NoError(t, err)

	// Wrong code keeps the enrollment pending.
	err = svc.CompleteEnrollment(ctx, principal.ID, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	require.NoError(t, svc.CompleteEnrollment(ctx, principal.ID, currentCode(t, setup.Secret)))

	enabled, err := svc.Status(ctx, principal.ID)
	require.NoError(t, err)
	assert.True(t, enabled)

	// Completing twice is rejected.
	err = svc.CompleteEnrollment(ctx, principal.ID, currentCode(t, setup.Secret))
	assert.ErrorIs(t, err, ErrAlreadyEnabled)

	// Disable returns to the unenrolled state.
	require.NoError(t, svc.Disable(ctx, principal.ID))
	enabled, err = svc.Status(ctx, principal.ID)
	require.NoError(t, err)
	assert.False(t, enabled)
	err = svc.Verify(ctx, principal.ID, currentCode(t, setup.Secret))
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestVerifyWindow(t *testing.T) {
	svc, _, principal := newTestService(t)
	ctx := context.Background()

	setup, err := svc.BeginEnrollment(ctx, principal)
	require.NoError(t, err)
	require.NoError(t, svc.CompleteEnrollment(ctx, principal.ID, currentCode(t, setup.Secret)))

	// Codes from the adjacent steps are accepted.
	for _, offset := range []time.Duration{-codePeriod * time.Second, codePeriod * time.Second} {
		code, err := totp.GenerateCodeCustom(setup.Secret, time.Now().Add(offset), totp.ValidateOpts{
			Period:    codePeriod,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		require.NoError(t, err)
		assert.NoError(t, svc.Verify(ctx, principal.ID, code), "offset %v", offset)
	}

	// A code from two steps away is rejected.
	farCode, err := totp.GenerateCodeCustom(setup.Secret, time.Now().Add(3*codePeriod*time.Second), totp.ValidateOpts{
		Period:    codePeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Verify(ctx, principal.ID, farCode), ErrInvalidCode)
}

func TestVerifyRejectsReplay(t *testing.T) {
	svc, _, principal := newTestService(t)
	ctx := context.Background()

	setup, err := svc.BeginEnrollment(ctx, principal)
	require.NoError(t, err)
	first := currentCode(t, setup.Secret)
	require.NoError(t, svc.CompleteEnrollment(ctx, principal.ID, first))

	// The enrollment consumed the code; replaying it is rejected.
	assert.ErrorIs(t, svc.Verify(ctx, principal.ID, first), ErrInvalidCode)
}

func TestBeginEnrollmentReplacesPendingSecret(t *testing.T) {
	svc, _, principal := newTestService(t)
	ctx := context.Background()

	first, err := svc.BeginEnrollment(ctx, principal)
	require.NoError(t, err)
	second, err := svc.BeginEnrollment(ctx, principal)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	// Only the replacement secret completes the enrollment.
	err = svc.CompleteEnrollment(ctx, principal.ID, currentCode(t, first.Secret))
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.NoError(t, svc.CompleteEnrollment(ctx, principal.ID, currentCode(t, second.Secret)))
}

func TestVerifyUnknownPrincipal(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Verify(context.Background(), uuid.New(), "123456")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCode)
}

func TestConcurrentVerify(t *testing.T) {
	svc, _, principal := newTestService(t)
	ctx := context.Background()

	setup, err := svc.BeginEnrollment(ctx, principal)
	require.NoError(t, err)
	require.NoError(t, svc.CompleteEnrollment(ctx, principal.ID, currentCode(t, setup.Secret)))

	// Distinct wrong codes may be checked concurrently.
	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			done <- svc.Verify(ctx, principal.ID, fmt.Sprintf("%06d", i))
		}(i)
	}
	for i := 0; i < 8; i++ {
		assert.ErrorIs(t, <-done, ErrInvalidCode)
	}
}
