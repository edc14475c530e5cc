// Package mfa implements second-factor enrollment and verification.
//
// Per principal the factor moves through none -> enrolling -> enabled ->
// none. A new enrollment replaces any pending secret; completing it flips
// mfa_enabled through a conditional update so racing enrollments cannot both
// win.
package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository"
	"github.com/diarisk/health-api/pkg/metrics"
	"github.com/diarisk/health-api/pkg/security"
)

var (
	ErrNotInitiated   = errors.New("mfa enrollment not initiated")
	ErrAlreadyEnabled = errors.New("mfa already enabled")
	ErrInvalidCode    = errors.New("invalid mfa code")
	ErrNotEnabled     = errors.New("mfa not enabled")
)

const (
	secretSize = 20
	codePeriod = 30
	codeSkew   = 1

	// A code stays valid for the current step plus one either side; holding
	// accepted codes slightly longer closes the replay window completely.
	replayTTL = 3 * codePeriod * time.Second
)

type Service struct {
	users      repository.UserRepository
	codec      *security.Codec
	issuer     string
	replay     *cache.Cache
	principals *cache.Cache
	metrics    *metrics.Metrics
}

// NewService builds the MFA service. principals is the authn gate's
// principal cache; entries are dropped whenever the factor state changes so
// the gate never admits a request against a stale mfa_enabled flag.
func NewService(users repository.UserRepository, codec *security.Codec, issuer string, principals *cache.Cache, m *metrics.Metrics) *Service {
	return &Service{
		users:      users,
		codec:      codec,
		issuer:     issuer,
		replay:     cache.New(replayTTL, 10*time.Minute),
		principals: principals,
		metrics:    m,
	}
}

func (s *Service) forget(principalID uuid.UUID) {
	if s.principals != nil {
		s.principals.Delete(principalID.String())
	}
}

// BeginEnrollment generates a fresh secret, stores it as a protected value
// on the user record, and returns the raw secret for one-time display along
// with the otpauth provisioning URI.
func (s *Service) BeginEnrollment(ctx context.Context, principal model.Principal) (*model.MFASetupResponse, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: principal.Email,
		SecretSize:  secretSize,
		Algorithm:   otp.AlgorithmSHA1,
		Digits:      otp.DigitsSix,
		Period:      codePeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	protected, err := s.codec.Encode(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("failed to protect totp secret: %w", err)
	}

	if err := s.users.SetMFASecret(ctx, principal.ID, protected); err != nil {
		return nil, fmt.Errorf("failed to store totp secret: %w", err)
	}
	s.forget(principal.ID)

	return &model.MFASetupResponse{
		Secret: key.Secret(),
		QRURI:  key.URL(),
	}, nil
}

// CompleteEnrollment verifies the first code against the pending secret and
// enables the factor.
func (s *Service) CompleteEnrollment(ctx context.Context, principalID uuid.UUID, code string) error {
	user, err := s.users.Get(ctx, principalID)
	if err != nil {
		return err
	}
	if user.MFAEnabled {
		return ErrAlreadyEnabled
	}
	if user.MFASecret == nil {
		return ErrNotInitiated
	}

	if err := s.check(principalID, *user.MFASecret, code); err != nil {
		return err
	}

	enabled, err := s.users.EnableMFA(ctx, principalID)
	if err != nil {
		return err
	}
	if !enabled {
		// Lost the race: a concurrent attempt finished first.
		return ErrAlreadyEnabled
	}
	s.forget(principalID)
	return nil
}

// Verify checks a code for a principal whose factor is enabled.
func (s *Service) Verify(ctx context.Context, principalID uuid.UUID, code string) error {
	user, err := s.users.Get(ctx, principalID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled || user.MFASecret == nil {
		return ErrNotEnabled
	}

	err = s.check(principalID, *user.MFASecret, code)
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "invalid"
		}
		s.metrics.MFAChallenges.WithLabelValues(outcome).Inc()
	}
	return err
}

// Disable clears the secret and returns the principal to the unenrolled
// state, whatever the current one is.
func (s *Service) Disable(ctx context.Context, principalID uuid.UUID) error {
	if err := s.users.ClearMFA(ctx, principalID); err != nil {
		return err
	}
	s.forget(principalID)
	return nil
}

// Status reports whether the factor is enabled.
func (s *Service) Status(ctx context.Context, principalID uuid.UUID) (bool, error) {
	user, err := s.users.Get(ctx, principalID)
	if err != nil {
		return false, err
	}
	return user.MFAEnabled, nil
}

func (s *Service) check(principalID uuid.UUID, protectedSecret, code string) error {
	var secret string
	if err := s.codec.Decode(protectedSecret, &secret); err != nil {
		return fmt.Errorf("failed to decode totp secret: %w", err)
	}

	replayKey := principalID.String() + ":" + code
	if _, seen := s.replay.Get(replayKey); seen {
		return ErrInvalidCode
	}

	ok, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    codePeriod,
		Skew:      codeSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return ErrInvalidCode
	}

	s.replay.Set(replayKey, struct{}{}, cache.DefaultExpiration)
	return nil
}
