// Package account handles registration and profile creation.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/diarisk/health-api/internal/email"
	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository"
	"github.com/diarisk/health-api/pkg/shield"
)

var ErrEmailInUse = errors.New("email already in use")

const bcryptCost = 12

type Service struct {
	users    repository.UserRepository
	shaper   *shield.Shaper
	emailSvc email.Service
	origin   string
	logger   zerolog.Logger
}

func NewService(users repository.UserRepository, shaper *shield.Shaper, emailSvc email.Service, frontendOrigin string, logger zerolog.Logger) *Service {
	return &Service{
		users:    users,
		shaper:   shaper,
		emailSvc: emailSvc,
		origin:   frontendOrigin,
		logger:   logger,
	}
}

// Register creates a principal from a self-service signup. Clinicians start
// pending an admin decision; end-users are active immediately.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.RegisterResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.buildUser(uuid.New(), req.Email, req.Role, model.UserSensitive{
		Name:      req.Name,
		Gender:    req.Gender,
		Birthdate: req.Birthdate,
		Position:  req.Position,
	})
	if err != nil {
		return nil, err
	}
	user.PasswordHash = string(hash)

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	link := fmt.Sprintf("%s/verify/%s", s.origin, uuid.NewString())
	if err := s.emailSvc.SendVerification(ctx, user.Email, link); err != nil {
		// Mail failure must not lose the registration.
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to send verification email")
	}

	return &model.RegisterResponse{
		ID:               user.ID,
		Status:           user.Status,
		VerificationLink: link,
	}, nil
}

// CreateProfile creates a user record for an identity that already exists at
// the identity provider.
func (s *Service) CreateProfile(ctx context.Context, req *model.CreateProfileRequest) (*model.User, error) {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid profile id: %w", err)
	}

	user, err := s.buildUser(id, req.Email, req.Role, model.UserSensitive{
		Name:      req.Name,
		Gender:    req.Gender,
		Birthdate: req.Birthdate,
		Position:  req.Position,
	})
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return user, nil
}

func (s *Service) buildUser(id uuid.UUID, email, role string, sensitive model.UserSensitive) (*model.User, error) {
	protected, err := s.shaper.Seal(sensitive)
	if err != nil {
		return nil, fmt.Errorf("failed to protect user payload: %w", err)
	}

	status := model.StatusActive
	if role == model.RoleClinician {
		status = model.StatusPending
	}

	return &model.User{
		Base:          model.Base{ID: id},
		Email:         email,
		Role:          role,
		Status:        status,
		SensitiveData: protected,
	}, nil
}
