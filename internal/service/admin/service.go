// Package admin implements account review and account lifecycle decisions.
package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository"
	"github.com/diarisk/health-api/internal/service/audit"
	"github.com/diarisk/health-api/pkg/shield"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrSelfAction   = errors.New("admins cannot act on their own account")
)

type Service struct {
	users         repository.UserRepository
	measurements  repository.MeasurementRepository
	prescriptions repository.PrescriptionRepository
	shaper        *shield.Shaper
	audit         *audit.Service
	logger        zerolog.Logger
}

func NewService(
	users repository.UserRepository,
	measurements repository.MeasurementRepository,
	prescriptions repository.PrescriptionRepository,
	shaper *shield.Shaper,
	auditSvc *audit.Service,
	logger zerolog.Logger,
) *Service {
	return &Service{
		users:         users,
		measurements:  measurements,
		prescriptions: prescriptions,
		shaper:        shaper,
		audit:         auditSvc,
		logger:        logger,
	}
}

// ListUsers returns every account with protected demographics unwrapped.
// Records whose payload no longer decodes are kept with the demographic
// fields absent.
func (s *Service) ListUsers(ctx context.Context) ([]*model.UserView, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	views := make([]*model.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, s.shaper.OpenUser(u))
	}
	return views, nil
}

// UpdateStatus applies an admin decision to an account and records it in the
// action history.
func (s *Service) UpdateStatus(ctx context.Context, adminID, targetID uuid.UUID, req *model.UpdateStatusRequest) (*model.UserView, error) {
	if adminID == targetID {
		return nil, ErrSelfAction
	}
	target, err := s.users.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.users.UpdateStatus(ctx, targetID, req.Status); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	target.Status = req.Status

	if err := s.audit.Log(ctx, adminID, targetID, actionFor(req.Status), req.Reason); err != nil {
		s.logger.Error().Err(err).Str("target_id", targetID.String()).Msg("failed to log status change")
	}
	return s.shaper.OpenUser(target), nil
}

// DeleteUser removes an account and everything it owns: measurements it
// submitted and prescriptions issued to it.
func (s *Service) DeleteUser(ctx context.Context, adminID, targetID uuid.UUID) error {
	if adminID == targetID {
		return ErrSelfAction
	}
	if _, err := s.users.Get(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.measurements.DeleteByOwner(ctx, targetID); err != nil {
		return fmt.Errorf("failed to delete measurements: %w", err)
	}
	if err := s.prescriptions.DeleteBySubject(ctx, targetID); err != nil {
		return fmt.Errorf("failed to delete prescriptions: %w", err)
	}
	if err := s.users.Delete(ctx, targetID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if err := s.audit.Log(ctx, adminID, targetID, model.ActionDeleteAccount, ""); err != nil {
		s.logger.Error().Err(err).Str("target_id", targetID.String()).Msg("failed to log account deletion")
	}
	return nil
}

// History returns recent admin actions.
func (s *Service) History(ctx context.Context, limit int) ([]*model.ActionHistoryEntry, error) {
	return s.audit.List(ctx, limit)
}

func actionFor(status string) string {
	switch status {
	case model.StatusActive:
		return model.ActionApproveAccount
	case model.StatusRejected:
		return model.ActionRejectAccount
	case model.StatusDisabled:
		return model.ActionDisableAccount
	default:
		return "set_status_" + status
	}
}
