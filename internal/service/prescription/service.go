// Package prescription implements clinician-authored prescriptions.
package prescription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository"
	"github.com/diarisk/health-api/pkg/shield"
)

var ErrSubjectNotFound = errors.New("subject not found")

type Service struct {
	prescriptions repository.PrescriptionRepository
	users         repository.UserRepository
	shaper        *shield.Shaper
	logger        zerolog.Logger
}

func NewService(
	prescriptions repository.PrescriptionRepository,
	users repository.UserRepository,
	shaper *shield.Shaper,
	logger zerolog.Logger,
) *Service {
	return &Service{
		prescriptions: prescriptions,
		users:         users,
		shaper:        shaper,
		logger:        logger,
	}
}

// Create issues a prescription from the author to the subject. The author's
// display name is resolved from their protected demographics so the subject
// sees who prescribed without another lookup.
func (s *Service) Create(ctx context.Context, author *model.User, subjectID uuid.UUID, req *model.CreatePrescriptionRequest) (*model.PrescriptionView, error) {
	if _, err := s.users.Get(ctx, subjectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to load subject: %w", err)
	}

	displayName := author.Email
	if sensitive, err := s.shaper.UserSensitive(author); err == nil && sensitive.Name != "" {
		displayName = sensitive.Name
	}

	protected, err := s.shaper.Seal(model.PrescriptionDetails{
		Medicines:  req.Medicines,
		Suggestion: req.Suggestion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to protect prescription: %w", err)
	}

	p := &model.Prescription{
		Base:              model.Base{ID: uuid.New(), CreatedAt: time.Now().UTC()},
		AuthorID:          author.ID,
		AuthorDisplayName: displayName,
		SubjectID:         subjectID,
		SensitiveData:     protected,
	}
	if err := s.prescriptions.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to store prescription: %w", err)
	}

	view, err := s.shaper.OpenPrescription(p)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen prescription: %w", err)
	}
	return view, nil
}

// ListForSubject returns prescriptions issued to the subject, oldest first.
// Records that no longer decode are dropped.
func (s *Service) ListForSubject(ctx context.Context, subjectID uuid.UUID, r model.DateRange) ([]*model.PrescriptionView, error) {
	ps, err := s.prescriptions.ListBySubject(ctx, subjectID, r)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return s.shaper.OpenPrescriptions(ps), nil
}

// ListForPatient is the clinician view of a patient's prescriptions. The
// patient record must exist.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, r model.DateRange) ([]*model.PrescriptionView, error) {
	if _, err := s.users.Get(ctx, patientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to load patient: %w", err)
	}
	return s.ListForSubject(ctx, patientID, r)
}

// ListByAuthor returns prescriptions the clinician has issued.
func (s *Service) ListByAuthor(ctx context.Context, authorID uuid.UUID, r model.DateRange) ([]*model.PrescriptionView, error) {
	ps, err := s.prescriptions.ListByAuthor(ctx, authorID, r)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return s.shaper.OpenPrescriptions(ps), nil
}
