// Package measurement implements biomarker submission and history reads.
package measurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository"
	"github.com/diarisk/health-api/internal/scorer"
	"github.com/diarisk/health-api/pkg/shield"
)

// PredictionUnavailable is returned in the response body when the scoring
// service could not produce a result; the measurement is stored regardless.
const PredictionUnavailable = "prediction_unavailable"

var ErrPatientNotFound = errors.New("patient not found")

// Scorer produces a risk prediction for a biomarker tuple.
type Scorer interface {
	Score(ctx context.Context, b model.Biomarkers, age int) (*model.Prediction, error)
}

var _ Scorer = (*scorer.Client)(nil)

type Service struct {
	measurements repository.MeasurementRepository
	users        repository.UserRepository
	shaper       *shield.Shaper
	scorer       Scorer
	logger       zerolog.Logger
}

func NewService(
	measurements repository.MeasurementRepository,
	users repository.UserRepository,
	shaper *shield.Shaper,
	sc Scorer,
	logger zerolog.Logger,
) *Service {
	return &Service{
		measurements: measurements,
		users:        users,
		shaper:       shaper,
		scorer:       sc,
		logger:       logger,
	}
}

// Submit persists a biomarker submission for the owner and asks the scoring
// service for a prediction. A scorer failure degrades the response but never
// loses the record.
func (s *Service) Submit(ctx context.Context, owner *model.User, req *model.SubmitMeasurementRequest) (*model.SubmitMeasurementResponse, error) {
	biomarkers := model.Biomarkers{
		Pregnancies:   req.Pregnancies,
		Glucose:       req.Glucose,
		BloodPressure: req.BloodPressure,
		Insulin:       req.Insulin,
		BMI:           req.BMI,
	}

	age := model.DefaultAge
	gender := ""
	if sensitive, err := s.shaper.UserSensitive(owner); err != nil {
		s.logger.Warn().Err(err).Str("owner_id", owner.ID.String()).
			Msg("could not decode owner demographics, using default age")
	} else {
		gender = sensitive.Gender
		if derived, err := shield.DeriveAge(sensitive.Birthdate, time.Now().UTC()); err != nil {
			s.logger.Warn().Err(err).Str("owner_id", owner.ID.String()).
				Msg("could not derive age from birthdate, using default")
		} else {
			age = derived
		}
	}

	shield.NormalizeBiomarkers(&biomarkers, gender)

	protected, err := s.shaper.Seal(biomarkers)
	if err != nil {
		return nil, fmt.Errorf("failed to protect measurement: %w", err)
	}

	m := &model.Measurement{
		Base:          model.Base{ID: uuid.New(), CreatedAt: time.Now().UTC()},
		OwnerID:       owner.ID,
		Age:           age,
		SensitiveData: protected,
	}
	if err := s.measurements.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to store measurement: %w", err)
	}

	prediction, err := s.scorer.Score(ctx, biomarkers, age)
	if err != nil {
		s.logger.Warn().Err(err).Str("measurement_id", m.ID.String()).Msg("scoring failed")
		return &model.SubmitMeasurementResponse{ID: m.ID, Error: PredictionUnavailable}, nil
	}

	sealed, err := s.shaper.Seal(prediction)
	if err != nil {
		return nil, fmt.Errorf("failed to protect prediction: %w", err)
	}
	if err := s.measurements.AttachPrediction(ctx, m.ID, sealed); err != nil {
		return nil, fmt.Errorf("failed to store prediction: %w", err)
	}

	return &model.SubmitMeasurementResponse{ID: m.ID, Prediction: prediction}, nil
}

// History returns the owner's measurements in the window, oldest first.
// Degraded records stay in the list with their protected fields absent.
func (s *Service) History(ctx context.Context, ownerID uuid.UUID, r model.DateRange) ([]*model.MeasurementView, error) {
	ms, err := s.measurements.ListByOwner(ctx, ownerID, r)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	return s.shaper.OpenMeasurements(ms), nil
}

// PatientHistory is the clinician view of a patient's measurements. The
// patient record must exist.
func (s *Service) PatientHistory(ctx context.Context, patientID uuid.UUID, r model.DateRange) ([]*model.MeasurementView, error) {
	if _, err := s.users.Get(ctx, patientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("failed to load patient: %w", err)
	}
	return s.History(ctx, patientID, r)
}
