package measurement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository/memory"
	"github.com/diarisk/health-api/pkg/security"
	"github.com/diarisk/health-api/pkg/shield"
)

type stubScorer struct {
	prediction *model.Prediction
	err        error
	lastAge    int
	lastInput  model.Biomarkers
}

func (s *stubScorer) Score(_ context.Context, b model.Biomarkers, age int) (*model.Prediction, error) {
	s.lastInput = b
	s.lastAge = age
	if s.err != nil {
		return nil, s.err
	}
	return s.prediction, nil
}

type fixture struct {
	svc          *Service
	users        *memory.UserRepository
	measurements *memory.MeasurementRepository
	scorer       *stubScorer
	codec        *security.Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := security.NewCodec("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	f := &fixture{
		users:        memory.NewUserRepository(),
		measurements: memory.NewMeasurementRepository(),
		scorer:       &stubScorer{prediction: &model.Prediction{Probability: 0.82, RiskLevel: "High risk"}},
		codec:        codec,
	}
	shaper := shield.NewShaper(codec, zerolog.Nop(), nil)
	f.svc = NewService(f.measurements, f.users, shaper, f.scorer, zerolog.Nop())
	return f
}

func (f *fixture) addOwner(t *testing.T, sensitive model.UserSensitive) *model.User {
	t.Helper()
	protected, err := f.codec.Encode(sensitive)
	require.NoError(t, err)
	u := &model.User{
		Base:          model.Base{ID: uuid.New()},
		Email:         uuid.NewString() + "@example.com",
		Role:          model.RoleUser,
		Status:        model.StatusActive,
		SensitiveData: protected,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func TestSubmitStoresProtectedRecordWithPrediction(t *testing.T) {
	f := newFixture(t)
	owner := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: "1990-04-12"})

	resp, err := f.svc.Submit(context.Background(), owner, &model.SubmitMeasurementRequest{
		Pregnancies:   2,
		Glucose:       148,
		BloodPressure: 72,
		Insulin:       80,
		BMI:           33.6,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Prediction)
	assert.Empty(t, resp.Error)
	assert.InDelta(t, 0.82, resp.Prediction.Probability, 1e-9)

	stored, err := f.measurements.ListByOwner(context.Background(), owner.ID, model.DateRange{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotContains(t, stored[0].SensitiveData, "glucose")
	require.NotNil(t, stored[0].Prediction)

	var biomarkers model.Biomarkers
	require.NoError(t, f.codec.Decode(stored[0].SensitiveData, &biomarkers))
	assert.InDelta(t, 148, biomarkers.Glucose, 1e-9)

	var prediction model.Prediction
	require.NoError(t, f.codec.Decode(*stored[0].Prediction, &prediction))
	assert.Equal(t, "High risk", prediction.RiskLevel)
}

func TestSubmitDerivesAgeFromBirthdate(t *testing.T) {
	f := newFixture(t)
	birth := time.Now().UTC().AddDate(-42, 0, -1).Format("2006-01-02")
	owner := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: birth})

	_, err := f.svc.Submit(context.Background(), owner, &model.SubmitMeasurementRequest{
		Glucose: 100, BloodPressure: 70, BMI: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, f.scorer.lastAge)
}

func TestSubmitDefaultsAgeWhenPayloadUnreadable(t *testing.T) {
	f := newFixture(t)
	owner := f.addOwner(t, model.UserSensitive{Name: "Ana"})
	owner.SensitiveData = "garbage"

	_, err := f.svc.Submit(context.Background(), owner, &model.SubmitMeasurementRequest{
		Glucose: 100, BloodPressure: 70, BMI: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultAge, f.scorer.lastAge)
}

func TestSubmitZeroesPregnanciesForMaleOwners(t *testing.T) {
	f := newFixture(t)
	owner := f.addOwner(t, model.UserSensitive{Name: "Radu", Gender: "Male", Birthdate: "1980-01-01"})

	_, err := f.svc.Submit(context.Background(), owner, &model.SubmitMeasurementRequest{
		Pregnancies: 3, Glucose: 100, BloodPressure: 70, BMI: 25,
	})
	require.NoError(t, err)
	assert.Zero(t, f.scorer.lastInput.Pregnancies)
}

func TestSubmitSurvivesScorerOutage(t *testing.T) {
	f := newFixture(t)
	owner := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: "1990-04-12"})
	f.scorer.err = errors.New("connection refused")

	resp, err := f.svc.Submit(context.Background(), owner, &model.SubmitMeasurementRequest{
		Glucose: 100, BloodPressure: 70, BMI: 25,
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Prediction)
	assert.Equal(t, PredictionUnavailable, resp.Error)

	stored, err := f.measurements.ListByOwner(context.Background(), owner.ID, model.DateRange{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0].Prediction)
}

func TestHistoryUnwrapsRecords(t *testing.T) {
	f := newFixture(t)
	owner := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: "1990-04-12"})

	_, err := f.svc.Submit(context.Background(), owner, &model.SubmitMeasurementRequest{
		Glucose: 120, BloodPressure: 80, BMI: 28,
	})
	require.NoError(t, err)

	views, err := f.svc.History(context.Background(), owner.ID, model.DateRange{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].Glucose)
	assert.InDelta(t, 120, *views[0].Glucose, 1e-9)
	require.NotNil(t, views[0].RiskLevel)
}

func TestPatientHistoryUnknownPatient(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PatientHistory(context.Background(), uuid.New(), model.DateRange{})
	assert.ErrorIs(t, err, ErrPatientNotFound)
}
