package trends

import (
	"context"
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

type fixture struct {
	svc          *Service
	users        *memory.UserRepository
	measurements *memory.MeasurementRepository
	codec        *security.Codec
}

func newFixture(t *testing.T, maxOwners int) *fixture {
	t.Helper()
	codec, err := security.NewCodec("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	f := &fixture{
		users:        memory.NewUserRepository(),
		measurements: memory.NewMeasurementRepository(),
		codec:        codec,
	}
	shaper := shield.NewShaper(codec, zerolog.Nop(), nil)
	f.svc = NewService(f.measurements, f.users, shaper, maxOwners, zerolog.Nop())
	return f
}

func (f *fixture) addOwner(t *testing.T, sensitive model.UserSensitive) uuid.UUID {
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
	return u.ID
}

func (f *fixture) addMeasurement(t *testing.T, owner uuid.UUID, at time.Time, b model.Biomarkers, p *model.Prediction) {
	t.Helper()
	protected, err := f.codec.Encode(b)
	require.NoError(t, err)
	m := &model.Measurement{
		Base:          model.Base{ID: uuid.New(), CreatedAt: at},
		OwnerID:       owner,
		Age:           35,
		SensitiveData: protected,
	}
	if p != nil {
		sealed, err := f.codec.Encode(p)
		require.NoError(t, err)
		m.Prediction = &sealed
	}
	require.NoError(t, f.measurements.Create(context.Background(), m))
}

func birthdateForAge(age int) string {
	return time.Now().UTC().AddDate(-age, 0, -30).Format("2006-01-02")
}

func window() model.AggregateFilter {
	return model.AggregateFilter{
		From: time.Now().UTC().AddDate(0, 0, -10),
		To:   time.Now().UTC().AddDate(0, 0, 1),
	}
}

func TestTrendsBucketsByDay(t *testing.T) {
	f := newFixture(t, 0)
	owner := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: birthdateForAge(35)})

	d0 := time.Now().UTC().AddDate(0, 0, -2).Truncate(24 * time.Hour).Add(10 * time.Hour)
	d1 := d0.AddDate(0, 0, 1)
	b := model.Biomarkers{Pregnancies: 1, Glucose: 100, BloodPressure: 70, Insulin: 50, BMI: 25}
	for i := 0; i < 5; i++ {
		f.addMeasurement(t, owner, d0.Add(time.Duration(i)*time.Minute), b, &model.Prediction{Probability: 0.3, RiskLevel: "Low risk"})
	}
	for i := 0; i < 3; i++ {
		f.addMeasurement(t, owner, d1.Add(time.Duration(i)*time.Minute), b, &model.Prediction{Probability: 0.8, RiskLevel: "High risk"})
	}

	buckets, err := f.svc.Trends(context.Background(), window())
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, d0.Format("2006-01-02"), buckets[0].Date)
	assert.Equal(t, 5, buckets[0].Count)
	assert.Equal(t, d1.Format("2006-01-02"), buckets[1].Date)
	assert.Equal(t, 3, buckets[1].Count)
	assert.True(t, buckets[0].Date < buckets[1].Date)
}

func TestTrendsMeansAndRounding(t *testing.T) {
	f := newFixture(t, 0)
	owner := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: birthdateForAge(35)})

	at := time.Now().UTC().Add(-24 * time.Hour)
	f.addMeasurement(t, owner, at, model.Biomarkers{Glucose: 100, BloodPressure: 70, BMI: 24.1}, &model.Prediction{Probability: 0.333, RiskLevel: "Low"})
	f.addMeasurement(t, owner, at.Add(time.Minute), model.Biomarkers{Glucose: 105, BloodPressure: 71, BMI: 24.2}, &model.Prediction{Probability: 0.666, RiskLevel: "Low"})

	buckets, err := f.svc.Trends(context.Background(), window())
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.InDelta(t, 102.5, buckets[0].MeanGlucose, 1e-9)
	assert.InDelta(t, 70.5, buckets[0].MeanBloodPressure, 1e-9)
	assert.InDelta(t, 24.2, buckets[0].MeanBMI, 1e-9)
	assert.InDelta(t, 0.5, buckets[0].MeanProbability, 1e-9)
}

func TestTrendsRiskDistributionSumsTo100(t *testing.T) {
	f := newFixture(t, 0)
	owner := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: birthdateForAge(35)})

	at := time.Now().UTC().Add(-24 * time.Hour)
	b := model.Biomarkers{Glucose: 100, BloodPressure: 70, BMI: 25}
	labels := []string{"Low risk", "Medium risk", "HIGH RISK"}
	for i, l := range labels {
		f.addMeasurement(t, owner, at.Add(time.Duration(i)*time.Minute), b, &model.Prediction{Probability: 0.5, RiskLevel: l})
	}

	buckets, err := f.svc.Trends(context.Background(), window())
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	d := buckets[0].RiskDistribution
	assert.Equal(t, 100, d.Low+d.Medium+d.High)
	assert.NotZero(t, d.Low)
	assert.NotZero(t, d.Medium)
	assert.NotZero(t, d.High)
}

func TestTrendsUnrecognizedRiskLabelCountsTowardNoClass(t *testing.T) {
	f := newFixture(t, 0)
	owner := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: birthdateForAge(35)})

	at := time.Now().UTC().Add(-24 * time.Hour)
	b := model.Biomarkers{Glucose: 100, BloodPressure: 70, BMI: 25}
	f.addMeasurement(t, owner, at, b, &model.Prediction{Probability: 0.5, RiskLevel: "uncertain"})
	f.addMeasurement(t, owner, at.Add(time.Minute), b, &model.Prediction{Probability: 0.5, RiskLevel: "Low risk"})

	buckets, err := f.svc.Trends(context.Background(), window())
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 2, buckets[0].Count)
	d := buckets[0].RiskDistribution
	assert.Equal(t, 50, d.Low)
	assert.Zero(t, d.Medium)
	assert.Zero(t, d.High)
}

func TestTrendsAgeAndGenderFilters(t *testing.T) {
	f := newFixture(t, 0)
	young := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: birthdateForAge(25)})
	older := f.addOwner(t, model.UserSensitive{Name: "Radu", Gender: "male", Birthdate: birthdateForAge(55)})

	at := time.Now().UTC().Add(-24 * time.Hour)
	b := model.Biomarkers{Glucose: 100, BloodPressure: 70, BMI: 25}
	f.addMeasurement(t, young, at, b, nil)
	f.addMeasurement(t, older, at.Add(time.Minute), b, nil)

	filter := window()
	filter.AgeBucket = model.AgeBucketUnder30
	buckets, err := f.svc.Trends(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 1, buckets[0].Count)

	filter = window()
	filter.Gender = "male"
	buckets, err = f.svc.Trends(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 1, buckets[0].Count)
}

func TestTrendsDropsUndecodableOwners(t *testing.T) {
	f := newFixture(t, 0)
	good := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: birthdateForAge(35)})

	broken := &model.User{
		Base:          model.Base{ID: uuid.New()},
		Email:         "broken@example.com",
		Role:          model.RoleUser,
		Status:        model.StatusActive,
		SensitiveData: "not-protected",
	}
	require.NoError(t, f.users.Create(context.Background(), broken))

	at := time.Now().UTC().Add(-24 * time.Hour)
	b := model.Biomarkers{Glucose: 100, BloodPressure: 70, BMI: 25}
	f.addMeasurement(t, good, at, b, nil)
	f.addMeasurement(t, broken.ID, at.Add(time.Minute), b, nil)

	buckets, err := f.svc.Trends(context.Background(), window())
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 1, buckets[0].Count)
}

func TestTrendsEmptyWindow(t *testing.T) {
	f := newFixture(t, 0)
	buckets, err := f.svc.Trends(context.Background(), window())
	require.NoError(t, err)
	assert.NotNil(t, buckets)
	assert.Empty(t, buckets)
}

func TestTrendsOwnerBound(t *testing.T) {
	f := newFixture(t, 1)
	a := f.addOwner(t, model.UserSensitive{Name: "A", Gender: "female", Birthdate: birthdateForAge(30)})
	b := f.addOwner(t, model.UserSensitive{Name: "B", Gender: "female", Birthdate: birthdateForAge(30)})

	at := time.Now().UTC().Add(-24 * time.Hour)
	bio := model.Biomarkers{Glucose: 100, BloodPressure: 70, BMI: 25}
	f.addMeasurement(t, a, at, bio, nil)
	f.addMeasurement(t, b, at.Add(time.Minute), bio, nil)

	_, err := f.svc.Trends(context.Background(), window())
	assert.ErrorIs(t, err, ErrWindowTooLarge)
}

func TestRiskTrendsProjection(t *testing.T) {
	f := newFixture(t, 0)
	owner := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: birthdateForAge(35)})

	at := time.Now().UTC().Add(-24 * time.Hour)
	b := model.Biomarkers{Glucose: 100, BloodPressure: 70, BMI: 25}
	f.addMeasurement(t, owner, at, b, &model.Prediction{Probability: 0.8, RiskLevel: "High risk"})

	buckets, err := f.svc.RiskTrends(context.Background(), window())
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 1, buckets[0].Count)
	assert.Equal(t, 100, buckets[0].RiskDistribution.High)
}

func TestTrendsSkipsRecordsWithUnreadablePayload(t *testing.T) {
	f := newFixture(t, 0)
	owner := f.addOwner(t, model.UserSensitive{Name: "Ana", Gender: "female", Birthdate: birthdateForAge(35)})

	at := time.Now().UTC().Add(-24 * time.Hour)
	f.addMeasurement(t, owner, at, model.Biomarkers{Glucose: 100, BloodPressure: 70, BMI: 25}, nil)
	require.NoError(t, f.measurements.Create(context.Background(), &model.Measurement{
		Base:          model.Base{ID: uuid.New(), CreatedAt: at.Add(time.Minute)},
		OwnerID:       owner,
		Age:           35,
		SensitiveData: "corrupted",
	}))

	buckets, err := f.svc.Trends(context.Background(), window())
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 1, buckets[0].Count)
}
