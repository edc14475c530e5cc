package shield

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/pkg/metrics"
	"github.com/diarisk/health-api/pkg/security"
)

func newTestShaper(t *testing.T) *Shaper {
	t.Helper()
	codec, err := security.NewCodec("test-secret")
	require.NoError(t, err)
	return NewShaper(codec, zerolog.Nop(), nil)
}

func sealedMeasurement(t *testing.T, s *Shaper, b model.Biomarkers) *model.Measurement {
	t.Helper()
	protected, err := s.Seal(b)
	require.NoError(t, err)
	return &model.Measurement{
		Base:          model.Base{ID: uuid.New(), CreatedAt: time.Now()},
		OwnerID:       uuid.New(),
		Age:           41,
		SensitiveData: protected,
	}
}

func TestOpenMeasurementUnwrapsProtectedFields(t *testing.T) {
	s := newTestShaper(t)

	m := sealedMeasurement(t, s, model.Biomarkers{
		Pregnancies:   2,
		Glucose:       110,
		BloodPressure: 70,
		Insulin:       80,
		BMI:           24,
	})
	prediction, err := s.Seal(model.Prediction{Probability: 0.62, RiskLevel: "Medium Risk"})
	require.NoError(t, err)
	m.Prediction = &prediction

	view, ok := s.OpenMeasurement(m)
	require.True(t, ok)
	require.NotNil(t, view.Glucose)
	assert.Equal(t, 110.0, *view.Glucose)
	assert.Equal(t, 0.62, *view.Probability)
	assert.Equal(t, "Medium Risk", *view.RiskLevel)

	// The wrapper keys must never surface in the serialized view.
	payload, err := json.Marshal(view)
	require.NoError(t, err)
	var asMap map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &asMap))
	assert.NotContains(t, asMap, "sensitiveData")
	assert.NotContains(t, asMap, "prediction")
	assert.Contains(t, asMap, "glucose")
}

func TestOpenMeasurementsFaultIsolation(t *testing.T) {
	s := newTestShaper(t)

	records := make([]*model.Measurement, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, sealedMeasurement(t, s, model.Biomarkers{Glucose: 100}))
	}
	records[3].SensitiveData = "deadbeefdeadbeefdeadbeefdeadbeef:deadbeefdeadbeefdeadbeefdeadbeef"

	views := s.OpenMeasurements(records)
	require.Len(t, views, 10, "a corrupt record must not abort the batch")

	degraded := views[3]
	assert.Equal(t, model.SentinelAge, degraded.Age)
	assert.Nil(t, degraded.Glucose)
	assert.Equal(t, records[3].ID, degraded.ID)

	for i, view := range views {
		if i == 3 {
			continue
		}
		require.NotNil(t, view.Glucose)
		assert.Equal(t, 41, view.Age)
	}
}

func TestOpenMeasurementBadPredictionKeepsBiomarkers(t *testing.T) {
	s := newTestShaper(t)

	m := sealedMeasurement(t, s, model.Biomarkers{Glucose: 95})
	bad := "nothex"
	m.Prediction = &bad

	view, ok := s.OpenMeasurement(m)
	require.True(t, ok)
	require.NotNil(t, view.Glucose)
	assert.Nil(t, view.Probability)
	assert.Nil(t, view.RiskLevel)
}

func TestOpenUserDegradesOnBadPayload(t *testing.T) {
	s := newTestShaper(t)

	protected, err := s.Seal(model.UserSensitive{Name: "Jane Roe", Gender: "female", Birthdate: "1985-02-03"})
	require.NoError(t, err)

	user := &model.User{
		Base:          model.Base{ID: uuid.New()},
		Email:         "jane@example.com",
		Role:          model.RoleUser,
		Status:        model.StatusActive,
		SensitiveData: protected,
	}

	view := s.OpenUser(user)
	require.NotNil(t, view.Name)
	assert.Equal(t, "Jane Roe", *view.Name)
	assert.Nil(t, view.Position)

	user.SensitiveData = "garbage"
	view = s.OpenUser(user)
	assert.Equal(t, "jane@example.com", view.Email)
	assert.Nil(t, view.Name)
	assert.Nil(t, view.Birthdate)
}

func TestOpenPrescriptions(t *testing.T) {
	s := newTestShaper(t)

	details := model.PrescriptionDetails{
		Medicines:  []model.Medicine{{Name: "Metformin", Dosage: "500mg", Schedule: "twice daily"}},
		Suggestion: "recheck in 3 months",
	}
	protected, err := s.Seal(details)
	require.NoError(t, err)

	good := &model.Prescription{
		Base:              model.Base{ID: uuid.New(), CreatedAt: time.Now()},
		AuthorID:          uuid.New(),
		AuthorDisplayName: "Dr. Roe",
		SubjectID:         uuid.New(),
		SensitiveData:     protected,
	}
	bad := &model.Prescription{
		Base:          model.Base{ID: uuid.New()},
		SensitiveData: "not:hex",
	}

	views := s.OpenPrescriptions([]*model.Prescription{good, bad})
	require.Len(t, views, 1)
	assert.Equal(t, "Metformin", views[0].Medicines[0].Name)
	assert.Equal(t, "recheck in 3 months", views[0].Suggestion)
}

func TestDeriveAge(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	age, err := DeriveAge("1990-04-12", now)
	require.NoError(t, err)
	assert.Equal(t, 35, age)

	// Birthday later in the year.
	age, err = DeriveAge("1990-10-01", now)
	require.NoError(t, err)
	assert.Equal(t, 34, age)

	// Clamped at the upper bound.
	age, err = DeriveAge("1880-01-01", now)
	require.NoError(t, err)
	assert.Equal(t, 120, age)

	// Future birthdate clamps to zero.
	age, err = DeriveAge("2030-01-01", now)
	require.NoError(t, err)
	assert.Equal(t, 0, age)

	_, err = DeriveAge("12/04/1990", now)
	assert.Error(t, err)
}

func TestNormalizeBiomarkers(t *testing.T) {
	b := model.Biomarkers{Pregnancies: 3, Glucose: 110}
	NormalizeBiomarkers(&b, "Male")
	assert.Equal(t, 0.0, b.Pregnancies)
	assert.Equal(t, 110.0, b.Glucose)

	b = model.Biomarkers{Pregnancies: 2}
	NormalizeBiomarkers(&b, "female")
	assert.Equal(t, 2.0, b.Pregnancies)
}

func TestSealCountsShapedRecords(t *testing.T) {
	codec, err := security.NewCodec("test-secret")
	require.NoError(t, err)
	m := metrics.New("shield_seal_test")
	s := NewShaper(codec, zerolog.Nop(), m)

	_, err = s.Seal(model.Biomarkers{Glucose: 100})
	require.NoError(t, err)
	_, err = s.Seal(model.UserSensitive{Name: "Jane Roe"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsShaped.WithLabelValues("measurement")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsShaped.WithLabelValues("user")))
}
