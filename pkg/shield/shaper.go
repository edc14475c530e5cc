// Package shield implements the record-shaping policy: on write every
// persisted entity is split into a queryable cleartext envelope and a single
// encoded payload, and on read the split is inverted with per-record fault
// isolation.
package shield

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/pkg/metrics"
	"github.com/diarisk/health-api/pkg/security"
)

const (
	entityUser         = "user"
	entityMeasurement  = "measurement"
	entityPrescription = "prescription"

	minAge = 0
	maxAge = 120
)

type Shaper struct {
	codec   *security.Codec
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewShaper(codec *security.Codec, logger zerolog.Logger, m *metrics.Metrics) *Shaper {
	return &Shaper{codec: codec, logger: logger, metrics: m}
}

// Seal encodes v into its protected transport form.
func (s *Shaper) Seal(v interface{}) (string, error) {
	protected, err := s.codec.Encode(v)
	if err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.RecordsShaped.WithLabelValues(sealEntity(v)).Inc()
	}
	return protected, nil
}

func sealEntity(v interface{}) string {
	switch v.(type) {
	case model.UserSensitive, *model.UserSensitive:
		return entityUser
	case model.Biomarkers, *model.Biomarkers, model.Prediction, *model.Prediction:
		return entityMeasurement
	case model.PrescriptionDetails, *model.PrescriptionDetails:
		return entityPrescription
	default:
		return "other"
	}
}

// UserSensitive decodes the protected demographic tuple of a user record.
func (s *Shaper) UserSensitive(u *model.User) (*model.UserSensitive, error) {
	var sensitive model.UserSensitive
	if err := s.codec.Decode(u.SensitiveData, &sensitive); err != nil {
		s.noteFailure(entityUser, u.ID.String(), err)
		return nil, fmt.Errorf("failed to decode user payload: %w", err)
	}
	s.noteSuccess(entityUser)
	return &sensitive, nil
}

// OpenUser reconstructs a logical user record. Decode failure degrades the
// view instead of failing: the envelope survives, protected fields stay nil.
func (s *Shaper) OpenUser(u *model.User) *model.UserView {
	view := &model.UserView{
		Base:       u.Base,
		Email:      u.Email,
		Role:       u.Role,
		Status:     u.Status,
		MFAEnabled: u.MFAEnabled,
	}

	sensitive, err := s.UserSensitive(u)
	if err != nil {
		return view
	}

	view.Name = &sensitive.Name
	view.Gender = &sensitive.Gender
	view.Birthdate = &sensitive.Birthdate
	if sensitive.Position != "" {
		view.Position = &sensitive.Position
	}
	return view
}

// OpenMeasurement reconstructs one logical measurement. The second return is
// false when the biomarker payload failed to decode; a failed prediction
// decode only drops the prediction fields.
func (s *Shaper) OpenMeasurement(m *model.Measurement) (*model.MeasurementView, bool) {
	view := &model.MeasurementView{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Age:       m.Age,
		CreatedAt: m.CreatedAt,
	}

	var biomarkers model.Biomarkers
	if err := s.codec.Decode(m.SensitiveData, &biomarkers); err != nil {
		s.noteFailure(entityMeasurement, m.ID.String(), err)
		return view, false
	}
	view.Pregnancies = &biomarkers.Pregnancies
	view.Glucose = &biomarkers.Glucose
	view.BloodPressure = &biomarkers.BloodPressure
	view.Insulin = &biomarkers.Insulin
	view.BMI = &biomarkers.BMI

	if m.Prediction != nil {
		var prediction model.Prediction
		if err := s.codec.Decode(*m.Prediction, &prediction); err != nil {
			s.noteFailure(entityMeasurement, m.ID.String(), err)
		} else {
			view.Probability = &prediction.Probability
			view.RiskLevel = &prediction.RiskLevel
		}
	}

	s.noteSuccess(entityMeasurement)
	return view, true
}

// OpenMeasurements reconstructs a batch for owner-scoped history reads.
// Records whose payload fails to decode are kept in degraded form with the
// sentinel age; one bad record never aborts the batch.
func (s *Shaper) OpenMeasurements(ms []*model.Measurement) []*model.MeasurementView {
	views := make([]*model.MeasurementView, 0, len(ms))
	for _, m := range ms {
		view, ok := s.OpenMeasurement(m)
		if !ok {
			view.Age = model.SentinelAge
		}
		views = append(views, view)
	}
	return views
}

// OpenPrescription reconstructs one logical prescription.
func (s *Shaper) OpenPrescription(p *model.Prescription) (*model.PrescriptionView, error) {
	var details model.PrescriptionDetails
	if err := s.codec.Decode(p.SensitiveData, &details); err != nil {
		s.noteFailure(entityPrescription, p.ID.String(), err)
		return nil, fmt.Errorf("failed to decode prescription payload: %w", err)
	}
	s.noteSuccess(entityPrescription)

	return &model.PrescriptionView{
		ID:                p.ID,
		AuthorID:          p.AuthorID,
		AuthorDisplayName: p.AuthorDisplayName,
		SubjectID:         p.SubjectID,
		CreatedAt:         p.CreatedAt,
		Medicines:         details.Medicines,
		Suggestion:        details.Suggestion,
	}, nil
}

// OpenPrescriptions reconstructs a batch, dropping records that fail to
// decode.
func (s *Shaper) OpenPrescriptions(ps []*model.Prescription) []*model.PrescriptionView {
	views := make([]*model.PrescriptionView, 0, len(ps))
	for _, p := range ps {
		view, err := s.OpenPrescription(p)
		if err != nil {
			continue
		}
		views = append(views, view)
	}
	return views
}

// DeriveAge computes whole years from an ISO birthdate, clamped to [0,120].
func DeriveAge(birthdate string, now time.Time) (int, error) {
	born, err := time.Parse("2006-01-02", birthdate)
	if err != nil {
		return 0, fmt.Errorf("invalid birthdate: %w", err)
	}

	age := now.Year() - born.Year()
	if now.YearDay() < born.YearDay() {
		age--
	}
	if age < minAge {
		age = minAge
	}
	if age > maxAge {
		age = maxAge
	}
	return age, nil
}

// NormalizeBiomarkers enforces the coercion policy before sealing: a male
// owner's pregnancies count is always stored as zero.
func NormalizeBiomarkers(b *model.Biomarkers, gender string) {
	if isMale(gender) {
		b.Pregnancies = 0
	}
}

func isMale(gender string) bool {
	g := strings.ToLower(strings.TrimSpace(gender))
	return g == "male" || g == "m"
}

func (s *Shaper) noteFailure(entity, recordID string, err error) {
	s.logger.Error().
		Str("entity", entity).
		Str("record_id", recordID).
		Str("error_kind", errorKind(err)).
		Msg("failed to decode protected payload")
	if s.metrics != nil {
		s.metrics.DecodeFailures.WithLabelValues(entity).Inc()
	}
}

func (s *Shaper) noteSuccess(entity string) {
	if s.metrics != nil {
		s.metrics.RecordsReassembled.WithLabelValues(entity).Inc()
	}
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case strings.Contains(err.Error(), security.ErrMalformedValue.Error()):
		return "malformed_value"
	default:
		return "decryption_failed"
	}
}
