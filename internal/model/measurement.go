package model

import (
	"time"

	"github.com/google/uuid"
)

// SentinelAge marks a history record whose protected payload failed to
// decode; the envelope age is replaced so callers can tell the record is
// degraded.
const SentinelAge = -1

// DefaultAge substitutes for an owner whose birthdate cannot be decoded at
// write time.
const DefaultAge = 30

// Measurement is the stored shape of a biomarker submission. OwnerID and
// CreatedAt stay cleartext for owner-scoped and time-range queries; age is a
// coarsened derivative required by the scoring interface.
type Measurement struct {
	Base
	OwnerID       uuid.UUID `json:"ownerId" db:"owner_id"`
	Age           int       `json:"age" db:"age"`
	SensitiveData string    `json:"-" db:"sensitive_data"`
	Prediction    *string   `json:"-" db:"prediction"`
}

// Biomarkers is the cleartext tuple collapsed into a Measurement's protected
// payload.
type Biomarkers struct {
	Pregnancies   float64 `json:"pregnancies"`
	Glucose       float64 `json:"glucose"`
	BloodPressure float64 `json:"bloodPressure"`
	Insulin       float64 `json:"insulin"`
	BMI           float64 `json:"bmi"`
}

// Prediction is the scoring-service response held in a Measurement's second
// protected payload.
type Prediction struct {
	Probability float64 `json:"probability"`
	RiskLevel   string  `json:"riskLevel"`
}

// MeasurementView is the reconstructed logical record: protected fields
// appear unwrapped at the top level and the wrapper keys never surface.
// Pointer fields are nil on degraded records.
type MeasurementView struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       uuid.UUID `json:"ownerId"`
	Age           int       `json:"age"`
	CreatedAt     time.Time `json:"createdAt"`
	Pregnancies   *float64  `json:"pregnancies,omitempty"`
	Glucose       *float64  `json:"glucose,omitempty"`
	BloodPressure *float64  `json:"bloodPressure,omitempty"`
	Insulin       *float64  `json:"insulin,omitempty"`
	BMI           *float64  `json:"bmi,omitempty"`
	Probability   *float64  `json:"probability,omitempty"`
	RiskLevel     *string   `json:"riskLevel,omitempty"`
}

// SubmitMeasurementRequest represents a biomarker submission.
type SubmitMeasurementRequest struct {
	Pregnancies   float64 `json:"pregnancies" binding:"min=0,max=20"`
	Glucose       float64 `json:"glucose" binding:"required,gt=0,lte=1000"`
	BloodPressure float64 `json:"bloodPressure" binding:"required,gt=0,lte=300"`
	Insulin       float64 `json:"insulin" binding:"min=0,max=1000"`
	BMI           float64 `json:"bmi" binding:"required,gt=0,lte=100"`
}

// SubmitMeasurementResponse acknowledges a persisted submission. Error is set
// to "prediction_unavailable" when the scorer could not be reached; the
// record is persisted either way.
type SubmitMeasurementResponse struct {
	ID         uuid.UUID   `json:"id"`
	Prediction *Prediction `json:"prediction,omitempty"`
	Error      string      `json:"error,omitempty"`
}
