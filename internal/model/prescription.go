package model

import (
	"time"

	"github.com/google/uuid"
)

// Prescription is the stored shape of a clinician's prescription. The
// medicines and suggestion live only inside the protected payload.
type Prescription struct {
	Base
	AuthorID          uuid.UUID `json:"authorId" db:"author_id"`
	AuthorDisplayName string    `json:"authorDisplayName" db:"author_display_name"`
	SubjectID         uuid.UUID `json:"subjectId" db:"subject_id"`
	SensitiveData     string    `json:"-" db:"sensitive_data"`
}

// Medicine is a single prescribed item.
type Medicine struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosage"`
	Schedule string `json:"schedule"`
}

// PrescriptionDetails is the cleartext tuple collapsed into a Prescription's
// protected payload.
type PrescriptionDetails struct {
	Medicines  []Medicine `json:"medicines"`
	Suggestion string     `json:"suggestion,omitempty"`
}

// PrescriptionView is the reconstructed logical record.
type PrescriptionView struct {
	ID                uuid.UUID  `json:"id"`
	AuthorID          uuid.UUID  `json:"authorId"`
	AuthorDisplayName string     `json:"authorDisplayName"`
	SubjectID         uuid.UUID  `json:"subjectId"`
	CreatedAt         time.Time  `json:"createdAt"`
	Medicines         []Medicine `json:"medicines,omitempty"`
	Suggestion        string     `json:"suggestion,omitempty"`
}

// CreatePrescriptionRequest represents a clinician issuing a prescription.
type CreatePrescriptionRequest struct {
	Medicines  []Medicine `json:"medicines" binding:"required,min=1,dive"`
	Suggestion string     `json:"suggestion"`
}
