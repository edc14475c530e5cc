package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/diarisk/health-api/internal/model"
)

var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique constraint is violated.
var ErrDuplicate = errors.New("record already exists")

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	// SetMFASecret stores a new protected secret with enrollment not yet
	// complete, replacing any pending one.
	SetMFASecret(ctx context.Context, id uuid.UUID, secret string) error
	// EnableMFA flips mfa_enabled only when a secret is pending and MFA is
	// still disabled; the conditional update serializes racing enrollments.
	EnableMFA(ctx context.Context, id uuid.UUID) (bool, error)
	ClearMFA(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type MeasurementRepository interface {
	Create(ctx context.Context, m *model.Measurement) error
	AttachPrediction(ctx context.Context, id uuid.UUID, protected string) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, r model.DateRange) ([]*model.Measurement, error)
	// ScanByRange streams measurements in the createdAt window without
	// buffering the full result set; fn returning an error stops the scan.
	ScanByRange(ctx context.Context, r model.DateRange, fn func(*model.Measurement) error) error
	DistinctOwners(ctx context.Context, r model.DateRange) ([]uuid.UUID, error)
	DeleteByOwner(ctx context.Context, ownerID uuid.UUID) error
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *model.Prescription) error
	ListBySubject(ctx context.Context, subjectID uuid.UUID, r model.DateRange) ([]*model.Prescription, error)
	ListByAuthor(ctx context.Context, authorID uuid.UUID, r model.DateRange) ([]*model.Prescription, error)
	DeleteBySubject(ctx context.Context, subjectID uuid.UUID) error
}

type ActionHistoryRepository interface {
	Create(ctx context.Context, entry *model.ActionHistoryEntry) error
	List(ctx context.Context, limit int) ([]*model.ActionHistoryEntry, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error
}
