package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository"
)

type prescriptionRepository struct {
	db *sqlx.DB
}

func NewPrescriptionRepository(db *sqlx.DB) repository.PrescriptionRepository {
	return &prescriptionRepository{db: db}
}

func (r *prescriptionRepository) Create(ctx context.Context, p *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (id, author_id, author_display_name, subject_id, sensitive_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	p.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.AuthorID,
		p.AuthorDisplayName,
		p.SubjectID,
		p.SensitiveData,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepository) ListBySubject(ctx context.Context, subjectID uuid.UUID, dr model.DateRange) ([]*model.Prescription, error) {
	query := `
		SELECT * FROM prescriptions
		WHERE subject_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
	`
	from, to := rangeBounds(dr)
	var prescriptions []*model.Prescription
	if err := r.db.SelectContext(ctx, &prescriptions, query, subjectID, from, to); err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return prescriptions, nil
}

func (r *prescriptionRepository) ListByAuthor(ctx context.Context, authorID uuid.UUID, dr model.DateRange) ([]*model.Prescription, error) {
	query := `
		SELECT * FROM prescriptions
		WHERE author_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
	`
	from, to := rangeBounds(dr)
	var prescriptions []*model.Prescription
	if err := r.db.SelectContext(ctx, &prescriptions, query, authorID, from, to); err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return prescriptions, nil
}

func (r *prescriptionRepository) DeleteBySubject(ctx context.Context, subjectID uuid.UUID) error {
	query := `DELETE FROM prescriptions WHERE subject_id = $1`
	if _, err := r.db.ExecContext(ctx, query, subjectID); err != nil {
		return fmt.Errorf("failed to delete prescriptions: %w", err)
	}
	return nil
}
