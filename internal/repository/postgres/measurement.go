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

type measurementRepository struct {
	db *sqlx.DB
}

func NewMeasurementRepository(db *sqlx.DB) repository.MeasurementRepository {
	return &measurementRepository{db: db}
}

func (r *measurementRepository) Create(ctx context.Context, m *model.Measurement) error {
	query := `
		INSERT INTO measurements (id, owner_id, age, sensitive_data, prediction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	m.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.OwnerID,
		m.Age,
		m.SensitiveData,
		m.Prediction,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create measurement: %w", err)
	}
	return nil
}

func (r *measurementRepository) AttachPrediction(ctx context.Context, id uuid.UUID, protected string) error {
	query := `UPDATE measurements SET prediction = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, protected, id)
	if err != nil {
		return fmt.Errorf("failed to attach prediction: %w", err)
	}
	return requireRow(res)
}

func (r *measurementRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, dr model.DateRange) ([]*model.Measurement, error) {
	query := `
		SELECT * FROM measurements
		WHERE owner_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`
	from, to := rangeBounds(dr)
	var measurements []*model.Measurement
	if err := r.db.SelectContext(ctx, &measurements, query, ownerID, from, to); err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	return measurements, nil
}

func (r *measurementRepository) ScanByRange(ctx context.Context, dr model.DateRange, fn func(*model.Measurement) error) error {
	query := `
		SELECT * FROM measurements
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`
	from, to := rangeBounds(dr)
	rows, err := r.db.QueryxContext(ctx, query, from, to)
	if err != nil {
		return fmt.Errorf("failed to scan measurements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m model.Measurement
		if err := rows.StructScan(&m); err != nil {
			return fmt.Errorf("failed to scan measurement row: %w", err)
		}
		if err := fn(&m); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *measurementRepository) DistinctOwners(ctx context.Context, dr model.DateRange) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT owner_id FROM measurements
		WHERE created_at >= $1 AND created_at < $2
	`
	from, to := rangeBounds(dr)
	var owners []uuid.UUID
	if err := r.db.SelectContext(ctx, &owners, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to collect measurement owners: %w", err)
	}
	return owners, nil
}

func (r *measurementRepository) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) error {
	query := `DELETE FROM measurements WHERE owner_id = $1`
	if _, err := r.db.ExecContext(ctx, query, ownerID); err != nil {
		return fmt.Errorf("failed to delete measurements: %w", err)
	}
	return nil
}
