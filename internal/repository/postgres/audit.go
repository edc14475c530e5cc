package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository"
)

type actionHistoryRepository struct {
	db *sqlx.DB
}

func NewActionHistoryRepository(db *sqlx.DB) repository.ActionHistoryRepository {
	return &actionHistoryRepository{db: db}
}

func (r *actionHistoryRepository) Create(ctx context.Context, entry *model.ActionHistoryEntry) error {
	query := `
		INSERT INTO action_history (id, admin_id, target_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	entry.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.AdminID,
		entry.TargetID,
		entry.Action,
		entry.Detail,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append action history: %w", err)
	}
	return nil
}

func (r *actionHistoryRepository) List(ctx context.Context, limit int) ([]*model.ActionHistoryEntry, error) {
	query := `SELECT * FROM action_history ORDER BY created_at DESC LIMIT $1`
	var entries []*model.ActionHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list action history: %w", err)
	}
	return entries, nil
}
