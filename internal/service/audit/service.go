// Package audit records admin decisions and queues them for publication.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository"
)

// EventTypeAdminAction is the outbox event type for admin decisions.
const EventTypeAdminAction = "admin.action"

type Service struct {
	history repository.ActionHistoryRepository
	outbox  repository.OutboxRepository
	logger  zerolog.Logger
}

func NewService(history repository.ActionHistoryRepository, outbox repository.OutboxRepository, logger zerolog.Logger) *Service {
	return &Service{history: history, outbox: outbox, logger: logger}
}

// Log appends an admin action to the history and queues a matching outbox
// event. The outbox write is best-effort; the history entry is the record of
// truth.
func (s *Service) Log(ctx context.Context, adminID, targetID uuid.UUID, action, detail string) error {
	entry := &model.ActionHistoryEntry{
		Base:     model.Base{ID: uuid.New(), CreatedAt: time.Now().UTC()},
		AdminID:  adminID,
		TargetID: targetID,
		Action:   action,
		Detail:   detail,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal action event: %w", err)
	}
	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: EventTypeAdminAction,
		Payload:   payload,
		Status:    model.OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("failed to queue action event")
	}
	return nil
}

// List returns the most recent admin actions, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]*model.ActionHistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.history.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	if entries == nil {
		entries = []*model.ActionHistoryEntry{}
	}
	return entries, nil
}
