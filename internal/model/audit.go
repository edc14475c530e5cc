package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Admin actions recorded in the history log.
const (
	ActionApproveAccount = "approve_account"
	ActionRejectAccount  = "reject_account"
	ActionDisableAccount = "disable_account"
	ActionDeleteAccount  = "delete_account"
)

// ActionHistoryEntry is the append-only log of admin decisions. All fields
// are cleartext.
type ActionHistoryEntry struct {
	Base
	AdminID  uuid.UUID `json:"adminId" db:"admin_id"`
	TargetID uuid.UUID `json:"targetId" db:"target_id"`
	Action   string    `json:"action" db:"action"`
	Detail   string    `json:"detail" db:"detail"`
}

// Outbox event status constants.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
)

// OutboxEvent is a pending domain event awaiting publication.
type OutboxEvent struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	EventType   string          `json:"event_type" db:"event_type"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	Status      string          `json:"status" db:"status"`
	Error       *string         `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
}
