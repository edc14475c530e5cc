package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all persisted records
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// DateRange represents a createdAt window for history and aggregate queries.
type DateRange struct {
	From time.Time
	To   time.Time
}
