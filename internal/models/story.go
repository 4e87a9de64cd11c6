package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StoryStatus is the canonical status of a Story's job lifecycle.
type StoryStatus string

const (
	StoryStatusPending    StoryStatus = "PENDING"
	StoryStatusProcessing StoryStatus = "PROCESSING"
	StoryStatusCompleted  StoryStatus = "COMPLETED"
	StoryStatusFailed     StoryStatus = "FAILED"
)

// Story is the job-level aggregate: one row per submitted generation request.
type Story struct {
	ID            uuid.UUID
	Title         string
	Prompt        string
	UserID        string
	Status        StoryStatus
	StoryMetadata json.RawMessage
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsTerminal reports whether status is one the state machine never leaves.
func (s StoryStatus) IsTerminal() bool {
	return s == StoryStatusCompleted || s == StoryStatusFailed
}
