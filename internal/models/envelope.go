package models

import (
	"time"

	"github.com/google/uuid"
)

// JobEnvelope is the payload carried by the broker for one Story job.
type JobEnvelope struct {
	StoryID    uuid.UUID `json:"story_id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Prompt     string    `json:"prompt"`
	Attempt    uint      `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
