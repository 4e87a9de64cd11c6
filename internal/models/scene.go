package models

import (
	"time"

	"github.com/google/uuid"
)

// Scene is a derived child entity of Story, one per plan-declared story beat.
type Scene struct {
	ID          uuid.UUID
	StoryID     uuid.UUID
	Sequence    int
	Title       string
	Text        string
	ImagePrompt string
	ImageURL    string
	AudioURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasMedia reports whether both derived-media URLs are populated, the
// idempotency key the Orchestrator uses to decide whether a scene needs
// regenerating on redelivery.
func (s *Scene) HasMedia() bool {
	return s.ImageURL != "" && s.AudioURL != ""
}
