package models

import "errors"

// Sentinel repository errors, mirrored on the teacher's shared/interfaces
// and shared/database packages (ErrNotFound, unique-constraint mapping).
var (
	// ErrNotFound is returned when a lookup by ID finds no row.
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition is returned when a status update would violate
	// the job state machine graph (see models.StatusTransitionAllowed).
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrSceneConflict is returned when insert_scene hits the unique
	// constraint on (story_id, sequence). The Orchestrator treats this as
	// "already persisted" and ignores it.
	ErrSceneConflict = errors.New("scene already exists for sequence")

	// ErrNotClaimed is returned by a conditional PENDING->PROCESSING update
	// when another worker already holds the claim.
	ErrNotClaimed = errors.New("story not claimed: already owned or terminal")
)
