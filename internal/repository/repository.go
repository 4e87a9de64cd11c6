// Package repository persists Story and Scene state (§4.C), grounded on
// the teacher's shared/database package: a pgx-based DBTX abstraction, a
// compile-time interface assertion per implementation, and pgx.ErrNoRows
// mapped to a sentinel not-found error.
package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"storypipeline/internal/models"
)

// DBTX abstracts over *pgxpool.Pool and pgx.Tx so repositories can be
// handed either a pool or an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// StoryRepository is the Repository's Story-facing surface (§4.C).
type StoryRepository interface {
	CreateStory(ctx context.Context, storyID uuid.UUID, title, prompt, userID string) (*models.Story, error)
	GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error)
	SetStatus(ctx context.Context, storyID uuid.UUID, newStatus models.StoryStatus, errMsg string) error
	// ClaimProcessing performs the conditional PENDING->PROCESSING (or
	// PROCESSING->PROCESSING no-op) transition used by the Orchestrator's
	// claim step. It returns models.ErrNotClaimed if the story is already
	// terminal or was claimed by a concurrent worker in a way that makes
	// this claim redundant-but-unsafe to assume.
	ClaimProcessing(ctx context.Context, storyID uuid.UUID) (*models.Story, error)
	SetMetadata(ctx context.Context, storyID uuid.UUID, metadata json.RawMessage) error
}

// SceneRepository is the Repository's Scene-facing surface (§4.C).
type SceneRepository interface {
	InsertScene(ctx context.Context, scene *models.Scene) error
	InsertScenesBatch(ctx context.Context, scenes []*models.Scene) error
	ListScenes(ctx context.Context, storyID uuid.UUID) ([]*models.Scene, error)
}
