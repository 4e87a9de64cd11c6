package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storypipeline/internal/models"
)

// Compile-time check, matching the teacher's repository pattern.
var _ StoryRepository = (*postgresStoryRepository)(nil)

type postgresStoryRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPostgresStoryRepository builds a Postgres-backed StoryRepository.
func NewPostgresStoryRepository(db DBTX, logger *zap.Logger) StoryRepository {
	return &postgresStoryRepository{db: db, logger: logger.Named("PostgresStoryRepo")}
}

const createStoryQuery = `
INSERT INTO stories (id, title, prompt, user_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`

func (r *postgresStoryRepository) CreateStory(ctx context.Context, storyID uuid.UUID, title, prompt, userID string) (*models.Story, error) {
	now := time.Now().UTC()
	story := &models.Story{
		ID: storyID, Title: title, Prompt: prompt, UserID: userID,
		Status: models.StoryStatusPending, CreatedAt: now, UpdatedAt: now,
	}

	_, err := r.db.Exec(ctx, createStoryQuery, story.ID, story.Title, story.Prompt, story.UserID, story.Status, now)
	if err != nil {
		r.logger.Error("failed to create story", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("create story: %w", err)
	}
	r.logger.Info("story created", zap.String("storyID", storyID.String()))
	return story, nil
}

const getStoryQuery = `
SELECT id, title, prompt, user_id, status, story_metadata, error, created_at, updated_at
FROM stories WHERE id = $1`

func (r *postgresStoryRepository) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	story := &models.Story{}
	var metadata []byte
	var errMsg *string

	err := r.db.QueryRow(ctx, getStoryQuery, storyID).Scan(
		&story.ID, &story.Title, &story.Prompt, &story.UserID, &story.Status,
		&metadata, &errMsg, &story.CreatedAt, &story.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("failed to get story", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("get story %s: %w", storyID, err)
	}
	story.StoryMetadata = metadata
	if errMsg != nil {
		story.Error = *errMsg
	}
	return story, nil
}

const setStatusQuery = `
UPDATE stories SET status = $2, error = $3, updated_at = $4 WHERE id = $1`

func (r *postgresStoryRepository) SetStatus(ctx context.Context, storyID uuid.UUID, newStatus models.StoryStatus, errMsg string) error {
	current, err := r.GetStory(ctx, storyID)
	if err != nil {
		return err
	}
	if !models.StatusTransitionAllowed(current.Status, newStatus) {
		r.logger.Warn("rejected illegal status transition",
			zap.String("storyID", storyID.String()),
			zap.String("from", string(current.Status)), zap.String("to", string(newStatus)))
		return models.ErrIllegalTransition
	}

	var errArg interface{}
	if errMsg != "" {
		errArg = errMsg
	}

	tag, err := r.db.Exec(ctx, setStatusQuery, storyID, newStatus, errArg, time.Now().UTC())
	if err != nil {
		r.logger.Error("failed to set status", zap.String("storyID", storyID.String()), zap.Error(err))
		return fmt.Errorf("set status for story %s: %w", storyID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	r.logger.Info("story status updated", zap.String("storyID", storyID.String()), zap.String("status", string(newStatus)))
	return nil
}

// claimProcessingQuery performs the conditional PENDING->PROCESSING and
// PROCESSING->PROCESSING transitions in one statement, so two concurrent
// claimants race on the same row and only one sees RowsAffected()==1.
// Grounded on the teacher's UpdateVisibility conditional-update pattern
// (shared/database/pg_published_story_repository_status.go).
const claimProcessingQuery = `
UPDATE stories SET status = 'PROCESSING', updated_at = $2
WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')`

func (r *postgresStoryRepository) ClaimProcessing(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	tag, err := r.db.Exec(ctx, claimProcessingQuery, storyID, time.Now().UTC())
	if err != nil {
		r.logger.Error("failed to claim story", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("claim story %s: %w", storyID, err)
	}
	if tag.RowsAffected() == 0 {
		story, getErr := r.GetStory(ctx, storyID)
		if getErr != nil {
			return nil, getErr
		}
		r.logger.Warn("claim rejected: story already terminal", zap.String("storyID", storyID.String()), zap.String("status", string(story.Status)))
		return nil, models.ErrNotClaimed
	}
	return r.GetStory(ctx, storyID)
}

const setMetadataQuery = `
UPDATE stories SET story_metadata = $2, updated_at = $3
WHERE id = $1 AND status = 'PROCESSING'`

func (r *postgresStoryRepository) SetMetadata(ctx context.Context, storyID uuid.UUID, metadata json.RawMessage) error {
	tag, err := r.db.Exec(ctx, setMetadataQuery, storyID, metadata, time.Now().UTC())
	if err != nil {
		r.logger.Error("failed to set metadata", zap.String("storyID", storyID.String()), zap.Error(err))
		return fmt.Errorf("set metadata for story %s: %w", storyID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
