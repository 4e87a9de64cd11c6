package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"storypipeline/internal/models"
)

// Compile-time check, matching the teacher's repository pattern
// (shared/database/pg_story_scene_repository.go).
var _ SceneRepository = (*postgresSceneRepository)(nil)

type postgresSceneRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPostgresSceneRepository builds a Postgres-backed SceneRepository.
func NewPostgresSceneRepository(db DBTX, logger *zap.Logger) SceneRepository {
	return &postgresSceneRepository{db: db, logger: logger.Named("PostgresSceneRepo")}
}

const insertSceneQuery = `
INSERT INTO scenes (id, story_id, sequence, title, text, image_prompt, image_url, audio_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

const uniqueViolationCode = "23505"

func (r *postgresSceneRepository) InsertScene(ctx context.Context, scene *models.Scene) error {
	if strings.TrimSpace(scene.Title) == "" {
		return fmt.Errorf("insert scene (story=%s, seq=%d): empty title", scene.StoryID, scene.Sequence)
	}
	if scene.ID == uuid.Nil {
		scene.ID = uuid.New()
	}
	now := time.Now().UTC()
	scene.CreatedAt, scene.UpdatedAt = now, now

	_, err := r.db.Exec(ctx, insertSceneQuery,
		scene.ID, scene.StoryID, scene.Sequence, scene.Title, scene.Text,
		scene.ImagePrompt, nullable(scene.ImageURL), nullable(scene.AudioURL), now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			r.logger.Debug("scene already persisted, ignoring", zap.String("storyID", scene.StoryID.String()), zap.Int("sequence", scene.Sequence))
			return models.ErrSceneConflict
		}
		r.logger.Error("failed to insert scene", zap.String("storyID", scene.StoryID.String()), zap.Int("sequence", scene.Sequence), zap.Error(err))
		return fmt.Errorf("insert scene (story=%s, seq=%d): %w", scene.StoryID, scene.Sequence, err)
	}
	r.logger.Info("scene inserted", zap.String("sceneID", scene.ID.String()), zap.Int("sequence", scene.Sequence))
	return nil
}

// InsertScenesBatch inserts each scene independently, reporting the first
// non-conflict failure; the ErrSceneConflict that InsertScene returns for
// already-persisted rows from a prior attempt is ignored here, per §4.C's note that the
// Orchestrator treats partial batch success as its own recovery problem.
func (r *postgresSceneRepository) InsertScenesBatch(ctx context.Context, scenes []*models.Scene) error {
	for _, scene := range scenes {
		if err := r.InsertScene(ctx, scene); err != nil && !errors.Is(err, models.ErrSceneConflict) {
			return err
		}
	}
	return nil
}

const listScenesQuery = `
SELECT id, story_id, sequence, title, text, image_prompt, image_url, audio_url, created_at, updated_at
FROM scenes WHERE story_id = $1 ORDER BY sequence ASC`

func (r *postgresSceneRepository) ListScenes(ctx context.Context, storyID uuid.UUID) ([]*models.Scene, error) {
	rows, err := r.db.Query(ctx, listScenesQuery, storyID)
	if err != nil {
		r.logger.Error("failed to list scenes", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("list scenes for story %s: %w", storyID, err)
	}
	defer rows.Close()

	var scenes []*models.Scene
	for rows.Next() {
		scene := &models.Scene{}
		var imageURL, audioURL *string
		if err := rows.Scan(
			&scene.ID, &scene.StoryID, &scene.Sequence, &scene.Title, &scene.Text,
			&scene.ImagePrompt, &imageURL, &audioURL, &scene.CreatedAt, &scene.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan scene row: %w", err)
		}
		if imageURL != nil {
			scene.ImageURL = *imageURL
		}
		if audioURL != nil {
			scene.AudioURL = *audioURL
		}
		scenes = append(scenes, scene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scene rows for story %s: %w", storyID, err)
	}
	return scenes, nil
}

// nullable converts an empty string to a SQL NULL so image_url/audio_url
// stay nullable until the corresponding media stage completes (§3).
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
