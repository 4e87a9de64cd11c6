// Package dispatcher implements the Dispatcher (§4.F): the single entry
// point that creates a Story row and durably hands it off to the broker
// queue before returning an id to the caller.
package dispatcher

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storypipeline/internal/broker"
	"storypipeline/internal/models"
	"storypipeline/internal/repository"
)

const (
	// MaxTitleRunes and MaxPromptRunes bound Story submission (SPEC_FULL.md
	// §4.F supplement): neither the Orchestrator nor any adapter can be
	// trusted to bound unlimited user text on its own.
	MaxTitleRunes  = 200
	MaxPromptRunes = 4000
)

// ErrTitleTooLong and ErrPromptTooLong are returned by Submit before any
// Story row is created.
var (
	ErrTitleTooLong  = fmt.Errorf("title exceeds %d characters", MaxTitleRunes)
	ErrPromptTooLong = fmt.Errorf("prompt exceeds %d characters", MaxPromptRunes)
)

// StoryQueueName is the broker queue the worker fleet consumes from.
const StoryQueueName = "story.jobs"

// Dispatcher is the Dispatcher component (§4.F).
type Dispatcher struct {
	stories repository.StoryRepository
	broker  broker.Client
	logger  *zap.Logger
}

// New builds a Dispatcher.
func New(stories repository.StoryRepository, brokerClient broker.Client, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{stories: stories, broker: brokerClient, logger: logger.Named("Dispatcher")}
}

// Submit validates input, creates the Story row (PENDING), and enqueues
// the job envelope. On an enqueue failure the Story is marked FAILED
// before the error is surfaced (§4.F step 3).
func (d *Dispatcher) Submit(ctx context.Context, title, userPrompt, userID string) (uuid.UUID, error) {
	if utf8.RuneCountInString(title) > MaxTitleRunes {
		return uuid.Nil, ErrTitleTooLong
	}
	if utf8.RuneCountInString(userPrompt) > MaxPromptRunes {
		return uuid.Nil, ErrPromptTooLong
	}

	storyID := uuid.New()
	if _, err := d.stories.CreateStory(ctx, storyID, title, userPrompt, userID); err != nil {
		return uuid.Nil, fmt.Errorf("create story: %w", err)
	}

	envelope := models.JobEnvelope{
		StoryID:    storyID,
		UserID:     userID,
		Title:      title,
		Prompt:     userPrompt,
		Attempt:    0,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := d.broker.Enqueue(ctx, StoryQueueName, envelope); err != nil {
		d.logger.Error("enqueue failed, marking story failed", zap.Error(err), zap.String("story_id", storyID.String()))
		if setErr := d.stories.SetStatus(ctx, storyID, models.StoryStatusFailed, "enqueue_failed: "+err.Error()); setErr != nil {
			d.logger.Error("failed to mark story failed after enqueue failure", zap.Error(setErr), zap.String("story_id", storyID.String()))
		}
		return uuid.Nil, fmt.Errorf("enqueue story job: %w", err)
	}

	return storyID, nil
}
