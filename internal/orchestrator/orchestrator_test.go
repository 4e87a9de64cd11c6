package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storypipeline/internal/broker"
	"storypipeline/internal/models"
	"storypipeline/internal/orchestrator"
	"storypipeline/internal/provider"
)

func newHandle(storyID uuid.UUID, visibilityTimeout time.Duration) *broker.Handle {
	return &broker.Handle{
		QueueName: "story.jobs",
		StoryID:   storyID.String(),
		Deadline:  time.Now().Add(visibilityTimeout),
	}
}

func newEnvelope(storyID uuid.UUID, attempt uint) models.JobEnvelope {
	return models.JobEnvelope{
		StoryID:    storyID,
		UserID:     "u1",
		Title:      "Forest",
		Prompt:     "A child finds a magical forest",
		Attempt:    attempt,
		EnqueuedAt: time.Now().UTC(),
	}
}

type harness struct {
	stories *fakeStoryRepository
	scenes  *fakeSceneRepository
	text    *fakeTextAdapter
	image   *fakeImageAdapter
	audio   *fakeAudioAdapter
	blob    *fakeBlobUploader
	broker  *fakeBroker
	orch    *orchestrator.Orchestrator
	cfg     orchestrator.Config
}

func newHarness() *harness {
	h := &harness{
		stories: newFakeStoryRepository(),
		scenes:  newFakeSceneRepository(),
		text:    newFakeTextAdapter(),
		image:   &fakeImageAdapter{},
		audio:   &fakeAudioAdapter{},
		blob:    &fakeBlobUploader{},
		broker:  &fakeBroker{},
		cfg:     orchestrator.DefaultConfig(),
	}
	h.orch = orchestrator.New(h.stories, h.scenes, h.text, h.image, h.audio, h.blob, h.broker, h.cfg, zap.NewNop(), nil)
	return h
}

func TestProcess_HappyPathThreeScenes(t *testing.T) {
	h := newHarness()
	storyID := h.stories.seed(models.StoryStatusPending)

	err := h.orch.Process(context.Background(), newHandle(storyID, h.cfg.VisibilityTimeout), newEnvelope(storyID, 0))
	require.NoError(t, err)

	story := h.stories.get(storyID)
	require.NotNil(t, story)
	assert.Equal(t, models.StoryStatusCompleted, story.Status)
	assert.NotEmpty(t, story.StoryMetadata)

	assert.Equal(t, 3, h.scenes.count(storyID))
	scenes, err := h.scenes.ListScenes(context.Background(), storyID)
	require.NoError(t, err)
	seqs := map[int]bool{}
	for _, s := range scenes {
		assert.True(t, s.HasMedia())
		seqs[s.Sequence] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, seqs)

	assert.Contains(t, h.broker.acked, storyID.String())
	assert.Empty(t, h.broker.nacked)
}

func TestProcess_MalformedPlanFailsImmediately(t *testing.T) {
	h := newHarness()
	storyID := h.stories.seed(models.StoryStatusPending)
	h.text.setOverride(stagePlan, "this is not json at all, sorry", nil)

	err := h.orch.Process(context.Background(), newHandle(storyID, h.cfg.VisibilityTimeout), newEnvelope(storyID, 0))
	require.NoError(t, err)

	story := h.stories.get(storyID)
	require.NotNil(t, story)
	assert.Equal(t, models.StoryStatusFailed, story.Status)
	assert.Contains(t, story.Error, "plan")
	assert.Equal(t, 0, h.scenes.count(storyID))
	assert.Contains(t, h.broker.acked, storyID.String())
}

func TestProcess_AttemptsExhaustedOnPersistentAudioFailure(t *testing.T) {
	h := newHarness()
	h.cfg.MaxAttempts = 3
	h.orch = orchestrator.New(h.stories, h.scenes, h.text, h.image, h.audio, h.blob, h.broker, h.cfg, zap.NewNop(), nil)
	storyID := h.stories.seed(models.StoryStatusPending)
	h.audio.err = provider.NewError(provider.KindTransient, "audio", errors.New("upstream 500"))

	attempt := uint(0)
	var lastErr error
	for i := 0; i < h.cfg.MaxAttempts; i++ {
		lastErr = h.orch.Process(context.Background(), newHandle(storyID, h.cfg.VisibilityTimeout), newEnvelope(storyID, attempt))
		require.NoError(t, lastErr)
		story := h.stories.get(storyID)
		if story.Status.IsTerminal() {
			break
		}
		require.NotEmpty(t, h.broker.nacked)
		attempt = h.broker.nacked[len(h.broker.nacked)-1].Attempt
	}

	story := h.stories.get(storyID)
	require.NotNil(t, story)
	assert.Equal(t, models.StoryStatusFailed, story.Status)
	assert.Contains(t, story.Error, "audio")
	assert.Contains(t, h.broker.acked, storyID.String())
}

func TestProcess_TransientImageFailureRecoveredOnRedelivery(t *testing.T) {
	h := newHarness()
	storyID := h.stories.seed(models.StoryStatusPending)
	h.image.err = provider.NewError(provider.KindTransient, "image", errors.New("upstream 503"))

	err := h.orch.Process(context.Background(), newHandle(storyID, h.cfg.VisibilityTimeout), newEnvelope(storyID, 0))
	require.NoError(t, err)

	story := h.stories.get(storyID)
	assert.Equal(t, models.StoryStatusProcessing, story.Status)
	require.NotEmpty(t, h.broker.nacked)
	assert.Equal(t, 0, h.scenes.count(storyID), "no scene should persist while image adapter fails for all of them")

	// Recover: the adapter starts succeeding, mirroring "fails twice then succeeds" once
	// the adapter's own retry budget would have been exhausted on the live upstream.
	h.image.mu.Lock()
	h.image.err = nil
	h.image.mu.Unlock()

	nextAttempt := h.broker.nacked[len(h.broker.nacked)-1].Attempt
	err = h.orch.Process(context.Background(), newHandle(storyID, h.cfg.VisibilityTimeout), newEnvelope(storyID, nextAttempt))
	require.NoError(t, err)

	story = h.stories.get(storyID)
	assert.Equal(t, models.StoryStatusCompleted, story.Status)
	assert.Equal(t, 3, h.scenes.count(storyID))
}

func TestProcess_ResumesOnlyMissingScenesAfterPriorPartialPersist(t *testing.T) {
	h := newHarness()
	storyID := h.stories.seed(models.StoryStatusProcessing)

	// Simulate a worker crash after persisting 2 of 3 scenes but before ack:
	// seed those two rows directly, as a second worker would observe them.
	require.NoError(t, h.scenes.InsertScene(context.Background(), &models.Scene{
		ID: uuid.New(), StoryID: storyID, Sequence: 0, Title: "Into the woods",
		Text: "Mila steps into the forest.", ImagePrompt: "girl entering dark forest",
		ImageURL: "https://blobs.test/prior/0.png", AudioURL: "https://blobs.test/prior/0.mp3",
	}))
	require.NoError(t, h.scenes.InsertScene(context.Background(), &models.Scene{
		ID: uuid.New(), StoryID: storyID, Sequence: 1, Title: "The clearing",
		Text: "She finds a glowing clearing.", ImagePrompt: "glowing clearing at dusk",
		ImageURL: "https://blobs.test/prior/1.png", AudioURL: "https://blobs.test/prior/1.mp3",
	}))

	err := h.orch.Process(context.Background(), newHandle(storyID, h.cfg.VisibilityTimeout), newEnvelope(storyID, 0))
	require.NoError(t, err)

	story := h.stories.get(storyID)
	assert.Equal(t, models.StoryStatusCompleted, story.Status)
	assert.Equal(t, 3, h.scenes.count(storyID))
	assert.Equal(t, 1, h.image.calls, "only the missing scene should regenerate its image")
	assert.Equal(t, 1, h.audio.calls, "only the missing scene should regenerate its audio")

	scenes, err := h.scenes.ListScenes(context.Background(), storyID)
	require.NoError(t, err)
	for _, s := range scenes {
		if s.Sequence != 2 {
			assert.Equal(t, "https://blobs.test/prior/"+itoa(s.Sequence)+".png", s.ImageURL, "prior scene URLs must not be overwritten")
		}
	}
}

func TestProcess_RedeliveryOfAlreadyTerminalStoryIsNoop(t *testing.T) {
	h := newHarness()
	storyID := h.stories.seed(models.StoryStatusCompleted)

	err := h.orch.Process(context.Background(), newHandle(storyID, h.cfg.VisibilityTimeout), newEnvelope(storyID, 1))
	require.NoError(t, err)

	assert.Equal(t, 0, h.text.callsByStage[stagePlan], "no work should be attempted for an already-terminal story")
	assert.Contains(t, h.broker.acked, storyID.String())
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}
