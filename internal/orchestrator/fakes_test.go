package orchestrator_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storypipeline/internal/broker"
	"storypipeline/internal/models"
	"storypipeline/internal/provider/audio"
	"storypipeline/internal/provider/image"
	"storypipeline/internal/provider/text"
)

// fakeStoryRepository and fakeSceneRepository are minimal in-memory
// stand-ins for the Repository interfaces, enforcing the same status
// guard and conflict semantics as the Postgres implementation so the
// Orchestrator's idempotency assumptions hold under test.
type fakeStoryRepository struct {
	mu      sync.Mutex
	stories map[uuid.UUID]*models.Story
}

func newFakeStoryRepository() *fakeStoryRepository {
	return &fakeStoryRepository{stories: make(map[uuid.UUID]*models.Story)}
}

func (f *fakeStoryRepository) seed(status models.StoryStatus) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.stories[id] = &models.Story{ID: id, Status: status, Title: "Forest", Prompt: "A child finds a magical forest", UserID: "u1"}
	return id
}

func (f *fakeStoryRepository) get(id uuid.UUID) *models.Story {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stories[id]
}

func (f *fakeStoryRepository) CreateStory(ctx context.Context, storyID uuid.UUID, title, prompt, userID string) (*models.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	story := &models.Story{ID: storyID, Title: title, Prompt: prompt, UserID: userID, Status: models.StoryStatusPending}
	f.stories[storyID] = story
	return story, nil
}

func (f *fakeStoryRepository) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	story, ok := f.stories[storyID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *story
	return &copied, nil
}

func (f *fakeStoryRepository) SetStatus(ctx context.Context, storyID uuid.UUID, newStatus models.StoryStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	story, ok := f.stories[storyID]
	if !ok {
		return models.ErrNotFound
	}
	if !models.StatusTransitionAllowed(story.Status, newStatus) {
		return models.ErrIllegalTransition
	}
	story.Status = newStatus
	story.Error = errMsg
	return nil
}

func (f *fakeStoryRepository) ClaimProcessing(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	story, ok := f.stories[storyID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if story.Status.IsTerminal() {
		return nil, models.ErrNotClaimed
	}
	story.Status = models.StoryStatusProcessing
	return story, nil
}

func (f *fakeStoryRepository) SetMetadata(ctx context.Context, storyID uuid.UUID, metadata json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	story, ok := f.stories[storyID]
	if !ok {
		return models.ErrNotFound
	}
	story.StoryMetadata = metadata
	return nil
}

type fakeSceneRepository struct {
	mu     sync.Mutex
	scenes map[uuid.UUID]map[int]*models.Scene
}

func newFakeSceneRepository() *fakeSceneRepository {
	return &fakeSceneRepository{scenes: make(map[uuid.UUID]map[int]*models.Scene)}
}

func (f *fakeSceneRepository) InsertScene(ctx context.Context, scene *models.Scene) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	byStory, ok := f.scenes[scene.StoryID]
	if !ok {
		byStory = make(map[int]*models.Scene)
		f.scenes[scene.StoryID] = byStory
	}
	if _, exists := byStory[scene.Sequence]; exists {
		return models.ErrSceneConflict
	}
	copied := *scene
	byStory[scene.Sequence] = &copied
	return nil
}

func (f *fakeSceneRepository) InsertScenesBatch(ctx context.Context, scenes []*models.Scene) error {
	for _, s := range scenes {
		if err := f.InsertScene(ctx, s); err != nil && err != models.ErrSceneConflict {
			return err
		}
	}
	return nil
}

func (f *fakeSceneRepository) ListScenes(ctx context.Context, storyID uuid.UUID) ([]*models.Scene, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byStory := f.scenes[storyID]
	out := make([]*models.Scene, 0, len(byStory))
	for _, s := range byStory {
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeSceneRepository) count(storyID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scenes[storyID])
}

// fakeTextAdapter routes by a substring marker unique to each prompt
// builder (rather than call order, since shared-style and per-scene
// moment calls run concurrently) and returns a canned, valid response
// unless a test overrides that stage.
type fakeTextAdapter struct {
	mu           sync.Mutex
	callsByStage map[string]int
	overrides    map[string]fakeTextResult
}

type fakeTextResult struct {
	response string
	err      error
}

func newFakeTextAdapter() *fakeTextAdapter {
	return &fakeTextAdapter{callsByStage: make(map[string]int), overrides: make(map[string]fakeTextResult)}
}

const (
	stagePlan    = "plan"
	stageVisual  = "visual"
	stageBase    = "base"
	stageMoment  = "moment"
)

func (f *fakeTextAdapter) setOverride(stage string, response string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[stage] = fakeTextResult{response: response, err: err}
}

func (f *fakeTextAdapter) GenerateText(ctx context.Context, req text.Request) (string, error) {
	stage := classifyPrompt(req.Prompt)

	f.mu.Lock()
	f.callsByStage[stage]++
	override, overridden := f.overrides[stage]
	f.mu.Unlock()

	if overridden {
		return override.response, override.err
	}

	switch stage {
	case stagePlan:
		return cannedPlanJSON, nil
	case stageVisual:
		return cannedVisualJSON, nil
	case stageBase:
		return cannedBaseJSON, nil
	default:
		return cannedMomentJSON, nil
	}
}

func classifyPrompt(p string) string {
	switch {
	case strings.Contains(p, "Target scene count"):
		return stagePlan
	case strings.Contains(p, "visual continuity editor"):
		return stageVisual
	case strings.Contains(p, "art director defining"):
		return stageBase
	default:
		return stageMoment
	}
}

const cannedPlanJSON = `{
  "title": "Forest",
  "characters": [{"name": "Mila", "role": "protagonist", "visual_description": "a small girl with a red scarf"}],
  "scenes": [
    {"sequence": 0, "title": "Into the woods", "text": "Mila steps into the forest.", "image_prompt": "girl entering dark forest"},
    {"sequence": 1, "title": "The clearing", "text": "She finds a glowing clearing.", "image_prompt": "glowing clearing at dusk"},
    {"sequence": 2, "title": "The way home", "text": "Mila finds her way back home.", "image_prompt": "girl walking home at dawn"}
  ]
}`

const cannedVisualJSON = `{"characters": [{"name": "Mila", "canonical_appearance": "small girl, red scarf, brown hair"}]}`

const cannedBaseJSON = `{"palette": "warm autumn tones", "lighting": "soft golden hour", "medium": "watercolor", "composition_notes": "rule of thirds"}`

const cannedMomentJSON = `{"moment_description": "Mila reaches for a glowing flower", "camera": "low angle", "mood": "wonder"}`

// fakeImageAdapter and fakeAudioAdapter let tests inject failures.
type fakeImageAdapter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeImageAdapter) GenerateImage(ctx context.Context, req image.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(fmt.Sprintf("fake-image-bytes-%d-padding-padding-padding-padding", f.calls)), nil
}

type fakeAudioAdapter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeAudioAdapter) GenerateAudio(ctx context.Context, req audio.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(fmt.Sprintf("fake-audio-bytes-%d-padding-padding-padding-padding", f.calls)), nil
}

// fakeBlobUploader fabricates deterministic URLs without network I/O.
type fakeBlobUploader struct{}

func (f *fakeBlobUploader) PutImage(ctx context.Context, storyID uuid.UUID, sequence int, data []byte) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s/%d.png", storyID, sequence), nil
}

func (f *fakeBlobUploader) PutAudio(ctx context.Context, storyID uuid.UUID, sequence int, data []byte) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s/%d.mp3", storyID, sequence), nil
}

// fakeBroker records Ack/Nack calls for assertions.
type fakeBroker struct {
	mu     sync.Mutex
	acked  []string
	nacked []models.JobEnvelope
}

func (f *fakeBroker) Enqueue(ctx context.Context, queueName string, envelope models.JobEnvelope) error {
	return nil
}

func (f *fakeBroker) Dequeue(ctx context.Context, queueName string, visibilityTimeout, pollTimeout time.Duration) (*broker.Handle, *models.JobEnvelope, error) {
	return nil, nil, nil
}

func (f *fakeBroker) Ack(ctx context.Context, handle *broker.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, handle.StoryID)
	return nil
}

func (f *fakeBroker) Nack(ctx context.Context, handle *broker.Handle, envelope models.JobEnvelope, requeueDelay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, envelope)
	return nil
}

func (f *fakeBroker) RenewVisibility(ctx context.Context, handle *broker.Handle, visibilityTimeout time.Duration) error {
	return nil
}

func (f *fakeBroker) ReclaimExpired(ctx context.Context, queueName string) (int, error) {
	return 0, nil
}
