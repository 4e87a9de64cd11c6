// Package orchestrator implements the Pipeline Orchestrator (§4.G): the
// core worker logic that drives one Story job from PROCESSING to a
// terminal status, bounding per-scene concurrency and tolerating
// at-least-once redelivery. Grounded on the teacher's
// pkg/taskmanager.TaskManager goroutine/WaitGroup pattern, generalized
// into a semaphore-bounded fan-out, and on
// story-generator/internal/worker/handler.go's dequeue-process-ack loop
// shape.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storypipeline/internal/blob"
	"storypipeline/internal/broker"
	"storypipeline/internal/metrics"
	"storypipeline/internal/models"
	"storypipeline/internal/prompt"
	"storypipeline/internal/provider/audio"
	"storypipeline/internal/provider/image"
	"storypipeline/internal/provider/text"
	"storypipeline/internal/repository"
)

// Config bounds the Orchestrator's concurrency and retry behavior (§4.G,
// §5, §6).
type Config struct {
	// SceneParallelism bounds concurrent per-scene fan-out (default 3).
	SceneParallelism int
	// MaxAttempts is the broker-envelope attempt ceiling (default 3); once
	// reached, a stage failure transitions the Story to FAILED instead of
	// redelivering.
	MaxAttempts int
	// VisibilityTimeout is the broker visibility window for this worker's
	// dequeues; the per-job soft deadline is 80% of it (§4.G Cancellation).
	VisibilityTimeout time.Duration
	// NackDelay is how long a job-level redelivery waits before becoming
	// visible again, distinct from each adapter's own internal retry
	// backoff (§4.A).
	NackDelay time.Duration
	// SceneCountHint seeds the plan prompt's "target scene count" (§9 Open
	// Questions: advisory only, never enforced).
	SceneCountHint int

	TextModel       string
	TextTemperature float64
	TextMaxTokens   int

	ImageWidth  int
	ImageHeight int
	ImageSteps  int

	AudioVoiceID string
	AudioHQ      bool
}

// DefaultConfig matches the specification's stated defaults.
func DefaultConfig() Config {
	return Config{
		SceneParallelism:  3,
		MaxAttempts:       3,
		VisibilityTimeout: 2 * time.Hour,
		NackDelay:         5 * time.Second,
		SceneCountHint:    3,
		TextTemperature:   0.8,
		TextMaxTokens:     2048,
		ImageWidth:        768,
		ImageHeight:       768,
		ImageSteps:        30,
		AudioVoiceID:      "default",
	}
}

// Orchestrator is the Pipeline Orchestrator (§4.G).
type Orchestrator struct {
	stories repository.StoryRepository
	scenes  repository.SceneRepository
	text    text.Adapter
	image   image.Adapter
	audio   audio.Adapter
	blob    blob.Uploader
	broker  broker.Client
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New builds an Orchestrator. metrics may be nil, in which case stage/scene
// instrumentation is skipped (e.g. in unit tests using hand-written fakes).
func New(
	stories repository.StoryRepository,
	scenes repository.SceneRepository,
	textAdapter text.Adapter,
	imageAdapter image.Adapter,
	audioAdapter audio.Adapter,
	blobUploader blob.Uploader,
	brokerClient broker.Client,
	cfg Config,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	if cfg.SceneParallelism <= 0 {
		cfg.SceneParallelism = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Orchestrator{
		stories: stories,
		scenes:  scenes,
		text:    textAdapter,
		image:   imageAdapter,
		audio:   audioAdapter,
		blob:    blobUploader,
		broker:  brokerClient,
		cfg:     cfg,
		logger:  logger.Named("Orchestrator"),
		metrics: m,
	}
}

// Process drives a single dequeued job through the state machine: claim,
// plan, shared style, per-scene fan-out, finalize, ack. It never panics on
// a classified adapter error; instead it decides between redelivery and a
// terminal FAILED transition (§4.G Failure semantics).
func (o *Orchestrator) Process(ctx context.Context, handle *broker.Handle, envelope models.JobEnvelope) error {
	log := o.logger.With(zap.String("story_id", envelope.StoryID.String()), zap.Uint("attempt", envelope.Attempt))

	story, err := o.stories.GetStory(ctx, envelope.StoryID)
	if err != nil {
		return fmt.Errorf("load story: %w", err)
	}

	if story.Status.IsTerminal() {
		log.Info("story already terminal, acking redelivered job")
		return o.broker.Ack(ctx, handle)
	}

	if _, err := o.stories.ClaimProcessing(ctx, envelope.StoryID); err != nil {
		if errors.Is(err, models.ErrNotClaimed) {
			log.Info("story became terminal concurrently, acking")
			return o.broker.Ack(ctx, handle)
		}
		return fmt.Errorf("claim processing: %w", err)
	}

	stopRenewal := o.startVisibilityRenewal(ctx, handle, log)
	defer stopRenewal()

	jobCtx, cancel := o.withSoftDeadline(ctx, handle)
	defer cancel()

	plan, err := o.runPlanStage(jobCtx, envelope)
	if err != nil {
		return o.handleStageFailure(ctx, handle, envelope, "plan", err)
	}

	if metadata, marshalErr := json.Marshal(plan); marshalErr == nil {
		if setErr := o.stories.SetMetadata(ctx, envelope.StoryID, metadata); setErr != nil {
			log.Warn("failed to persist plan metadata", zap.Error(setErr))
		}
	}

	visual, base, err := o.runSharedStyleStage(jobCtx, plan)
	if err != nil {
		return o.handleStageFailure(ctx, handle, envelope, "shared_style", err)
	}

	missing, err := o.missingScenes(ctx, envelope.StoryID, plan)
	if err != nil {
		return fmt.Errorf("list existing scenes: %w", err)
	}

	if err := o.runSceneFanout(jobCtx, envelope.StoryID, plan, visual, base, missing); err != nil {
		return o.handleStageFailure(ctx, handle, envelope, "scene", err)
	}

	if err := o.stories.SetStatus(ctx, envelope.StoryID, models.StoryStatusCompleted, ""); err != nil {
		return fmt.Errorf("finalize story: %w", err)
	}

	log.Info("story completed")
	return o.broker.Ack(ctx, handle)
}

// withSoftDeadline derives a context bounded by 80% of the visibility
// window counted from the original dequeue, per §4.G Cancellation: on
// expiry the worker stops picking up new scenes and lets redelivery
// reclaim rather than racing the hard visibility timeout.
func (o *Orchestrator) withSoftDeadline(ctx context.Context, handle *broker.Handle) (context.Context, context.CancelFunc) {
	if o.cfg.VisibilityTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	shrink := time.Duration(float64(o.cfg.VisibilityTimeout) * 0.2)
	soft := handle.Deadline.Add(-shrink)
	return context.WithDeadline(ctx, soft)
}

// startVisibilityRenewal runs a background ticker that extends handle's
// broker visibility every VisibilityTimeout/3 while a job is in flight
// (spec §4.E/§4.G): without this, a multi-scene job whose image/audio fan-out
// runs longer than the visibility timeout would be silently redelivered to a
// second worker while the first is still processing it. Returns a stop
// function to call once Process is done with handle.
func (o *Orchestrator) startVisibilityRenewal(ctx context.Context, handle *broker.Handle, log *zap.Logger) func() {
	if o.cfg.VisibilityTimeout <= 0 {
		return func() {}
	}
	interval := o.cfg.VisibilityTimeout / 3
	if interval <= 0 {
		return func() {}
	}

	renewCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := o.broker.RenewVisibility(renewCtx, handle, o.cfg.VisibilityTimeout); err != nil {
					log.Warn("renew visibility failed", zap.Error(err))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// missingScenes returns the plan scenes that do not yet have a persisted
// row with both media URLs populated (§4.G step 5, §9 Open Questions #2:
// a fully-populated Scene is frozen and never regenerated).
func (o *Orchestrator) missingScenes(ctx context.Context, storyID uuid.UUID, plan prompt.Plan) ([]prompt.PlanScene, error) {
	existing, err := o.scenes.ListScenes(ctx, storyID)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(existing))
	for _, s := range existing {
		if s.HasMedia() {
			done[s.Sequence] = true
		}
	}

	var missing []prompt.PlanScene
	for _, s := range plan.Scenes {
		if !done[s.Sequence] {
			missing = append(missing, s)
		}
	}
	return missing, nil
}
