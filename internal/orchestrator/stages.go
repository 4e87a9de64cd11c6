package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"storypipeline/internal/models"
	"storypipeline/internal/prompt"
	"storypipeline/internal/provider/audio"
	"storypipeline/internal/provider/image"
	"storypipeline/internal/provider/text"
)

// runPlanStage builds and calls the story-plan prompt (§4.D.1, §4.G step 3).
func (o *Orchestrator) runPlanStage(ctx context.Context, envelope models.JobEnvelope) (prompt.Plan, error) {
	req := text.Request{
		Prompt:      prompt.BuildPlanPrompt(envelope.Title, envelope.Prompt, o.cfg.SceneCountHint),
		Model:       o.cfg.TextModel,
		Temperature: o.cfg.TextTemperature,
		MaxTokens:   o.cfg.TextMaxTokens,
	}
	raw, err := o.text.GenerateText(ctx, req)
	if err != nil {
		return prompt.Plan{}, err
	}
	return prompt.ParsePlan(raw)
}

// runSharedStyleStage builds and calls the visual-profile and base-style
// prompts concurrently (§4.G step 4: both depend only on the plan).
func (o *Orchestrator) runSharedStyleStage(ctx context.Context, plan prompt.Plan) (prompt.VisualProfile, prompt.BaseStyle, error) {
	var (
		visual    prompt.VisualProfile
		base      prompt.BaseStyle
		visualErr error
		baseErr   error
		wg        sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		raw, err := o.text.GenerateText(ctx, text.Request{
			Prompt:      prompt.BuildVisualProfilePrompt(plan),
			Model:       o.cfg.TextModel,
			Temperature: o.cfg.TextTemperature,
			MaxTokens:   o.cfg.TextMaxTokens,
		})
		if err != nil {
			visualErr = err
			return
		}
		visual, visualErr = prompt.ParseVisualProfile(raw)
	}()
	go func() {
		defer wg.Done()
		raw, err := o.text.GenerateText(ctx, text.Request{
			Prompt:      prompt.BuildBaseStylePrompt(plan),
			Model:       o.cfg.TextModel,
			Temperature: o.cfg.TextTemperature,
			MaxTokens:   o.cfg.TextMaxTokens,
		})
		if err != nil {
			baseErr = err
			return
		}
		base, baseErr = prompt.ParseBaseStyle(raw)
	}()
	wg.Wait()

	if visualErr != nil {
		return prompt.VisualProfile{}, prompt.BaseStyle{}, visualErr
	}
	if baseErr != nil {
		return prompt.VisualProfile{}, prompt.BaseStyle{}, baseErr
	}
	return visual, base, nil
}

// sceneError pairs a failed scene's sequence with the stage that failed.
type sceneError struct {
	sequence int
	stage    string
	err      error
}

func (e sceneError) Error() string {
	return fmt.Sprintf("scene %d: %s: %v", e.sequence, e.stage, e.err)
}

// runSceneFanout drives §4.G step 6: one goroutine per missing scene,
// bounded to cfg.SceneParallelism concurrent slots by a semaphore
// channel, mirroring the teacher's taskmanager WaitGroup pattern. Any
// per-scene failures are collected and returned together rather than
// aborting the other scenes' independent work.
func (o *Orchestrator) runSceneFanout(ctx context.Context, storyID uuid.UUID, plan prompt.Plan, visual prompt.VisualProfile, base prompt.BaseStyle, missing []prompt.PlanScene) error {
	if len(missing) == 0 {
		return nil
	}

	sem := make(chan struct{}, o.cfg.SceneParallelism)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
	)

	for _, scene := range missing {
		scene := scene
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if o.metrics != nil {
				o.metrics.ScenesActive.Inc()
				defer o.metrics.ScenesActive.Dec()
			}
			start := time.Now()
			err := o.processScene(ctx, storyID, plan, visual, base, scene)
			if o.metrics != nil {
				outcome := "success"
				if err != nil {
					outcome = "failure"
				}
				o.metrics.SceneDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, sceneError{sequence: scene.Sequence, stage: stageOf(err), err: err})
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errs) == 0 {
		return nil
	}
	combined := errs[0]
	for _, e := range errs[1:] {
		combined = fmt.Errorf("%w; %s", combined, e.Error())
	}
	return combined
}

// processScene runs one scene's moment→image (sequential) and audio
// (parallel with moment→image) sub-stages, then persists the scene row
// (§4.G step 6 a–e).
func (o *Orchestrator) processScene(ctx context.Context, storyID uuid.UUID, plan prompt.Plan, visual prompt.VisualProfile, base prompt.BaseStyle, scene prompt.PlanScene) error {
	var (
		imageURL, audioURL string
		imageErr, audioErr error
		wg                 sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		imageURL, imageErr = o.generateSceneImage(ctx, storyID, plan, visual, base, scene)
	}()
	go func() {
		defer wg.Done()
		audioURL, audioErr = o.generateSceneAudio(ctx, storyID, scene)
	}()
	wg.Wait()

	if imageErr != nil {
		return taggedErr{stage: "image", err: imageErr}
	}
	if audioErr != nil {
		return taggedErr{stage: "audio", err: audioErr}
	}

	row := &models.Scene{
		ID:          uuid.New(),
		StoryID:     storyID,
		Sequence:    scene.Sequence,
		Title:       scene.Title,
		Text:        scene.Text,
		ImagePrompt: scene.ImagePrompt,
		ImageURL:    imageURL,
		AudioURL:    audioURL,
	}
	if err := o.scenes.InsertScene(ctx, row); err != nil {
		// A unique-constraint conflict on (story_id, sequence) means a
		// concurrent redelivery already persisted this scene: idempotent
		// no-op, per §4.G Failure semantics.
		if errors.Is(err, models.ErrSceneConflict) {
			return nil
		}
		return taggedErr{stage: "persist", err: err}
	}
	return nil
}

func (o *Orchestrator) generateSceneImage(ctx context.Context, storyID uuid.UUID, plan prompt.Plan, visual prompt.VisualProfile, base prompt.BaseStyle, scene prompt.PlanScene) (string, error) {
	raw, err := o.text.GenerateText(ctx, text.Request{
		Prompt:      prompt.BuildSceneMomentPrompt(plan, scene.Sequence, visual, base),
		Model:       o.cfg.TextModel,
		Temperature: o.cfg.TextTemperature,
		MaxTokens:   o.cfg.TextMaxTokens,
	})
	if err != nil {
		return "", err
	}
	moment, err := prompt.ParseSceneMoment(raw)
	if err != nil {
		return "", err
	}

	finalPrompt := prompt.ComposeImagePrompt(base, visual, moment, scene.Text, scene.ImagePrompt)

	bytes, err := o.image.GenerateImage(ctx, image.Request{
		Prompt: finalPrompt,
		Width:  o.cfg.ImageWidth,
		Height: o.cfg.ImageHeight,
		Steps:  o.cfg.ImageSteps,
	})
	if err != nil {
		return "", err
	}

	return o.blob.PutImage(ctx, storyID, scene.Sequence, bytes)
}

func (o *Orchestrator) generateSceneAudio(ctx context.Context, storyID uuid.UUID, scene prompt.PlanScene) (string, error) {
	bytes, err := o.audio.GenerateAudio(ctx, audio.Request{
		Text:    scene.Text,
		VoiceID: o.cfg.AudioVoiceID,
		HQ:      o.cfg.AudioHQ,
	})
	if err != nil {
		return "", err
	}
	return o.blob.PutAudio(ctx, storyID, scene.Sequence, bytes)
}

// taggedErr names which per-scene sub-stage produced an error, so
// failure messages and classification can reference it (§4.G Failure
// semantics: "error naming the last failing stage and scene index").
type taggedErr struct {
	stage string
	err   error
}

func (e taggedErr) Error() string { return e.stage + ": " + e.err.Error() }
func (e taggedErr) Unwrap() error { return e.err }

func stageOf(err error) string {
	var te taggedErr
	if errors.As(err, &te) {
		return te.stage
	}
	return "scene"
}
