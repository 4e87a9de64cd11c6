package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storypipeline/internal/broker"
	"storypipeline/internal/models"
	"storypipeline/internal/provider"
)

// handleStageFailure implements §4.G's failure semantics for a stage
// error. Non-retriable errors from a pre-scene stage fail the Story
// immediately (no Scenes exist yet to lose). Everything else redelivers
// until the envelope's attempt counter reaches MaxAttempts, at which
// point the Story fails naming the last failing stage.
func (o *Orchestrator) handleStageFailure(ctx context.Context, handle *broker.Handle, envelope models.JobEnvelope, stage string, stageErr error) error {
	log := o.logger.With(zap.String("story_id", envelope.StoryID.String()), zap.String("stage", stage))

	if o.isImmediateFailure(stage, stageErr) {
		log.Warn("non-retriable stage failure, failing story immediately", zap.Error(stageErr))
		return o.failStory(ctx, handle, envelope, stage, stageErr)
	}

	nextAttempt := envelope.Attempt + 1
	if nextAttempt >= uint(o.cfg.MaxAttempts) {
		log.Warn("attempts exhausted, failing story", zap.Error(stageErr), zap.Uint("next_attempt", nextAttempt))
		return o.failStory(ctx, handle, envelope, stage, fmt.Errorf("attempts exhausted: %w", stageErr))
	}

	redelivered := envelope
	redelivered.Attempt = nextAttempt
	if err := o.broker.Nack(ctx, handle, redelivered, o.cfg.NackDelay); err != nil {
		return fmt.Errorf("nack job after %s failure: %w", stage, err)
	}
	if o.metrics != nil {
		o.metrics.JobsRequeued.WithLabelValues(stage).Inc()
	}
	log.Info("stage failed, redelivering job", zap.Error(stageErr), zap.Uint("next_attempt", nextAttempt))
	return nil
}

// isImmediateFailure reports whether stageErr should fail the Story
// without waiting for MaxAttempts. Per-scene stage work never qualifies:
// its failures accumulate and are always retried via redelivery until
// attempts are exhausted (§4.G).
func (o *Orchestrator) isImmediateFailure(stage string, stageErr error) bool {
	if stage == "scene" {
		return false
	}
	return provider.IsKind(stageErr, provider.KindBadRequest) || provider.IsKind(stageErr, provider.KindUpstreamMalformed)
}

// failStory transitions the Story to FAILED with a diagnostic naming the
// stage, then acks the handle to stop redelivery.
func (o *Orchestrator) failStory(ctx context.Context, handle *broker.Handle, envelope models.JobEnvelope, stage string, stageErr error) error {
	msg := fmt.Sprintf("%s: %v", stage, stageErr)
	const maxErrLen = 500
	if len(msg) > maxErrLen {
		msg = msg[:maxErrLen]
	}
	if err := o.stories.SetStatus(ctx, envelope.StoryID, models.StoryStatusFailed, msg); err != nil {
		o.logger.Error("failed to mark story failed", zap.Error(err), zap.String("story_id", envelope.StoryID.String()))
		return err
	}
	if o.metrics != nil {
		o.metrics.JobsFailed.WithLabelValues(stage).Inc()
	}
	return o.broker.Ack(ctx, handle)
}
