package broker

import (
	"encoding/json"
	"errors"
	"fmt"

	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storypipeline/internal/models"
)

// redisBroker implements Client over a single *redis.Client. Each queue is
// three keys: a List of pending story IDs (FIFO via RPush/BLPop), a String
// per job holding the durable envelope, and a Sorted Set of in-flight story
// IDs scored by their visibility deadline.
type redisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroker builds a Client backed by client.
func NewRedisBroker(client *redis.Client, logger *zap.Logger) Client {
	return &redisBroker{client: client, logger: logger.Named("RedisBroker")}
}

func pendingKey(queueName string) string    { return fmt.Sprintf("queue:%s:pending", queueName) }
func invisibleKey(queueName string) string  { return fmt.Sprintf("queue:%s:invisible", queueName) }
func jobKey(queueName, storyID string) string { return fmt.Sprintf("queue:%s:job:%s", queueName, storyID) }

func (b *redisBroker) Enqueue(ctx context.Context, queueName string, envelope models.JobEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	pipe := b.client.Pipeline()
	pipe.Set(ctx, jobKey(queueName, envelope.StoryID.String()), payload, 0)
	pipe.RPush(ctx, pendingKey(queueName), envelope.StoryID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Error("failed to enqueue job", zap.Error(err), zap.String("story_id", envelope.StoryID.String()))
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (b *redisBroker) Dequeue(ctx context.Context, queueName string, visibilityTimeout, pollTimeout time.Duration) (*Handle, *models.JobEnvelope, error) {
	result, err := b.client.BLPop(ctx, pollTimeout, pendingKey(queueName)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("blpop pending queue: %w", err)
	}
	storyID := result[1]

	payload, err := b.client.Get(ctx, jobKey(queueName, storyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Job record is gone (acked concurrently, or stale). Drop silently.
		b.logger.Warn("dequeued story ID with no job payload", zap.String("story_id", storyID))
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get job payload: %w", err)
	}

	var envelope models.JobEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	deadline := time.Now().Add(visibilityTimeout)
	if err := b.client.ZAdd(ctx, invisibleKey(queueName), redis.Z{Score: float64(deadline.Unix()), Member: storyID}).Err(); err != nil {
		return nil, nil, fmt.Errorf("mark invisible: %w", err)
	}

	return &Handle{QueueName: queueName, StoryID: storyID, Deadline: deadline}, &envelope, nil
}

func (b *redisBroker) Ack(ctx context.Context, handle *Handle) error {
	pipe := b.client.Pipeline()
	pipe.ZRem(ctx, invisibleKey(handle.QueueName), handle.StoryID)
	pipe.Del(ctx, jobKey(handle.QueueName, handle.StoryID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

func (b *redisBroker) Nack(ctx context.Context, handle *Handle, envelope models.JobEnvelope, requeueDelay time.Duration) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if requeueDelay <= 0 {
		pipe := b.client.Pipeline()
		pipe.Set(ctx, jobKey(handle.QueueName, handle.StoryID), payload, 0)
		pipe.ZRem(ctx, invisibleKey(handle.QueueName), handle.StoryID)
		pipe.RPush(ctx, pendingKey(handle.QueueName), handle.StoryID)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("nack job (immediate requeue): %w", err)
		}
		return nil
	}

	deadline := time.Now().Add(requeueDelay)
	pipe := b.client.Pipeline()
	pipe.Set(ctx, jobKey(handle.QueueName, handle.StoryID), payload, 0)
	pipe.ZAdd(ctx, invisibleKey(handle.QueueName), redis.Z{Score: float64(deadline.Unix()), Member: handle.StoryID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nack job (delayed requeue): %w", err)
	}
	return nil
}

func (b *redisBroker) RenewVisibility(ctx context.Context, handle *Handle, visibilityTimeout time.Duration) error {
	deadline := time.Now().Add(visibilityTimeout)
	res := b.client.ZAddArgs(ctx, invisibleKey(handle.QueueName), redis.ZAddArgs{
		XX:      true,
		GT:      true,
		Members: []redis.Z{{Score: float64(deadline.Unix()), Member: handle.StoryID}},
	})
	if err := res.Err(); err != nil {
		return fmt.Errorf("renew visibility: %w", err)
	}
	return nil
}

func (b *redisBroker) ReclaimExpired(ctx context.Context, queueName string) (int, error) {
	now := float64(time.Now().Unix())
	expired, err := b.client.ZRangeByScore(ctx, invisibleKey(queueName), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired handles: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	pipe := b.client.Pipeline()
	for _, storyID := range expired {
		pipe.ZRem(ctx, invisibleKey(queueName), storyID)
		pipe.RPush(ctx, pendingKey(queueName), storyID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("reclaim expired handles: %w", err)
	}

	b.logger.Info("reclaimed expired visibility handles", zap.Int("count", len(expired)), zap.String("queue", queueName))
	return len(expired), nil
}
