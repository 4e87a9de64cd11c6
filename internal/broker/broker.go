// Package broker implements the Broker Client (§4.E): a Redis-backed
// durable queue with visibility-timeout semantics, analogous to SQS.
// Grounded on the teacher's go-redis usage in
// shared/database/redis_token_repository.go (pipelined, atomic multi-key
// operations) and on the RabbitMQ DLX/QoS idiom of
// story-generator/cmd/worker/main.go for the dead-letter-after-max-attempts
// shape, re-expressed over Redis primitives instead of a second broker.
package broker

import (
	"context"
	"time"

	"storypipeline/internal/models"
)

// Handle identifies one claimed (dequeued, currently-invisible) job.
type Handle struct {
	QueueName string
	StoryID   string
	// Deadline is the instant the visibility timeout expires and the job
	// becomes eligible for redelivery if not acked or nacked first.
	Deadline time.Time
}

// Client is the Broker Client contract (§4.E).
type Client interface {
	// Enqueue durably persists a job envelope before returning.
	Enqueue(ctx context.Context, queueName string, envelope models.JobEnvelope) error

	// Dequeue blocks up to pollTimeout waiting for a job; returns
	// (nil, nil, nil) on a poll with no job available. The returned
	// handle's visibility deadline is now + visibilityTimeout.
	Dequeue(ctx context.Context, queueName string, visibilityTimeout, pollTimeout time.Duration) (*Handle, *models.JobEnvelope, error)

	// Ack removes the job from the queue permanently.
	Ack(ctx context.Context, handle *Handle) error

	// Nack returns the job to the queue, visible again after requeueDelay
	// (zero means immediately visible). envelope replaces the persisted job
	// payload first, so a caller-incremented Attempt counter survives
	// redelivery (§4.E/§4.G).
	Nack(ctx context.Context, handle *Handle, envelope models.JobEnvelope, requeueDelay time.Duration) error

	// RenewVisibility extends handle's deadline by visibilityTimeout from
	// now; used by the worker's periodic renewal loop while a job is in
	// flight (§4.E).
	RenewVisibility(ctx context.Context, handle *Handle, visibilityTimeout time.Duration) error

	// ReclaimExpired scans for handles whose visibility has lapsed without
	// an ack/nack and returns them to the pending queue. Call periodically
	// from a single maintenance goroutine per deployment.
	ReclaimExpired(ctx context.Context, queueName string) (int, error)
}
