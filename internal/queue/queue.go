package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	redisClient "aidledger/internal/redis"
)

// BackoffType selects how retry delays grow between attempts.
type BackoffType string

const (
	// BackoffFixed waits the same delay before every retry.
	BackoffFixed BackoffType = "fixed"
	// BackoffExponential doubles the delay on each retry.
	BackoffExponential BackoffType = "exponential"
)

// Options control retry behavior for an enqueued job.
type Options struct {
	Attempts int
	Backoff  BackoffType
	Delay    time.Duration
}

// Job is the durable unit of background work. It is serialized whole into
// Redis so workers can retry it without shared state.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     BackoffType     `json:"backoff"`
	DelayMs     int64           `json:"delay_ms"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// Status reports per-queue job counts.
type Status struct {
	Name      string `json:"name"`
	Waiting   int64  `json:"waiting"`
	Active    int64  `json:"active"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	Delayed   int64  `json:"delayed"`
}

// Queue is the producer half of the job infrastructure.
type Queue struct {
	redis *redisClient.Client
}

// New wires a Queue over the shared Redis client.
func New(rc *redisClient.Client) *Queue {
	return &Queue{redis: rc}
}

// Enqueue serializes a job onto the named queue and returns its handle.
func (q *Queue) Enqueue(ctx context.Context, queueName, jobType string, payload interface{}, opts Options) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := opts.Backoff
	if backoff == "" {
		backoff = BackoffFixed
	}
	job := &Job{
		ID:          uuid.NewString(),
		Queue:       queueName,
		Type:        jobType,
		Payload:     raw,
		MaxAttempts: attempts,
		Backoff:     backoff,
		DelayMs:     opts.Delay.Milliseconds(),
		EnqueuedAt:  time.Now().UTC(),
	}
	encoded, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if err := q.redis.PushJob(ctx, queueName, encoded); err != nil {
		return nil, err
	}
	log.Printf("queue %s: enqueued job %s type=%s", queueName, job.ID, jobType)
	return job, nil
}

// Status reads the counters for the named queue.
func (q *Queue) Status(ctx context.Context, queueName string) (Status, error) {
	waiting, delayed, active, completed, failed, err := q.redis.QueueCounts(ctx, queueName)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Name:      queueName,
		Waiting:   waiting,
		Active:    active,
		Completed: completed,
		Failed:    failed,
		Delayed:   delayed,
	}, nil
}

// nextDelay computes the backoff before the given retry attempt.
func (j *Job) nextDelay() time.Duration {
	base := time.Duration(j.DelayMs) * time.Millisecond
	if j.Backoff != BackoffExponential || j.Attempt <= 1 {
		return base
	}
	return base << (j.Attempt - 1)
}
