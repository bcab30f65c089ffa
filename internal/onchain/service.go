package onchain

import (
	"context"
	"time"

	"aidledger/internal/queue"
)

// QueueName is the durable queue carrying chain-affecting jobs. Its workers
// run with concurrency 1: serializing against a single chain account avoids
// nonce and ordering races.
const QueueName = "onchain"

// Queue job types.
const (
	JobInitEscrow  = "init_escrow"
	JobCreateClaim = "create_claim"
	JobDisburse    = "disburse"
)

var enqueueOptions = queue.Options{
	Attempts: 5,
	Backoff:  queue.BackoffExponential,
	Delay:    10 * time.Second,
}

// Service enqueues on-chain operations for background execution.
type Service struct {
	queue *queue.Queue
}

// NewService wires the on-chain producer over the shared queue.
func NewService(q *queue.Queue) *Service {
	return &Service{queue: q}
}

// EnqueueInitEscrow schedules escrow initialization.
func (s *Service) EnqueueInitEscrow(ctx context.Context, params InitEscrowParams) (*queue.Job, error) {
	return s.queue.Enqueue(ctx, QueueName, JobInitEscrow, params, enqueueOptions)
}

// EnqueueCreateClaim schedules on-chain claim package creation.
func (s *Service) EnqueueCreateClaim(ctx context.Context, params CreateClaimParams) (*queue.Job, error) {
	return s.queue.Enqueue(ctx, QueueName, JobCreateClaim, params, enqueueOptions)
}

// EnqueueDisburse schedules a background disbursement.
func (s *Service) EnqueueDisburse(ctx context.Context, params DisburseParams) (*queue.Job, error) {
	return s.queue.Enqueue(ctx, QueueName, JobDisburse, params, enqueueOptions)
}
