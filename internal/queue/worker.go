package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"aidledger/internal/observability/metrics"
	redisClient "aidledger/internal/redis"
)

const (
	popTimeout      = time.Second
	promoteInterval = 500 * time.Millisecond
)

// Handler processes a single job. Returning an error schedules a retry until
// the job's attempts are exhausted.
type Handler func(ctx context.Context, job *Job) error

// Worker drains one named queue with a fixed-size pool of goroutines.
// Workers are registered explicitly at startup with their handler and
// concurrency, one per queue.
type Worker struct {
	queueName   string
	redis       *redisClient.Client
	handler     Handler
	concurrency int
}

// NewWorker builds a worker pool for the named queue.
func NewWorker(rc *redisClient.Client, queueName string, handler Handler, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queueName:   queueName,
		redis:       rc,
		handler:     handler,
		concurrency: concurrency,
	}
}

// Run consumes jobs until the context is canceled. Jobs left in the
// processing list by a previous run are requeued first.
func (w *Worker) Run(ctx context.Context) error {
	if n, err := w.redis.RequeueProcessing(ctx, w.queueName); err != nil {
		log.Printf("queue %s: requeue of in-flight jobs failed: %v", w.queueName, err)
	} else if n > 0 {
		log.Printf("queue %s: requeued %d in-flight jobs from previous run", w.queueName, n)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promoteLoop(ctx)
	}()

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consumeLoop(ctx)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// promoteLoop periodically moves due delayed jobs back into the waiting list.
func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := w.redis.PromoteDueJobs(ctx, w.queueName, now); err != nil && ctx.Err() == nil {
				log.Printf("queue %s: promote failed: %v", w.queueName, err)
			}
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := w.redis.PopJob(ctx, w.queueName, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("queue %s: pop failed: %v", w.queueName, err)
			time.Sleep(popTimeout)
			continue
		}
		if payload == nil {
			continue
		}
		var job Job
		if err := json.Unmarshal(payload, &job); err != nil {
			log.Printf("queue %s: dropping undecodable job: %v", w.queueName, err)
			_ = w.redis.AckJob(context.WithoutCancel(ctx), w.queueName, payload)
			continue
		}
		w.process(ctx, payload, &job)
	}
}

// process runs one job and durably records its outcome. Outcome writes use a
// non-canceled context: a shutdown arriving mid-handler must not lose a
// retry or leak the active gauge. The raw payload stays in the processing
// list until the outcome is recorded, so a crash at any point leaves the job
// recoverable by the next run's requeue.
func (w *Worker) process(ctx context.Context, raw []byte, job *Job) {
	outcomeCtx := context.WithoutCancel(ctx)
	_ = w.redis.AdjustActive(outcomeCtx, w.queueName, 1)
	defer func() {
		_ = w.redis.AdjustActive(outcomeCtx, w.queueName, -1)
	}()

	log.Printf("queue %s: processing job %s type=%s attempt %d of %d",
		w.queueName, job.ID, job.Type, job.Attempt+1, job.MaxAttempts)

	start := time.Now()
	err := w.runHandler(ctx, job)
	if err == nil {
		metrics.ObserveQueueJob(w.queueName, job.Type, "success", time.Since(start))
		_ = w.redis.IncrQueueCounter(outcomeCtx, w.queueName, "completed")
		_ = w.redis.AckJob(outcomeCtx, w.queueName, raw)
		return
	}
	metrics.ObserveQueueJob(w.queueName, job.Type, "failed", time.Since(start))

	if ctx.Err() != nil {
		// Shutdown interrupted the handler. Leave the payload in the
		// processing list without burning an attempt; the next run
		// requeues it.
		log.Printf("queue %s: job %s interrupted by shutdown, left for requeue", w.queueName, job.ID)
		return
	}

	job.Attempt++
	if job.Attempt < job.MaxAttempts {
		delay := job.nextDelay()
		encoded, encErr := json.Marshal(job)
		if encErr == nil {
			if schedErr := w.redis.ScheduleJob(outcomeCtx, w.queueName, encoded, time.Now().Add(delay)); schedErr == nil {
				_ = w.redis.AckJob(outcomeCtx, w.queueName, raw)
				log.Printf("queue %s: job %s failed (%v), retrying in %s", w.queueName, job.ID, err, delay)
				return
			}
		}
	}
	_ = w.redis.IncrQueueCounter(outcomeCtx, w.queueName, "failed")
	_ = w.redis.AckJob(outcomeCtx, w.queueName, raw)
	log.Printf("queue %s: job %s permanently failed after %d attempts: %v", w.queueName, job.ID, job.Attempt, err)
}

// runHandler isolates handler panics: a panicking job must count as a job
// failure, not take down every worker pool in the process.
func (w *Worker) runHandler(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler(ctx, job)
}
