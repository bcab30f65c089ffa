package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goRedis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisClient "aidledger/internal/redis"
)

func newTestQueue(t *testing.T) (*Queue, *redisClient.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goRedis.NewClient(&goRedis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rc := redisClient.NewWithClient(rdb)
	return New(rc), rc
}

func waitForStatus(t *testing.T, q *Queue, name string, ok func(Status) bool) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := q.Status(context.Background(), name)
		require.NoError(t, err)
		if ok(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue %s never reached expected status, last: %+v", name, st)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestEnqueueDefaultsAndStatus(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "notifications", "send-email", map[string]string{"to": "a@b.c"}, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 1, job.MaxAttempts)
	assert.Equal(t, BackoffFixed, job.Backoff)

	_, err = q.Enqueue(ctx, "notifications", "send-sms", map[string]string{"to": "+123"}, Options{Attempts: 3})
	require.NoError(t, err)

	st, err := q.Status(ctx, "notifications")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Waiting)
	assert.Zero(t, st.Completed)
	assert.Zero(t, st.Failed)
}

func TestWorkerProcessesJobs(t *testing.T) {
	q, rc := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []string
	handler := func(_ context.Context, job *Job) error {
		mu.Lock()
		seen = append(seen, job.Type)
		mu.Unlock()
		return nil
	}

	w := NewWorker(rc, "notifications", handler, 2)
	go func() { _ = w.Run(ctx) }()

	_, err := q.Enqueue(ctx, "notifications", "send-email", map[string]string{"to": "a@b.c"}, Options{})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "notifications", "send-sms", map[string]string{"to": "+123"}, Options{})
	require.NoError(t, err)

	st := waitForStatus(t, q, "notifications", func(s Status) bool { return s.Completed == 2 })
	assert.Zero(t, st.Waiting)
	assert.Zero(t, st.Failed)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"send-email", "send-sms"}, seen)
}

func TestWorkerRetriesWithBackoffThenFails(t *testing.T) {
	q, rc := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var attempts []int
	handler := func(_ context.Context, job *Job) error {
		mu.Lock()
		attempts = append(attempts, job.Attempt)
		mu.Unlock()
		return errors.New("delivery refused")
	}

	w := NewWorker(rc, "notifications", handler, 1)
	go func() { _ = w.Run(ctx) }()

	_, err := q.Enqueue(ctx, "notifications", "send-email", map[string]string{"to": "a@b.c"},
		Options{Attempts: 2, Backoff: BackoffFixed, Delay: 10 * time.Millisecond})
	require.NoError(t, err)

	waitForStatus(t, q, "notifications", func(s Status) bool { return s.Failed == 1 })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1}, attempts)
}

func TestWorkerRecoversAfterRetry(t *testing.T) {
	q, rc := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	handler := func(_ context.Context, _ *Job) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}

	w := NewWorker(rc, "onchain", handler, 1)
	go func() { _ = w.Run(ctx) }()

	_, err := q.Enqueue(ctx, "onchain", "disburse", map[string]string{"claim_id": "c1"},
		Options{Attempts: 5, Backoff: BackoffExponential, Delay: 10 * time.Millisecond})
	require.NoError(t, err)

	st := waitForStatus(t, q, "onchain", func(s Status) bool { return s.Completed == 1 })
	assert.Zero(t, st.Failed)
	assert.Zero(t, st.Delayed)
}

func TestShutdownLeavesInFlightJobRecoverable(t *testing.T) {
	q, rc := newTestQueue(t)

	runCtx, cancel := context.WithCancel(context.Background())
	blocking := func(ctx context.Context, _ *Job) error {
		<-ctx.Done()
		return ctx.Err()
	}
	w := NewWorker(rc, "notifications", blocking, 1)
	done := make(chan struct{})
	go func() {
		_ = w.Run(runCtx)
		close(done)
	}()

	_, err := q.Enqueue(context.Background(), "notifications", "send-email", map[string]string{"to": "a@b.c"},
		Options{Attempts: 5, Backoff: BackoffFixed, Delay: 10 * time.Millisecond})
	require.NoError(t, err)

	waitForStatus(t, q, "notifications", func(s Status) bool { return s.Active == 1 })
	cancel()
	<-done

	// The interrupted job is neither completed, failed nor lost: it sits in
	// the processing list with its attempt count untouched and the active
	// gauge released.
	st, err := q.Status(context.Background(), "notifications")
	require.NoError(t, err)
	assert.Zero(t, st.Active)
	assert.Zero(t, st.Completed)
	assert.Zero(t, st.Failed)

	var mu sync.Mutex
	var attempts []int
	succeed := func(_ context.Context, job *Job) error {
		mu.Lock()
		attempts = append(attempts, job.Attempt)
		mu.Unlock()
		return nil
	}
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	w2 := NewWorker(rc, "notifications", succeed, 1)
	go func() { _ = w2.Run(ctx2) }()

	waitForStatus(t, q, "notifications", func(s Status) bool { return s.Completed == 1 })
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0}, attempts)
}

func TestHandlerPanicCountsAsJobFailure(t *testing.T) {
	q, rc := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(_ context.Context, job *Job) error {
		if job.Type == "explode" {
			panic("boom")
		}
		return nil
	}
	w := NewWorker(rc, "notifications", handler, 1)
	go func() { _ = w.Run(ctx) }()

	_, err := q.Enqueue(ctx, "notifications", "explode", nil, Options{})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "notifications", "send-email", map[string]string{"to": "a@b.c"}, Options{})
	require.NoError(t, err)

	// The panicking job fails permanently and the pool survives to process
	// the next job.
	st := waitForStatus(t, q, "notifications", func(s Status) bool { return s.Failed == 1 && s.Completed == 1 })
	assert.Zero(t, st.Active)

	// Both outcomes were acknowledged out of the processing list.
	n, err := rc.RequeueProcessing(context.Background(), "notifications")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNextDelayBackoff(t *testing.T) {
	fixed := &Job{Backoff: BackoffFixed, DelayMs: 100, Attempt: 3}
	assert.Equal(t, 100*time.Millisecond, fixed.nextDelay())

	exp := &Job{Backoff: BackoffExponential, DelayMs: 100}
	exp.Attempt = 1
	assert.Equal(t, 100*time.Millisecond, exp.nextDelay())
	exp.Attempt = 2
	assert.Equal(t, 200*time.Millisecond, exp.nextDelay())
	exp.Attempt = 4
	assert.Equal(t, 800*time.Millisecond, exp.nextDelay())
}
