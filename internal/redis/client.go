package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goRedis "github.com/redis/go-redis/v9"

	"aidledger/internal/observability/metrics"
)

// promoteScript atomically moves due jobs from the delayed zset into the
// waiting list. KEYS[1] = delayed zset, KEYS[2] = waiting list,
// ARGV[1] = now in unix milliseconds.
const promoteScript = `
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, payload in ipairs(due) do
    redis.call('LPUSH', KEYS[2], payload)
    redis.call('ZREM', KEYS[1], payload)
end
return #due
`

// Client wraps go-redis and exposes helpers for queue keys and atomic
// delayed-job promotion.
type Client struct {
	rdb     *goRedis.Client
	promote *goRedis.Script
}

// New creates a Redis client and verifies connectivity.
func New(addr string) (*Client, error) {
	rdb := goRedis.NewClient(&goRedis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Client{
		rdb:     rdb,
		promote: goRedis.NewScript(promoteScript),
	}, nil
}

// NewWithClient wraps an existing go-redis client. Used by tests running
// against miniredis.
func NewWithClient(rdb *goRedis.Client) *Client {
	return &Client{rdb: rdb, promote: goRedis.NewScript(promoteScript)}
}

// Close shuts down the underlying Redis client.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// PushJob appends an encoded job to the waiting list of a queue.
func (c *Client) PushJob(ctx context.Context, queue string, payload []byte) error {
	start := time.Now()
	defer metrics.ObserveRedisOperation("push_job", time.Since(start))
	return c.rdb.LPush(ctx, c.WaitingKey(queue), payload).Err()
}

// PopJob blocks up to timeout for the next waiting job and atomically moves
// it into the queue's processing list, so a crash mid-handler never loses
// the payload. Returns nil with no error when the timeout elapses without a
// job.
func (c *Client) PopJob(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	start := time.Now()
	defer metrics.ObserveRedisOperation("pop_job", time.Since(start))
	res, err := c.rdb.BLMove(ctx, c.WaitingKey(queue), c.ProcessingKey(queue), "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, goRedis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(res), nil
}

// AckJob removes a payload from the processing list once its outcome is
// durably recorded (completed, retry scheduled or permanently failed).
func (c *Client) AckJob(ctx context.Context, queue string, payload []byte) error {
	start := time.Now()
	defer metrics.ObserveRedisOperation("ack_job", time.Since(start))
	return c.rdb.LRem(ctx, c.ProcessingKey(queue), 1, payload).Err()
}

// RequeueProcessing moves every payload left in the processing list back
// onto the waiting list. Run at worker startup to reclaim jobs orphaned by
// a crash or shutdown. Returns how many jobs were reclaimed.
func (c *Client) RequeueProcessing(ctx context.Context, queue string) (int, error) {
	start := time.Now()
	defer metrics.ObserveRedisOperation("requeue_processing", time.Since(start))
	moved := 0
	for {
		_, err := c.rdb.LMove(ctx, c.ProcessingKey(queue), c.WaitingKey(queue), "RIGHT", "RIGHT").Result()
		if err != nil {
			if errors.Is(err, goRedis.Nil) {
				return moved, nil
			}
			return moved, err
		}
		moved++
	}
}

// ScheduleJob parks an encoded job in the delayed zset until runAt.
func (c *Client) ScheduleJob(ctx context.Context, queue string, payload []byte, runAt time.Time) error {
	start := time.Now()
	defer metrics.ObserveRedisOperation("schedule_job", time.Since(start))
	return c.rdb.ZAdd(ctx, c.DelayedKey(queue), goRedis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: payload,
	}).Err()
}

// PromoteDueJobs moves delayed jobs whose run-at has passed into the waiting
// list. Returns how many jobs were promoted.
func (c *Client) PromoteDueJobs(ctx context.Context, queue string, now time.Time) (int, error) {
	start := time.Now()
	defer metrics.ObserveRedisOperation("promote_due_jobs", time.Since(start))
	keys := []string{c.DelayedKey(queue), c.WaitingKey(queue)}
	n, err := c.promote.Run(ctx, c.rdb, keys, now.UnixMilli()).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// IncrQueueCounter bumps one of the per-queue outcome counters.
func (c *Client) IncrQueueCounter(ctx context.Context, queue, counter string) error {
	start := time.Now()
	defer metrics.ObserveRedisOperation("incr_queue_counter", time.Since(start))
	return c.rdb.Incr(ctx, c.CounterKey(queue, counter)).Err()
}

// AdjustActive moves the active-job gauge for a queue by delta.
func (c *Client) AdjustActive(ctx context.Context, queue string, delta int64) error {
	start := time.Now()
	defer metrics.ObserveRedisOperation("adjust_active", time.Since(start))
	return c.rdb.IncrBy(ctx, c.CounterKey(queue, "active"), delta).Err()
}

// QueueCounts reads the full set of queue counters in one pipeline.
func (c *Client) QueueCounts(ctx context.Context, queue string) (waiting, delayed, active, completed, failed int64, err error) {
	start := time.Now()
	defer metrics.ObserveRedisOperation("queue_counts", time.Since(start))
	pipe := c.rdb.Pipeline()
	waitingCmd := pipe.LLen(ctx, c.WaitingKey(queue))
	delayedCmd := pipe.ZCard(ctx, c.DelayedKey(queue))
	activeCmd := pipe.Get(ctx, c.CounterKey(queue, "active"))
	completedCmd := pipe.Get(ctx, c.CounterKey(queue, "completed"))
	failedCmd := pipe.Get(ctx, c.CounterKey(queue, "failed"))
	if _, pipeErr := pipe.Exec(ctx); pipeErr != nil && !errors.Is(pipeErr, goRedis.Nil) {
		return 0, 0, 0, 0, 0, pipeErr
	}
	waiting = waitingCmd.Val()
	delayed = delayedCmd.Val()
	active, _ = activeCmd.Int64()
	completed, _ = completedCmd.Int64()
	failed, _ = failedCmd.Int64()
	return waiting, delayed, active, completed, failed, nil
}

// WaitingKey returns the list key holding runnable jobs for a queue.
func (c *Client) WaitingKey(queue string) string {
	return fmt.Sprintf("queue:%s:waiting", queue)
}

// DelayedKey returns the zset key holding backoff-delayed jobs.
func (c *Client) DelayedKey(queue string) string {
	return fmt.Sprintf("queue:%s:delayed", queue)
}

// ProcessingKey returns the list key holding jobs currently owned by a
// worker.
func (c *Client) ProcessingKey(queue string) string {
	return fmt.Sprintf("queue:%s:processing", queue)
}

// CounterKey returns the key for a per-queue counter such as "completed".
func (c *Client) CounterKey(queue, counter string) string {
	return fmt.Sprintf("queue:%s:%s", queue, counter)
}
