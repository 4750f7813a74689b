package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const resultKeyPrefix = "namescout:result:"

// RedisAddr extracts host:port from a redis:// URL, falling back to the raw value.
func RedisAddr(redisURL string) string {
	if u, err := url.Parse(redisURL); err == nil && u.Host != "" {
		return u.Host
	}
	return redisURL
}

// AsynqClient wraps Asynq for task enqueueing and Redis for result storage and
// the recheck lock. Results are cached with a bounded TTL; pollers check the
// cache first and fall back to the Asynq inspector for in-flight states.
type AsynqClient struct {
	asynqClient *asynq.Client
	inspector   *asynq.Inspector
	redisClient *redis.Client
	queueName   string
	resultTTL   time.Duration
}

var _ Client = (*AsynqClient)(nil)

// NewAsynqClient creates the production queue client.
func NewAsynqClient(redisAddr, queueName string, resultTTL time.Duration) *AsynqClient {
	redisOpts := asynq.RedisClientOpt{Addr: redisAddr}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})

	return &AsynqClient{
		asynqClient: asynq.NewClient(redisOpts),
		inspector:   asynq.NewInspector(redisOpts),
		redisClient: rdb,
		queueName:   queueName,
		resultTTL:   resultTTL,
	}
}

// EnqueueCheck creates a domain:check task with UUID and the enqueue timestamp.
func (c *AsynqClient) EnqueueCheck(ctx context.Context, domain string, timeout time.Duration) (string, error) {
	payload := CheckPayload{Domain: domain, EnqueuedAtMs: time.Now().UnixMilli()}
	return c.enqueue(ctx, TaskTypeDomainCheck, payload, timeout)
}

// EnqueueRecheck creates a domain:recheck task carrying the stale batch.
func (c *AsynqClient) EnqueueRecheck(ctx context.Context, domains []string, timeout time.Duration) (string, error) {
	return c.enqueue(ctx, TaskTypeDomainRecheck, RecheckPayload{Domains: domains}, timeout)
}

func (c *AsynqClient) enqueue(ctx context.Context, taskType string, payload any, timeout time.Duration) (string, error) {
	id := uuid.NewString()

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	task := asynq.NewTask(taskType, data)
	opts := []asynq.Option{
		asynq.TaskID(id),
		asynq.Queue(c.queueName),
		asynq.Timeout(timeout),
		asynq.MaxRetry(0),
	}

	if _, err := c.asynqClient.EnqueueContext(ctx, task, opts...); err != nil {
		return "", fmt.Errorf("enqueue failed: %w", err)
	}

	return id, nil
}

// JobStatus checks the Redis result cache first, falls back to Asynq inspector.
// Cached result means the job finished; everything else is derived from the
// inspector's task state.
func (c *AsynqClient) JobStatus(ctx context.Context, jobID string) (*JobState, error) {
	resultJSON, err := c.redisClient.Get(ctx, resultKeyPrefix+jobID).Result()
	if err == nil {
		return &JobState{ID: jobID, Status: JobFinished, Result: json.RawMessage(resultJSON)}, nil
	}

	info, err := c.inspector.GetTaskInfo(c.queueName, jobID)
	if err != nil {
		return nil, ErrJobNotFound
	}

	state := &JobState{ID: jobID, Status: JobPending}
	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateRetry:
		state.Status = JobFailed
		state.Err = info.LastErr
	case asynq.TaskStateCompleted:
		state.Status = JobFinished
		state.Result = info.Result
	}

	return state, nil
}

// WriteResult stores a finished job's result JSON under a TTL-bounded key.
func (c *AsynqClient) WriteResult(ctx context.Context, jobID string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := c.redisClient.Set(ctx, resultKeyPrefix+jobID, data, c.resultTTL).Err(); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

// QueueDepth returns the count of jobs waiting to be claimed.
func (c *AsynqClient) QueueDepth(_ context.Context) (int, error) {
	qi, err := c.inspector.GetQueueInfo(c.queueName)
	if err != nil {
		return 0, fmt.Errorf("queue info: %w", err)
	}
	return qi.Pending, nil
}

// ActiveWorkers checks the Asynq inspector for connected worker processes.
func (c *AsynqClient) ActiveWorkers(_ context.Context) int {
	servers, err := c.inspector.Servers()
	if err != nil {
		return 0
	}
	return len(servers)
}

// SetIfAbsent is the recheck-lock primitive: SET NX with expiry.
func (c *AsynqClient) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.redisClient.SetNX(ctx, key, "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	return ok, nil
}

// Delete releases a lock key.
func (c *AsynqClient) Delete(ctx context.Context, key string) error {
	return c.redisClient.Del(ctx, key).Err()
}

// Close shuts down all connections.
func (c *AsynqClient) Close() error {
	var errs []error

	if err := c.inspector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("inspector: %w", err))
	}

	if err := c.redisClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis: %w", err))
	}

	if err := c.asynqClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("asynq: %w", err))
	}

	return errors.Join(errs...)
}
