package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"FinScan/pkg/logger"
)

// QueueMode defines the operation mode of the queue.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

// ErrDuplicate is returned by EnqueueOnce when the key was already used.
var ErrDuplicate = errors.New("queue: duplicate message")

// RedisQueue is a list-backed work queue with a sorted-set retry schedule
// and a dead letter list.
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    redis.UniversalClient
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	mode      QueueMode
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
	now       func() time.Time
}

// RedisQueueOption configures a RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces the queue keys. Empty keeps finscan:queue.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// NewRedisQueue fills zero config values with defaults. Nothing runs
// until Start.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client redis.UniversalClient, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if config.DedupTTL <= 0 {
		config.DedupTTL = 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	rq := &RedisQueue{
		logger:    lgr.With(logger.String("component", "queue")),
		config:    config,
		client:    client,
		jobs:      make(map[string]Job),
		mode:      mode,
		ctx:       ctx,
		cancel:    cancel,
		keyPrefix: "finscan:queue",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

func (r *RedisQueue) RegisterJobs(jobs []Job) {
	for _, job := range jobs {
		r.RegisterJob(job)
	}
}

// RegisterJob binds job to its Type. The first registration wins.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings redis and, unless producer-only, launches the workers and
// the retry mover.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	r.isRunning = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.mu.Lock()
		r.isRunning = false
		r.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.config.Workers; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
		r.wg.Add(1)
		go r.retryLoop()
	}
	r.logger.Info("redis queue started", logger.Int("workers", r.config.Workers), logger.String("mode", r.mode.String()))
	return nil
}

// Stop cancels the workers and waits for them until ctx expires.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message for msgType.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.isRunning
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return fmt.Errorf("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: payload, Timestamp: r.now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), string(data)).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	r.logger.Debug("message enqueued", logger.String("id", msg.ID), logger.String("type", msgType))
	return nil
}

// EnqueueOnce enqueues unless dedupKey was used within DedupTTL. Several
// schedulers can then trigger the same daily job safely.
func (r *RedisQueue) EnqueueOnce(ctx context.Context, msgType, dedupKey string, payload interface{}) error {
	ok, err := r.client.SetNX(ctx, r.dedupKey(msgType, dedupKey), "1", r.config.DedupTTL).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrDuplicate, msgType, dedupKey)
	}
	return r.Enqueue(ctx, msgType, payload)
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			r.processNext()
		}
	}
}

func (r *RedisQueue) processNext() {
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()

	result, err := r.client.BRPop(ctx, time.Second, r.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("brpop error", logger.Error(err))
		time.Sleep(time.Second)
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return
	}
	r.process(msg)
}

func (r *RedisQueue) process(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, rawPayload(msg.Payload))
	elapsed := time.Since(start)
	switch {
	case err == nil:
		r.logger.Info("message processed",
			logger.String("id", msg.ID), logger.String("job", job.Name()), logger.Duration("elapsed", elapsed))
	case errors.Is(err, context.Canceled):
		r.logger.Warn("message cancelled",
			logger.String("id", msg.ID), logger.String("job", job.Name()), logger.Duration("elapsed", elapsed))
	default:
		r.fail(msg, job, err)
	}
}

// rawPayload hands jobs JSON bytes so ParsePayload can decode them.
func rawPayload(payload interface{}) interface{} {
	switch payload.(type) {
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(payload)
		if err != nil {
			return payload
		}
		return json.RawMessage(b)
	}
	return payload
}

func (r *RedisQueue) fail(msg Message, job Job, err error) {
	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	msg.Attempts++
	data, merr := json.Marshal(msg)
	if merr != nil {
		r.logger.Error("marshal failed message", logger.Error(merr))
		return
	}

	if msg.Attempts <= r.config.RetryLimit {
		at := r.now().Add(r.config.RetryDelay)
		if err := r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: string(data)}).Err(); err != nil {
			r.logger.Error("zadd retry", logger.Error(err))
			return
		}
		r.logger.Info("scheduled retry", logger.String("id", msg.ID), logger.Int("attempt", msg.Attempts), logger.Any("retry_at", at))
		return
	}

	r.logger.Error("max retries reached", logger.String("id", msg.ID), logger.String("job", job.Name()))
	if err := r.client.LPush(context.Background(), r.deadLetterKey(), string(data)).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.moveDueRetries(r.ctx)
		}
	}
}

// moveDueRetries moves retries whose time has come back onto the queue.
func (r *RedisQueue) moveDueRetries(ctx context.Context) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch retry messages", logger.Error(err))
		}
		return
	}
	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, r.retryKey(), member)
		pipe.LPush(ctx, r.queueKey(), member)
		if _, err := pipe.Exec(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				r.logger.Error("move retry to queue", logger.Error(err))
			}
			return
		}
	}
}

func (r *RedisQueue) queueKey() string { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }

func (r *RedisQueue) dedupKey(msgType, key string) string {
	return r.keyPrefix + ":dedup:" + msgType + ":" + key
}
