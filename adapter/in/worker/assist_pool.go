package worker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"assist_server/pkg/apperr"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
)

// Acknowledger settles stream entries once the pool is done with them.
type Acknowledger interface {
	Ack(ctx context.Context, stream, id string) error
	DeadLetter(ctx context.Context, stream, id, reason string) error
}

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers          int
	BatchSize        int
	WorkerChanSize   int
	RatePerSecond    int
	JobTimeout       time.Duration
	JobTimeoutByType map[JobType]time.Duration
	// MaxRetries bounds in-process retries of transient failures. After
	// that the stream entry stays pending for the consumer to reclaim.
	MaxRetries     int
	RetryBaseDelay time.Duration
	MetricsEvery   time.Duration
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        8,
		BatchSize:      1,
		WorkerChanSize: 16,
		RatePerSecond:  100,
		JobTimeout:     60 * time.Second,
		JobTimeoutByType: map[JobType]time.Duration{
			JobDocumentIndex: 5 * time.Minute, // extraction + batched embedding
		},
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		MetricsEvery:   time.Minute,
	}
}

// Pool runs messages on a go-pkgz/pool worker group and settles their
// stream entries.
type Pool struct {
	handler *Handler
	acker   Acknowledger
	config  *PoolConfig

	pool *pool.WorkerGroup[*Message]

	ctx    context.Context
	cancel context.CancelFunc

	metrics     *PoolMetrics
	log         zerolog.Logger
	rateLimiter *RateLimiter

	retries sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// PoolMetrics holds pool metrics.
type PoolMetrics struct {
	JobsProcessed  int64
	JobsFailed     int64
	JobsDropped    int64
	JobsRetried    int64
	JobsPending    int64 // left pending for redelivery
	AvgProcessTime int64 // milliseconds
	QueueSize      int32
}

type messageWorker struct {
	pool *Pool
}

// Do implements pool.Worker. Errors are settled inside processJob, so the
// group never sees one.
func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	w.pool.processJob(ctx, msg)
	return nil
}

func NewPool(handler *Handler, acker Acknowledger, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 100
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler:     handler,
		acker:       acker,
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
		metrics:     &PoolMetrics{},
		log:         log.With().Str("component", "worker_pool").Logger(),
		rateLimiter: NewRateLimiter(config.RatePerSecond, time.Second),
	}
}

// Start starts the worker pool.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	p.pool = pool.New[*Message](p.config.Workers, &messageWorker{pool: p}).
		WithBatchSize(p.config.BatchSize).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()

	if err := p.pool.Go(p.ctx); err != nil {
		return err
	}
	p.started = true

	if p.config.MetricsEvery > 0 {
		go p.metricsReporter()
	}

	p.log.Info().
		Int("workers", p.config.Workers).
		Int("batch_size", p.config.BatchSize).
		Msg("worker pool started")
	return nil
}

// Stop waits for in-flight jobs and stops the pool. Scheduled retries that
// have not fired yet are abandoned; their entries remain pending.
func (p *Pool) Stop() {
	p.log.Info().Msg("stopping worker pool...")

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	wg := p.pool
	p.mu.Unlock()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()

	if err := wg.Close(closeCtx); err != nil {
		p.log.Warn().Err(err).Msg("error closing pool")
	}
	p.cancel()
	p.retries.Wait()

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("worker pool stopped")
}

// Submit queues a message. It returns false when the pool is stopped or
// rate limited; stream entries then stay pending.
func (p *Pool) Submit(msg *Message) bool {
	p.mu.Lock()
	if !p.started || p.pool == nil {
		p.mu.Unlock()
		return false
	}
	wg := p.pool
	p.mu.Unlock()

	if !p.rateLimiter.Allow() {
		atomic.AddInt64(&p.metrics.JobsDropped, 1)
		p.log.Warn().
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Msg("job dropped due to rate limiting")
		return false
	}

	atomic.AddInt32(&p.metrics.QueueSize, 1)
	wg.Submit(msg)
	return true
}

func (p *Pool) getJobTimeout(jobType JobType) time.Duration {
	if timeout, ok := p.config.JobTimeoutByType[jobType]; ok {
		return timeout
	}
	return p.config.JobTimeout
}

// processJob runs one message and settles it:
// success acks, a permanent failure dead-letters, a transient failure is
// retried with backoff and then left pending.
func (p *Pool) processJob(ctx context.Context, msg *Message) {
	start := time.Now()
	defer atomic.AddInt32(&p.metrics.QueueSize, -1)

	timeout := p.getJobTimeout(msg.Type)
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	err := p.handler.Process(jobCtx, msg)
	if err == nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		err = context.DeadlineExceeded
	}
	cancel()

	p.updateAvgProcessTime(time.Since(start).Milliseconds())

	if err == nil {
		atomic.AddInt64(&p.metrics.JobsProcessed, 1)
		p.ack(msg)
		return
	}

	log := p.log.With().
		Err(err).
		Str("job_id", msg.ID).
		Str("job_type", msg.Type).
		Int("retries", msg.Retries).
		Int64("attempts", msg.Attempts).
		Logger()

	if apperr.IsPermanent(err) {
		atomic.AddInt64(&p.metrics.JobsFailed, 1)
		log.Warn().Msg("job failed permanently")
		p.deadLetter(msg, err)
		return
	}

	if msg.Retries < p.config.MaxRetries {
		msg.Retries++
		atomic.AddInt64(&p.metrics.JobsRetried, 1)
		backoff := p.backoff(msg.Retries)
		log.Warn().Dur("backoff", backoff).Msg("job failed, retrying")
		p.scheduleRetry(msg, backoff)
		return
	}

	atomic.AddInt64(&p.metrics.JobsPending, 1)
	log.Error().Msg("job retries exhausted, leaving entry pending")
}

// backoff is base * 2^retries plus up to 500ms of jitter.
func (p *Pool) backoff(retries int) time.Duration {
	base := p.config.RetryBaseDelay * time.Duration(1<<retries)
	return base + time.Duration(rand.Intn(500))*time.Millisecond
}

func (p *Pool) scheduleRetry(msg *Message, backoff time.Duration) {
	p.retries.Add(1)
	go func() {
		defer p.retries.Done()
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-p.ctx.Done():
		case <-timer.C:
			if !p.Submit(msg) {
				atomic.AddInt64(&p.metrics.JobsPending, 1)
			}
		}
	}()
}

func (p *Pool) ack(msg *Message) {
	if !msg.fromStream() || p.acker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.acker.Ack(ctx, msg.Stream, msg.StreamID); err != nil {
		p.log.Error().Err(err).Str("job_id", msg.ID).Msg("failed to ack job")
	}
}

func (p *Pool) deadLetter(msg *Message, cause error) {
	if !msg.fromStream() || p.acker == nil {
		return
	}
	reason := cause.Error()
	if appErr := apperr.AsAppError(cause); appErr != nil {
		reason = appErr.Code + ": " + appErr.Message
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.acker.DeadLetter(ctx, msg.Stream, msg.StreamID, reason); err != nil {
		p.log.Error().Err(err).Str("job_id", msg.ID).Msg("failed to dead-letter job")
	}
}

func (p *Pool) updateAvgProcessTime(elapsed int64) {
	current := atomic.LoadInt64(&p.metrics.AvgProcessTime)
	if current == 0 {
		atomic.StoreInt64(&p.metrics.AvgProcessTime, elapsed)
	} else {
		atomic.StoreInt64(&p.metrics.AvgProcessTime, (current*9+elapsed)/10)
	}
}

func (p *Pool) metricsReporter() {
	ticker := time.NewTicker(p.config.MetricsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			m := p.GetMetrics()
			p.log.Info().
				Int64("processed", m.JobsProcessed).
				Int64("failed", m.JobsFailed).
				Int64("dropped", m.JobsDropped).
				Int64("retried", m.JobsRetried).
				Int64("pending", m.JobsPending).
				Int64("avg_process_ms", m.AvgProcessTime).
				Int32("queue_size", m.QueueSize).
				Msg("worker pool metrics")
		}
	}
}

// GetMetrics returns current pool metrics.
func (p *Pool) GetMetrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed:  atomic.LoadInt64(&p.metrics.JobsProcessed),
		JobsFailed:     atomic.LoadInt64(&p.metrics.JobsFailed),
		JobsDropped:    atomic.LoadInt64(&p.metrics.JobsDropped),
		JobsRetried:    atomic.LoadInt64(&p.metrics.JobsRetried),
		JobsPending:    atomic.LoadInt64(&p.metrics.JobsPending),
		AvgProcessTime: atomic.LoadInt64(&p.metrics.AvgProcessTime),
		QueueSize:      atomic.LoadInt32(&p.metrics.QueueSize),
	}
}

// RateLimiter is a lock-free token bucket.
type RateLimiter struct {
	tokens       int64
	maxTokens    int64
	refillRate   int64
	intervalNs   int64
	lastRefillNs int64
}

func NewRateLimiter(ratePerSecond int, interval time.Duration) *RateLimiter {
	tokens := int64(ratePerSecond)
	return &RateLimiter{
		tokens:       tokens,
		maxTokens:    tokens,
		refillRate:   tokens,
		intervalNs:   int64(interval),
		lastRefillNs: time.Now().UnixNano(),
	}
}

func (r *RateLimiter) Allow() bool {
	now := time.Now().UnixNano()
	lastRefill := atomic.LoadInt64(&r.lastRefillNs)

	if elapsed := now - lastRefill; elapsed >= r.intervalNs {
		toAdd := (elapsed / r.intervalNs) * atomic.LoadInt64(&r.refillRate)
		if atomic.CompareAndSwapInt64(&r.lastRefillNs, lastRefill, now) {
			for {
				current := atomic.LoadInt64(&r.tokens)
				next := current + toAdd
				if maxTokens := atomic.LoadInt64(&r.maxTokens); next > maxTokens {
					next = maxTokens
				}
				if atomic.CompareAndSwapInt64(&r.tokens, current, next) {
					break
				}
			}
		}
	}

	for {
		current := atomic.LoadInt64(&r.tokens)
		if current <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&r.tokens, current, current-1) {
			return true
		}
	}
}
