package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"assist_server/adapter/in/worker"
	"assist_server/adapter/out/messaging"
	"assist_server/config"
	"assist_server/pkg/logger"

	"github.com/rs/zerolog"
)

const consumerGroup = "assist-workers"

type Worker struct {
	pool     *worker.Pool
	consumer *messaging.Consumer
	deps     *Dependencies
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	zlog     zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := deps.Log.With().Str("component", "worker").Logger()

	poolCfg := poolConfig(cfg)

	consumer := messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:                consumerGroup,
		Consumer:             cfg.WorkerID,
		Streams:              []string{messaging.StreamDocIndex},
		Logger:               zlog,
		PendingCheckInterval: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
		PendingIdleTime:      pendingIdleTime(poolCfg),
		MaxRetries:           cfg.ConsumerMaxRetries,
		ReadCount:            int64(cfg.ConsumerBatchSize),
		Block:                time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
	})

	handler := worker.NewHandler(worker.NewIndexProcessor(deps.DocumentService))
	pool := worker.NewPool(handler, consumer, poolCfg, zlog)
	consumer.SetHandler(worker.NewStreamHandler(pool))

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		pool:     pool,
		consumer: consumer,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		zlog:     zlog,
	}

	logger.Info("worker configured (id=%s, workers=%d, stream=%s)", cfg.WorkerID, poolCfg.Workers, messaging.StreamDocIndex)
	return w, cleanup, nil
}

func poolConfig(cfg *config.Config) *worker.PoolConfig {
	pc := worker.DefaultPoolConfig()
	if cfg.WorkerCount > 0 {
		pc.Workers = cfg.WorkerCount
	}
	if cfg.WorkerQueueSize > 0 {
		pc.WorkerChanSize = cfg.WorkerQueueSize
	}
	if cfg.JobTimeout > 0 {
		pc.JobTimeoutByType[worker.JobDocumentIndex] = cfg.JobTimeout
	}
	if cfg.JobMaxRetries >= 0 {
		pc.MaxRetries = cfg.JobMaxRetries
	}
	return pc
}

// pendingIdleTime keeps the consumer from reclaiming an entry while the pool
// may still be retrying it.
func pendingIdleTime(pc *worker.PoolConfig) time.Duration {
	timeout := pc.JobTimeout
	if t, ok := pc.JobTimeoutByType[worker.JobDocumentIndex]; ok && t > timeout {
		timeout = t
	}
	// worst case of Pool.backoff for retries 1..MaxRetries
	var backoff time.Duration
	for i := 1; i <= pc.MaxRetries; i++ {
		backoff += pc.RetryBaseDelay<<i + 500*time.Millisecond
	}
	return timeout*time.Duration(pc.MaxRetries+1) + backoff + 30*time.Second
}

// Start blocks until Stop is called.
func (w *Worker) Start() {
	if err := w.pool.Start(); err != nil {
		w.zlog.Error().Err(err).Msg("failed to start worker pool")
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.zlog.Info().Msg("starting stream consumer")
		if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.zlog.Error().Err(err).Msg("stream consumer error")
		}
	}()

	<-w.ctx.Done()
}

// Stop stops consuming first so no new work reaches the pool, then drains it.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.pool.Stop()
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}
