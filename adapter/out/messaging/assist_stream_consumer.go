package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ErrMalformedMessage = errors.New("malformed stream message")

// Delivery is one read of a stream entry. Attempts counts deliveries,
// starting at 1.
type Delivery struct {
	Stream   string
	ID       string
	Type     string
	Data     []byte
	Attempts int64
}

// JobHandler accepts deliveries. A nil error means the handler took
// ownership and will Ack or DeadLetter the entry itself; an error leaves
// the entry pending for re-delivery.
type JobHandler interface {
	Handle(ctx context.Context, d Delivery) error
}

// Consumer consumes messages from Redis Streams through a consumer group.
type Consumer struct {
	client   *redis.Client
	group    string
	consumer string
	streams  []string
	handler  JobHandler
	log      zerolog.Logger

	pendingCheckInterval time.Duration
	pendingIdleTime      time.Duration
	maxRetries           int
	readCount            int64
	block                time.Duration
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Group    string
	Consumer string
	Streams  []string
	Handler  JobHandler
	Logger   zerolog.Logger

	// Optional; defaults apply when zero.
	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
	ReadCount            int64
	Block                time.Duration
}

// NewConsumer creates a new Consumer.
func NewConsumer(client *redis.Client, cfg *ConsumerConfig) *Consumer {
	c := &Consumer{
		client:               client,
		group:                cfg.Group,
		consumer:             cfg.Consumer,
		streams:              cfg.Streams,
		handler:              cfg.Handler,
		log:                  cfg.Logger.With().Str("component", "stream_consumer").Logger(),
		pendingCheckInterval: cfg.PendingCheckInterval,
		pendingIdleTime:      cfg.PendingIdleTime,
		maxRetries:           cfg.MaxRetries,
		readCount:            cfg.ReadCount,
		block:                cfg.Block,
	}
	if c.pendingCheckInterval <= 0 {
		c.pendingCheckInterval = 30 * time.Second
	}
	if c.pendingIdleTime <= 0 {
		c.pendingIdleTime = 2 * time.Minute
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.readCount <= 0 {
		c.readCount = 10
	}
	if c.block <= 0 {
		c.block = 5 * time.Second
	}
	return c
}

// SetHandler replaces the handler; used when the handler needs the consumer
// for acknowledgements.
func (c *Consumer) SetHandler(h JobHandler) {
	c.handler = h
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Str("group", c.group).
		Str("consumer", c.consumer).
		Strs("streams", c.streams).
		Msg("starting consumer")

	for _, stream := range c.streams {
		c.createConsumerGroup(ctx, stream)
	}

	go c.processPendingMessages(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.readMessages(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.Error().Err(err).Msg("error reading from streams")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				c.dispatch(ctx, stream.Stream, msg, 1)
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, stream string, msg redis.XMessage, attempts int64) {
	d, err := parseDelivery(stream, msg)
	if err != nil {
		c.log.Error().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("dropping malformed message")
		if dlqErr := c.DeadLetter(ctx, stream, msg.ID, err.Error()); dlqErr != nil {
			c.log.Error().Err(dlqErr).Str("id", msg.ID).Msg("error moving message to DLQ")
		}
		return
	}
	d.Attempts = attempts

	if err := c.handler.Handle(ctx, d); err != nil {
		c.log.Warn().
			Err(err).
			Str("stream", stream).
			Str("id", msg.ID).
			Int64("attempts", attempts).
			Msg("message left pending")
	}
}

// Ack removes an entry from the group's pending list.
func (c *Consumer) Ack(ctx context.Context, stream, id string) error {
	if err := c.client.XAck(ctx, stream, c.group, id).Err(); err != nil {
		return fmt.Errorf("failed to ack %s/%s: %w", stream, id, err)
	}
	return nil
}

// processPendingMessages periodically reclaims messages whose consumer
// stalled or whose handler gave up without acking.
func (c *Consumer) processPendingMessages(ctx context.Context) {
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()

	c.log.Info().
		Dur("check_interval", c.pendingCheckInterval).
		Dur("idle_time", c.pendingIdleTime).
		Int("max_retries", c.maxRetries).
		Msg("starting pending message processor")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.claimAndProcessPending(ctx)
		}
	}
}

func (c *Consumer) claimAndProcessPending(ctx context.Context) {
	for _, stream := range c.streams {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  c.group,
			Idle:   c.pendingIdleTime,
			Start:  "-",
			End:    "+",
			Count:  100,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				c.log.Error().Err(err).Str("stream", stream).Msg("error getting pending messages")
			}
			continue
		}

		for _, p := range pending {
			if int(p.RetryCount) >= c.maxRetries {
				c.log.Warn().
					Str("stream", stream).
					Str("id", p.ID).
					Int64("retries", p.RetryCount).
					Msg("message exceeded max retries, moving to DLQ")
				if err := c.DeadLetter(ctx, stream, p.ID, "max retries exceeded"); err != nil {
					c.log.Error().Err(err).Str("id", p.ID).Msg("error moving message to DLQ")
				}
				continue
			}

			claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
				Stream:   stream,
				Group:    c.group,
				Consumer: c.consumer,
				MinIdle:  c.pendingIdleTime,
				Messages: []string{p.ID},
			}).Result()
			if err != nil {
				c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
				continue
			}

			for _, msg := range claimed {
				c.log.Info().
					Str("stream", stream).
					Str("id", msg.ID).
					Str("previous_consumer", p.Consumer).
					Int64("retries", p.RetryCount).
					Msg("reprocessing pending message")
				c.dispatch(ctx, stream, msg, p.RetryCount+1)
			}
		}
	}
}

func (c *Consumer) createConsumerGroup(ctx context.Context, stream string) {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		c.log.Warn().Err(err).Str("stream", stream).Msg("error creating consumer group")
	}
}

func (c *Consumer) readMessages(ctx context.Context) ([]redis.XStream, error) {
	if len(c.streams) == 0 {
		return nil, redis.Nil
	}

	args := make([]string, len(c.streams)*2)
	for i, stream := range c.streams {
		args[i] = stream
		args[len(c.streams)+i] = ">"
	}

	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  args,
		Count:    c.readCount,
		Block:    c.block,
	}).Result()
}

// DeadLetter copies an entry to its DLQ stream and acks the original.
func (c *Consumer) DeadLetter(ctx context.Context, stream, msgID, reason string) error {
	messages, err := c.client.XRange(ctx, stream, msgID, msgID).Result()
	if err != nil {
		return fmt.Errorf("failed to read message for DLQ: %w", err)
	}

	dlqStream := DeadLetterStream(stream)
	dlqData := map[string]any{
		"original_stream": stream,
		"original_id":     msgID,
		"failed_at":       time.Now().UTC().Format(time.RFC3339),
		"consumer":        c.consumer,
		"group":           c.group,
		"reason":          reason,
	}
	if len(messages) > 0 {
		for k, v := range messages[0].Values {
			dlqData["original_"+k] = v
		}
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: dlqStream, Values: dlqData}).Err(); err != nil {
		return fmt.Errorf("failed to add message to DLQ: %w", err)
	}

	c.log.Info().
		Str("dlq_stream", dlqStream).
		Str("original_stream", stream).
		Str("original_id", msgID).
		Str("reason", reason).
		Msg("message moved to DLQ")

	return c.Ack(ctx, stream, msgID)
}

func parseDelivery(stream string, msg redis.XMessage) (Delivery, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return Delivery{}, fmt.Errorf("%w: missing data field", ErrMalformedMessage)
	}
	jobType, _ := msg.Values["type"].(string)
	if jobType == "" {
		jobType = streamJobType(stream)
	}
	return Delivery{
		Stream: stream,
		ID:     msg.ID,
		Type:   jobType,
		Data:   []byte(data),
	}, nil
}

// streamJobType maps envelopes without a type field to a job type.
func streamJobType(stream string) string {
	switch stream {
	case StreamDocIndex:
		return JobDocumentIndex
	default:
		return stream
	}
}
