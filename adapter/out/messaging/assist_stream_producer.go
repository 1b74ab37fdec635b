// Package messaging provides Redis Streams adapters for background jobs.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"assist_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

// Stream names
const (
	StreamDocIndex    = "doc:index"
	StreamAuditEvents = "audit:events"

	dlqPrefix = "dlq:"
)

// Job types carried in the envelope's type field.
const (
	JobDocumentIndex = "document.index"
)

// DeadLetterStream names the stream failed messages from stream are moved to.
func DeadLetterStream(stream string) string {
	return dlqPrefix + stream
}

// RedisProducer implements out.JobPublisher using Redis Streams.
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

var _ out.JobPublisher = (*RedisProducer)(nil)

// NewRedisProducer creates a new RedisProducer. maxLen caps each stream
// approximately; zero leaves streams unbounded.
func NewRedisProducer(client *redis.Client, maxLen int64) *RedisProducer {
	return &RedisProducer{client: client, maxLen: maxLen}
}

// PublishIndexJob enqueues a document version for indexing.
func (p *RedisProducer) PublishIndexJob(ctx context.Context, job out.IndexJob) error {
	return p.publish(ctx, StreamDocIndex, JobDocumentIndex, job)
}

// publish adds one envelope {type, data} to a stream.
func (p *RedisProducer) publish(ctx context.Context, stream, jobType string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]any{
			"type": jobType,
			"data": string(data),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}
