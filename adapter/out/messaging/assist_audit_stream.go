package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"assist_server/core/domain"
	"assist_server/core/port/out"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AuditStream writes audit records to the audit:events stream. Used on its
// own it is the audit log; wrapped around another AuditLog it mirrors
// records best-effort after the primary write succeeds.
type AuditStream struct {
	client  *redis.Client
	primary out.AuditLog
	maxLen  int64
	log     zerolog.Logger
}

var _ out.AuditLog = (*AuditStream)(nil)

func NewAuditStream(client *redis.Client, primary out.AuditLog, maxLen int64, log zerolog.Logger) *AuditStream {
	return &AuditStream{
		client:  client,
		primary: primary,
		maxLen:  maxLen,
		log:     log.With().Str("component", "audit_stream").Logger(),
	}
}

func (s *AuditStream) Write(ctx context.Context, record *domain.AuditRecord) error {
	if s.primary != nil {
		if err := s.primary.Write(ctx, record); err != nil {
			return err
		}
		if err := s.append(ctx, record); err != nil {
			s.log.Warn().Err(err).Str("audit_id", record.ID.String()).Msg("audit mirror failed")
		}
		return nil
	}
	return s.append(ctx, record)
}

func (s *AuditStream) append(ctx context.Context, record *domain.AuditRecord) error {
	if record.Payload != nil && !record.Payload.IsAuditSafe() {
		return fmt.Errorf("audit payload is not redacted")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: StreamAuditEvents,
		Values: map[string]any{
			"type":      string(record.Action),
			"tenant_id": record.TenantID.String(),
			"data":      string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}
	return nil
}
