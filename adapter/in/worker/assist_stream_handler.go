package worker

import (
	"context"
	"errors"

	"assist_server/adapter/out/messaging"
)

var ErrPoolUnavailable = errors.New("worker pool unavailable")

// StreamHandler feeds stream deliveries into the pool. It implements
// messaging.JobHandler: once Submit accepts a delivery the pool owns it.
type StreamHandler struct {
	pool *Pool
}

var _ messaging.JobHandler = (*StreamHandler)(nil)

func NewStreamHandler(pool *Pool) *StreamHandler {
	return &StreamHandler{pool: pool}
}

func (h *StreamHandler) Handle(_ context.Context, d messaging.Delivery) error {
	if !h.pool.Submit(MessageFromDelivery(d)) {
		return ErrPoolUnavailable
	}
	return nil
}
