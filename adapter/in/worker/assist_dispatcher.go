package worker

import (
	"context"
	"fmt"

	"assist_server/pkg/apperr"
	"assist_server/pkg/logger"
)

type Handler struct {
	indexProcessor *IndexProcessor
}

func NewHandler(indexProcessor *IndexProcessor) *Handler {
	return &Handler{indexProcessor: indexProcessor}
}

// Process routes a message to its processor. Unknown job types are
// permanent failures so they reach the dead letter stream instead of
// cycling through redelivery.
func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	case JobDocumentIndex:
		return h.indexProcessor.ProcessIndex(ctx, msg)
	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return apperr.InvalidInput("type", fmt.Sprintf("unknown job type %q", msg.Type))
	}
}
