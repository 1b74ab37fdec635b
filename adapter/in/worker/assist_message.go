package worker

import (
	"time"

	"assist_server/adapter/out/messaging"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// JobType represents the type of a job.
type JobType = string

const (
	JobDocumentIndex JobType = messaging.JobDocumentIndex
)

// Message is one unit of work for the pool. Stream and StreamID are set
// when the message came from a Redis stream and must be acked there.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Data      []byte    `json:"data"`
	Stream    string    `json:"stream,omitempty"`
	StreamID  string    `json:"stream_id,omitempty"`
	Attempts  int64     `json:"attempts"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"created_at"`
}

func NewMessage(jobType string, data []byte) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// MessageFromDelivery wraps a stream delivery. The stream entry ID doubles
// as the message ID so log lines can be matched against XPENDING output.
func MessageFromDelivery(d messaging.Delivery) *Message {
	return &Message{
		ID:        d.ID,
		Type:      d.Type,
		Data:      d.Data,
		Stream:    d.Stream,
		StreamID:  d.ID,
		Attempts:  d.Attempts,
		CreatedAt: time.Now(),
	}
}

func (m *Message) fromStream() bool {
	return m.Stream != "" && m.StreamID != ""
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
