package messaging

import (
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDelivery(t *testing.T) {
	d, err := parseDelivery(StreamDocIndex, redis.XMessage{
		ID:     "1-0",
		Values: map[string]any{"type": JobDocumentIndex, "data": `{"tenant_id":"x"}`},
	})
	require.NoError(t, err)
	assert.Equal(t, "1-0", d.ID)
	assert.Equal(t, JobDocumentIndex, d.Type)
	assert.JSONEq(t, `{"tenant_id":"x"}`, string(d.Data))
}

func TestParseDelivery_TypeFromStream(t *testing.T) {
	d, err := parseDelivery(StreamDocIndex, redis.XMessage{ID: "2-0", Values: map[string]any{"data": "{}"}})
	require.NoError(t, err)
	assert.Equal(t, JobDocumentIndex, d.Type)
}

func TestParseDelivery_Malformed(t *testing.T) {
	_, err := parseDelivery(StreamDocIndex, redis.XMessage{ID: "3-0", Values: map[string]any{"payload": "{}"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestDeadLetterStream(t *testing.T) {
	assert.Equal(t, "dlq:doc:index", DeadLetterStream(StreamDocIndex))
}

func TestNewConsumerDefaults(t *testing.T) {
	c := NewConsumer(nil, &ConsumerConfig{Group: "g", Consumer: "c", Streams: []string{StreamDocIndex}})
	assert.Equal(t, 3, c.maxRetries)
	assert.EqualValues(t, 10, c.readCount)
	assert.Greater(t, c.pendingIdleTime, c.pendingCheckInterval)
}
