package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/lead-router/internal/models"
	"go.uber.org/zap"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(ch *fakeChannel) *RabbitPublisher {
	return &RabbitPublisher{
		exchange:    "leads",
		logger:      zap.NewNop(),
		openChannel: func() (amqpChannel, error) { return ch, nil },
	}
}

func TestPublishHandoffAssigned(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	env := NewHandoffAssigned(HandoffAssignedV1{
		ConversationID: "conv-1",
		Channel:        models.ChannelWhatsApp,
		ContactRef:     "5511987654321",
		OperatorName:   "Anderson",
		Category:       models.CategoryHot,
		Confidence:     0.92,
		AssignedAt:     at,
	})

	require.NoError(t, p.Publish(context.Background(), "", env))
	assert.True(t, ch.closed)
	assert.Equal(t, "leads", ch.exchange)
	assert.Equal(t, TypeHandoffAssigned, ch.key)
	assert.Equal(t, env.Meta.ID, ch.msg.MessageId)
	assert.Equal(t, "conv-1", ch.msg.CorrelationId)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var decoded struct {
		Meta Meta              `json:"meta"`
		Data HandoffAssignedV1 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, "Anderson", decoded.Data.OperatorName)
	assert.Equal(t, at, decoded.Meta.Time)
}

func TestPublishFillsMissingMeta(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	require.NoError(t, p.Publish(context.Background(), "custom.key", Envelope{Data: "x"}))
	assert.NotEmpty(t, ch.msg.MessageId)
	assert.Equal(t, ch.msg.MessageId, ch.msg.CorrelationId)
	assert.Equal(t, "custom.key", ch.key)
	assert.False(t, ch.msg.Timestamp.IsZero())
}

func TestPublishError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newTestPublisher(ch)
	assert.Error(t, p.Publish(context.Background(), "k", Envelope{}))
	assert.True(t, ch.closed)
}
