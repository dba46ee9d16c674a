package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecorder struct {
	acked, nacked, requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}
func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func newDelivery(ack amqp.Acknowledger) *delivery {
	return &delivery{
		queue: "user.commands",
		raw: amqp.Delivery{
			Acknowledger: ack,
			DeliveryTag:  7,
			MessageId:    "m1",
			Type:         "CreateUser",
			ContentType:  "application/json",
			Body:         []byte(`{}`),
			Timestamp:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
			Headers:      amqp.Table{"k": "v"},
			Redelivered:  true,
		},
	}
}

func TestDelivery_Message(t *testing.T) {
	d := newDelivery(&ackRecorder{})
	msg := d.Message()
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "CreateUser", msg.Type)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "v", msg.Headers["k"])
	assert.True(t, d.Redelivered())

	// headers are a copy
	msg.Headers["k"] = "changed"
	assert.Equal(t, "v", d.raw.Headers["k"])
}

func TestDelivery_AckAndRetry(t *testing.T) {
	ack := &ackRecorder{}
	require.NoError(t, newDelivery(ack).Ack())
	assert.True(t, ack.acked)

	retry := &ackRecorder{}
	require.NoError(t, newDelivery(retry).Retry())
	assert.True(t, retry.nacked)
	assert.True(t, retry.requeue)
}
