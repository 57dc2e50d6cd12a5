package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublisherWritesKeyedMessagePerEventType(t *testing.T) {
	writer := &fakeWriter{}
	publisher := newPublisher(writer, "storefront.")

	order := domain.Order{
		ID:            "order-1",
		UserID:        "user-1",
		TemplateID:    "tpl-1",
		AmountCents:   1999,
		Currency:      "usd",
		Status:        domain.StatusCompleted,
		PaymentStatus: domain.PaymentPaid,
	}
	event := ports.NewOrderEvent(ports.EventOrderPaid, order)
	event.OccurredAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, publisher.Publish(context.Background(), event))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "storefront.order.paid", msg.Topic)
	assert.Equal(t, "order-1", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "order.paid", string(msg.Headers[0].Value))

	var decoded ports.OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, int64(1999), decoded.AmountCents)
	assert.Equal(t, domain.PaymentPaid, decoded.PaymentStatus)

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestPublisherWrapsWriteErrors(t *testing.T) {
	brokerDown := errors.New("broker down")
	publisher := newPublisher(&fakeWriter{err: brokerDown}, "")

	err := publisher.Publish(context.Background(), ports.OrderEvent{Type: ports.EventOrderCreated, OrderID: "order-1"})
	assert.ErrorIs(t, err, brokerDown)
}
