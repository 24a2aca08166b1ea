package kafka

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-b2b-orders/internal/orders"
)

// Publisher is satisfied by *Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error
}

// EventWriter publishes order lifecycle envelopes, keyed by order id.
type EventWriter struct {
	Producer Publisher
}

var _ orders.EventSink = (*EventWriter)(nil)

func (w *EventWriter) Emit(ctx context.Context, ev orders.Envelope) error {
	value, err := EncodeEnvelope(ev)
	if err != nil {
		return err
	}
	return w.Producer.Publish(ctx,
		orders.TopicFor(ev.EventType),
		orders.PartitionKey(ev.CorrelationID),
		value,
		kafka.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
	)
}
