package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-laundry-orders/internal/kafka"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// KafkaDispatcher wraps each notification in an Envelope and hands it to the
// async producer. The notifier worker persists it.
type KafkaDispatcher struct {
	Producer    Publisher
	ServiceName string
	Clock       func() time.Time
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, n Notification) error {
	now := time.Now().UTC()
	if d.Clock != nil {
		now = d.Clock().UTC()
	}
	if n.EventID == "" {
		n.EventID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	payload, err := kafkax.Marshal(n)
	if err != nil {
		return err
	}
	env := Envelope{
		EventID:       n.EventID,
		EventType:     EventNotificationRequested,
		EventVersion:  1,
		OccurredAt:    now,
		Producer:      d.ServiceName,
		TraceID:       kafkax.TraceID(ctx),
		CorrelationID: n.OrderID,
		Payload:       payload,
	}
	b, err := kafkax.Marshal(env)
	if err != nil {
		return err
	}
	d.Producer.Publish(PartitionKey(n.OrderID), b,
		kafkago.Header{Key: "x-event-type", Value: []byte(EventNotificationRequested)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}
