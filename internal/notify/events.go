package notify

import (
	"encoding/json"
	"time"
)

const (
	EventNotificationRequested = "NotificationRequested"

	TopicNotifications = "order.notifications"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "laundry-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// PartitionKey keeps every event for one order on the same partition, in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
