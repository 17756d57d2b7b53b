// Package notifier consumes notification events and stores them for in-app
// display.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-laundry-orders/internal/kafka"
	"github.com/ariefcatur/go-laundry-orders/internal/notify"
)

// Deduper remembers which events were already handled.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type Service struct {
	Sink  notify.Sink
	Dedup Deduper
	Log   *zap.Logger
}

// HandleNotification is installed as the consumer handler. A nil return
// commits the offset, so malformed messages are logged and dropped rather
// than retried forever.
func (s *Service) HandleNotification(ctx context.Context, m kafkago.Message) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	var env notify.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Warn("dropping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != notify.EventNotificationRequested {
		return nil
	}
	log = log.With(zap.String("event_id", env.EventID), zap.String("trace_id", env.TraceID))

	n, err := kafkax.UnwrapPayload[notify.Notification](env.Payload)
	if err != nil {
		log.Warn("dropping malformed notification", zap.Error(err))
		return nil
	}
	if n.EventID == "" {
		n.EventID = env.EventID
	}

	if s.Dedup != nil {
		fresh, err := s.Dedup.Claim(ctx, env.EventID)
		if err != nil {
			// the sink is idempotent on event id, so carry on without dedup
			log.Warn("dedup unavailable", zap.Error(err))
		} else if !fresh {
			log.Debug("duplicate event skipped")
			return nil
		}
	}

	if err := s.Sink.Save(ctx, n); err != nil {
		if s.Dedup != nil {
			if rerr := s.Dedup.Release(ctx, env.EventID); rerr != nil {
				log.Warn("dedup release failed", zap.Error(rerr))
			}
		}
		return fmt.Errorf("save notification %s: %w", env.EventID, err)
	}
	log.Info("notification stored", zap.String("user_id", n.UserID), zap.String("order_id", n.OrderID))
	return nil
}
