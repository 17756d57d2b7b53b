package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
)

const defaultInboxLimit = 50

// Sink stores notifications for in-app display.
type Sink interface {
	Save(ctx context.Context, n Notification) error
}

// Inbox is the read side of a Sink: a user's notifications, newest first.
type Inbox interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error)
	// MarkRead fails with NotFound unless the notification belongs to userID.
	MarkRead(ctx context.Context, userID, id string) error
}

func inboxLimit(n int) int {
	if n <= 0 || n > defaultInboxLimit {
		return defaultInboxLimit
	}
	return n
}

// PostgresSink inserts into the notifications table. Replays of the same
// event id are ignored.
type PostgresSink struct{ DB *pgxpool.Pool }

func (s *PostgresSink) Save(ctx context.Context, n Notification) error {
	if n.EventID == "" {
		n.EventID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var orderID any
	if n.OrderID != "" {
		orderID = n.OrderID
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO notifications(id, event_id, user_id, order_id, title, message, type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (event_id) DO NOTHING`,
		uuid.NewString(), n.EventID, n.UserID, orderID, n.Title, n.Message, n.Type, n.CreatedAt,
	)
	return err
}

func (s *PostgresSink) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id::text, event_id, user_id, COALESCE(order_id::text,''), title, message, type, is_read, created_at
		FROM notifications
		WHERE user_id=$1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC LIMIT $3`, userID, unreadOnly, inboxLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.EventID, &n.UserID, &n.OrderID, &n.Title, &n.Message,
			&n.Type, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresSink) MarkRead(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("notification", id)
	}
	var got string
	err := s.DB.QueryRow(ctx, `UPDATE notifications SET is_read=true
		WHERE id=$1 AND user_id=$2 RETURNING id::text`, id, userID).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("notification", id)
	}
	return err
}

// SinkDispatcher writes straight to a Sink; used when Kafka is not
// configured.
type SinkDispatcher struct{ Sink Sink }

func (d SinkDispatcher) Dispatch(ctx context.Context, n Notification) error {
	return d.Sink.Save(ctx, n)
}

type MemorySink struct {
	mu    sync.Mutex
	saved map[string]*Notification // by event id
	order []string
}

func NewMemorySink() *MemorySink { return &MemorySink{saved: make(map[string]*Notification)} }

func (s *MemorySink) Save(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.EventID == "" {
		n.EventID = uuid.NewString()
	}
	if _, dup := s.saved[n.EventID]; dup {
		return nil
	}
	n.ID = uuid.NewString()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.saved[n.EventID] = &n
	s.order = append(s.order, n.EventID)
	return nil
}

// All returns every saved notification in insertion order.
func (s *MemorySink) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.saved[id])
	}
	return out
}

func (s *MemorySink) List(_ context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit = inboxLimit(limit)
	var out []Notification
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		n := s.saved[s.order[i]]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (s *MemorySink) MarkRead(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.saved {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return apperr.NotFound("notification", id)
}
