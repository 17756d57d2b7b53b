// Package notify carries customer-facing notifications from the order
// lifecycle to their sink. Dispatch is fire-and-forget for callers: they log
// a failure and move on.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	TypeOrderUpdate = "order_update"
	TypePayment     = "payment"
)

type Notification struct {
	ID        string    `json:"id,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	UserID    string    `json:"user_id"`
	OrderID   string    `json:"order_id,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

func OrderPlaced(userID, orderID, orderNumber string) Notification {
	return Notification{
		UserID:  userID,
		OrderID: orderID,
		Title:   "Order Placed",
		Message: fmt.Sprintf("Your order #%s has been placed successfully.", orderNumber),
		Type:    TypeOrderUpdate,
	}
}

// StatusUpdated takes the status already rendered for humans ("picked up").
func StatusUpdated(userID, orderID, orderNumber, status string) Notification {
	return Notification{
		UserID:  userID,
		OrderID: orderID,
		Title:   "Order Status Updated",
		Message: fmt.Sprintf("Your order #%s is now %s.", orderNumber, status),
		Type:    TypeOrderUpdate,
	}
}

func PaymentFailed(userID, orderID, orderNumber string) Notification {
	return Notification{
		UserID:  userID,
		OrderID: orderID,
		Title:   "Payment Failed",
		Message: fmt.Sprintf("Payment for order #%s did not go through. You can retry from your orders page.", orderNumber),
		Type:    TypePayment,
	}
}

// LogDispatcher logs each notification and hands it to Next when set. The
// in-memory dev setup wraps its sink with it so dispatches stay visible.
type LogDispatcher struct {
	Log  *zap.Logger
	Next Dispatcher
}

func (d LogDispatcher) Dispatch(ctx context.Context, n Notification) error {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("notification",
		zap.String("user_id", n.UserID),
		zap.String("order_id", n.OrderID),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
	)
	if d.Next == nil {
		return nil
	}
	return d.Next.Dispatch(ctx, n)
}

// Recorder keeps dispatched notifications in memory; tests read them back.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (r *Recorder) Dispatch(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
