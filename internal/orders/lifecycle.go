package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/notify"
)

const (
	NotePlaced    = "Order placed successfully"
	NoteCancelled = "Order cancelled by customer"
)

// Lifecycle is the single entry point for every status and payment-status
// change, whether it comes from a customer, an admin or a payment webhook.
type Lifecycle struct {
	Store    Store
	Notifier notify.Dispatcher
	Log      *zap.Logger
	Clock    func() time.Time
}

func NewLifecycle(store Store, n notify.Dispatcher, log *zap.Logger) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{Store: store, Notifier: n, Log: log, Clock: time.Now}
}

func (l *Lifecycle) now() time.Time {
	if l.Clock == nil {
		return time.Now().UTC()
	}
	return l.Clock().UTC()
}

func (l *Lifecycle) log() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log
}

func (l *Lifecycle) newEntry(status Status, note, actor string, at time.Time) *TrackingEntry {
	if note == "" {
		note = fmt.Sprintf("Status updated to %s", status)
	}
	return &TrackingEntry{
		ID:        uuid.NewString(),
		Status:    status,
		Notes:     note,
		UpdatedBy: actor,
		CreatedAt: at,
	}
}

// Transition moves the order to status to. The status, updated_at and the
// tracking entry are written together, conditioned on the status read here.
func (l *Lifecycle) Transition(ctx context.Context, orderID string, to Status, note, actor string) (Order, error) {
	return l.Update(ctx, orderID, Change{Status: &to, Note: note}, actor)
}

// Change is an admin edit. Nil fields are left as they are.
type Change struct {
	Status        *Status
	PaymentStatus *PaymentStatus
	DriverID      *string
	Note          string
}

// Update applies c in one conditional write.
func (l *Lifecycle) Update(ctx context.Context, orderID string, c Change, actor string) (Order, error) {
	if c.Status == nil && c.PaymentStatus == nil && c.DriverID == nil {
		return Order{}, apperr.Validation("", "nothing to update")
	}
	o, err := l.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, apperr.Downstream("load order", err)
	}

	now := l.now()
	m := Mutation{
		OrderID:       o.ID,
		ExpectStatus:  o.Status,
		ExpectPayment: o.PaymentStatus,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		UpdatedAt:     now,
	}

	statusChanged := false
	if c.Status != nil && *c.Status != o.Status {
		to := *c.Status
		if !to.Valid() {
			return Order{}, apperr.Validation("status", fmt.Sprintf("unknown status %q", to))
		}
		if !CanTransition(o.Status, to) {
			return Order{}, apperr.Conflict(string(o.Status), fmt.Sprintf("cannot move order from %s to %s", o.Status, to))
		}
		m.Status = to
		m.Tracking = l.newEntry(to, c.Note, actor, now)
		switch to {
		case StatusPickedUp:
			m.ActualPickupAt = &now
		case StatusDelivered:
			m.ActualDeliveryAt = &now
		}
		statusChanged = true
	}
	if c.PaymentStatus != nil && *c.PaymentStatus != o.PaymentStatus {
		to := *c.PaymentStatus
		if !to.Valid() {
			return Order{}, apperr.Validation("payment_status", fmt.Sprintf("unknown payment status %q", to))
		}
		if !CanTransitionPayment(o.PaymentStatus, to) {
			return Order{}, apperr.Conflict(string(o.PaymentStatus), fmt.Sprintf("cannot move payment from %s to %s", o.PaymentStatus, to))
		}
		m.PaymentStatus = to
	}
	if c.DriverID != nil {
		if o.Status.Terminal() {
			return Order{}, apperr.Conflict(string(o.Status), "cannot assign a driver to a closed order")
		}
		m.AssignedDriverID = c.DriverID
	}

	updated, err := l.Store.Apply(ctx, m)
	if err != nil {
		return Order{}, apperr.Downstream("update order", err)
	}
	if statusChanged {
		l.notifyStatus(ctx, updated)
	}
	return updated, nil
}

func (l *Lifecycle) SetPaymentStatus(ctx context.Context, orderID string, to PaymentStatus, actor string) (Order, error) {
	return l.Update(ctx, orderID, Change{PaymentStatus: &to}, actor)
}

// AssignDriver sets or clears (empty id) the order's driver.
func (l *Lifecycle) AssignDriver(ctx context.Context, orderID, driverID, actor string) (Order, error) {
	return l.Update(ctx, orderID, Change{DriverID: &driverID}, actor)
}

// Cancel is the customer path: owner only, pending only.
func (l *Lifecycle) Cancel(ctx context.Context, orderID, userID string) (Order, error) {
	if userID == "" {
		return Order{}, apperr.Unauthenticated("sign in to cancel an order")
	}
	o, err := l.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, apperr.Downstream("load order", err)
	}
	if !o.OwnedBy(userID) {
		return Order{}, apperr.Forbidden("only the customer who placed the order can cancel it")
	}
	if o.Status != StatusPending {
		return Order{}, apperr.Conflict(string(o.Status), "only pending orders can be cancelled")
	}
	now := l.now()
	updated, err := l.Store.Apply(ctx, Mutation{
		OrderID:       o.ID,
		ExpectStatus:  o.Status,
		ExpectPayment: o.PaymentStatus,
		Status:        StatusCancelled,
		PaymentStatus: o.PaymentStatus,
		UpdatedAt:     now,
		Tracking:      l.newEntry(StatusCancelled, NoteCancelled, userID, now),
	})
	if err != nil {
		return Order{}, apperr.Downstream("cancel order", err)
	}
	l.notifyStatus(ctx, updated)
	return updated, nil
}

// Settlement is a payment outcome reported by a provider.
type Settlement struct {
	Success       bool
	TransactionID string
	Method        PaymentMethod
	Message       string
}

// SettlePayment reconciles a payment outcome. Success marks the payment paid
// and confirms a pending order; failure marks it failed and leaves the
// order status alone so the customer can retry. Repeated success reports
// are no-ops.
func (l *Lifecycle) SettlePayment(ctx context.Context, orderID string, s Settlement) (Order, error) {
	o, err := l.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, apperr.Downstream("load order", err)
	}
	if o.Status == StatusCancelled {
		return Order{}, apperr.Conflict(string(o.Status), "order is cancelled")
	}

	now := l.now()
	m := Mutation{
		OrderID:       o.ID,
		ExpectStatus:  o.Status,
		ExpectPayment: o.PaymentStatus,
		Status:        o.Status,
		PaymentMethod: s.Method,
		UpdatedAt:     now,
	}

	if s.Success {
		if o.PaymentStatus == PaymentPaid {
			return o, nil
		}
		if !CanTransitionPayment(o.PaymentStatus, PaymentPaid) {
			return Order{}, apperr.Conflict(string(o.PaymentStatus), "payment cannot be marked paid")
		}
		m.PaymentStatus = PaymentPaid
		if o.Status == StatusPending {
			m.Status = StatusConfirmed
			note := "Payment received"
			if s.Method != "" {
				note = "Payment confirmed via " + string(s.Method)
			}
			if s.TransactionID != "" {
				note += " (" + s.TransactionID + ")"
			}
			m.Tracking = l.newEntry(StatusConfirmed, note, "", now)
		}
	} else {
		if o.PaymentStatus == PaymentFailed {
			return o, nil
		}
		if !CanTransitionPayment(o.PaymentStatus, PaymentFailed) {
			return Order{}, apperr.Conflict(string(o.PaymentStatus), "payment cannot be marked failed")
		}
		m.PaymentStatus = PaymentFailed
	}

	updated, err := l.Store.Apply(ctx, m)
	if err != nil {
		return Order{}, apperr.Downstream("settle payment", err)
	}
	switch {
	case m.Tracking != nil:
		l.notifyStatus(ctx, updated)
	case !s.Success:
		l.dispatch(ctx, updated, notify.PaymentFailed(updated.UserID, updated.ID, updated.OrderNumber))
	}
	return updated, nil
}

// ConfirmCashOnDelivery confirms a pending order paid on delivery. Payment
// stays pending until the driver collects it.
func (l *Lifecycle) ConfirmCashOnDelivery(ctx context.Context, orderID, ref string) (Order, error) {
	o, err := l.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, apperr.Downstream("load order", err)
	}
	if o.Status != StatusPending {
		if o.Status == StatusCancelled {
			return Order{}, apperr.Conflict(string(o.Status), "order is cancelled")
		}
		return o, nil
	}
	now := l.now()
	note := "Cash on Delivery confirmed"
	if ref != "" {
		note += " (" + ref + ")"
	}
	updated, err := l.Store.Apply(ctx, Mutation{
		OrderID:       o.ID,
		ExpectStatus:  o.Status,
		ExpectPayment: o.PaymentStatus,
		Status:        StatusConfirmed,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: MethodCash,
		UpdatedAt:     now,
		Tracking:      l.newEntry(StatusConfirmed, note, "", now),
	})
	if err != nil {
		return Order{}, apperr.Downstream("confirm cash order", err)
	}
	l.notifyStatus(ctx, updated)
	return updated, nil
}

// Detail loads an order with items and tracking for a caller that may view
// it: the owner or an admin.
func (l *Lifecycle) Detail(ctx context.Context, orderID, userID string, admin bool) (Detail, error) {
	o, err := l.Store.Get(ctx, orderID)
	if err != nil {
		return Detail{}, apperr.Downstream("load order", err)
	}
	if !admin && !o.OwnedBy(userID) {
		return Detail{}, apperr.Forbidden("not your order")
	}
	items, err := l.Store.Items(ctx, orderID)
	if err != nil {
		return Detail{}, apperr.Downstream("load items", err)
	}
	tracking, err := l.Store.Tracking(ctx, orderID)
	if err != nil {
		return Detail{}, apperr.Downstream("load tracking", err)
	}
	return Detail{Order: o, Items: items, Tracking: tracking}, nil
}

func (l *Lifecycle) notifyStatus(ctx context.Context, o Order) {
	l.dispatch(ctx, o, notify.StatusUpdated(o.UserID, o.ID, o.OrderNumber, o.Status.Label()))
}

// dispatch never fails the caller; guest orders have nobody to notify.
func (l *Lifecycle) dispatch(ctx context.Context, o Order, n notify.Notification) {
	if l.Notifier == nil || o.IsGuest() {
		return
	}
	if err := l.Notifier.Dispatch(ctx, n); err != nil {
		l.log().Warn("notification dispatch failed",
			zap.String("order_id", o.ID),
			zap.String("order_number", o.OrderNumber),
			zap.Error(err),
		)
	}
}
