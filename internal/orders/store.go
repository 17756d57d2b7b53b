package orders

import (
	"context"
	"time"
)

// Store persists orders, their line items and tracking history.
type Store interface {
	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, orderID string, items []Item) error
	AppendTracking(ctx context.Context, e TrackingEntry) error
	// DeleteOrder removes the header; items and tracking cascade.
	DeleteOrder(ctx context.Context, orderID string) error

	Get(ctx context.Context, orderID string) (Order, error)
	Items(ctx context.Context, orderID string) ([]Item, error)
	Tracking(ctx context.Context, orderID string) ([]TrackingEntry, error)
	List(ctx context.Context, f Filter) ([]Order, error)

	// Apply writes m atomically if the order still has the expected status
	// and payment status, returning the updated order. A stale
	// precondition yields a ConflictError.
	Apply(ctx context.Context, m Mutation) (Order, error)
}

// Mutation is a conditional update of one order. Status and PaymentStatus
// are the new values (equal to the expectations when unchanged). Tracking,
// when set, is appended in the same write.
type Mutation struct {
	OrderID       string
	ExpectStatus  Status
	ExpectPayment PaymentStatus

	Status           Status
	PaymentStatus    PaymentStatus
	PaymentMethod    PaymentMethod
	AssignedDriverID *string
	ActualPickupAt   *time.Time
	ActualDeliveryAt *time.Time
	UpdatedAt        time.Time

	Tracking *TrackingEntry
}

func (m Mutation) apply(o *Order) {
	o.Status = m.Status
	o.PaymentStatus = m.PaymentStatus
	if m.PaymentMethod != "" {
		o.PaymentMethod = m.PaymentMethod
	}
	if m.AssignedDriverID != nil {
		o.AssignedDriverID = *m.AssignedDriverID
	}
	if m.ActualPickupAt != nil {
		o.ActualPickupAt = m.ActualPickupAt
	}
	if m.ActualDeliveryAt != nil {
		o.ActualDeliveryAt = m.ActualDeliveryAt
	}
	o.UpdatedAt = m.UpdatedAt
}

// AddressRepository stores saved addresses. At most one address per user is
// primary; saving a primary address demotes the others.
type AddressRepository interface {
	ListByUser(ctx context.Context, userID string) ([]Address, error)
	Get(ctx context.Context, id string) (Address, error)
	Create(ctx context.Context, a *Address) error
	// Update replaces an address the user owns, keeping its creation time.
	Update(ctx context.Context, a *Address) error
	Delete(ctx context.Context, userID, id string) error
}
