package checkout

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/cart"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/payments"
)

// Receipt is what a completed checkout hands back. The order exists even
// when payment failed; PaymentError then says why and the customer can
// retry payment against the same order.
type Receipt struct {
	orders.Detail
	Payment      *payments.Result `json:"payment,omitempty"`
	PaymentError string           `json:"payment_error,omitempty"`
}

type Service struct {
	Assembler *Assembler
	Payments  *payments.Processor
	Carts     cart.Store
	Log       *zap.Logger
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Place books an order for a signed-in customer and attempts payment. The
// session cart is cleared unless the customer still has to finish on a
// provider page.
func (s *Service) Place(ctx context.Context, sessionID string, req PlaceOrder) (Receipt, error) {
	if req.UserID == "" {
		return Receipt{}, apperr.Unauthenticated("sign in to place an order")
	}
	req.Guest = nil

	d, err := s.Assembler.Assemble(ctx, req)
	if err != nil {
		return Receipt{}, err
	}
	rc := Receipt{Detail: d}

	res, err := s.Payments.Pay(ctx, payments.PayRequest{
		OrderID: d.Order.ID,
		UserID:  req.UserID,
		Amount:  d.Order.Total,
		Method:  d.Order.PaymentMethod,
	})
	switch {
	case err != nil:
		s.log().Warn("order placed but payment failed",
			zap.String("order_id", d.Order.ID),
			zap.Error(err),
		)
		rc.PaymentError = err.Error()
	default:
		rc.Payment = &res
	}

	if fresh, err := s.refresh(ctx, d.Order.ID); err == nil {
		rc.Detail = fresh
	} else {
		s.log().Warn("order reload failed", zap.String("order_id", d.Order.ID), zap.Error(err))
	}

	if rc.Payment == nil || rc.Payment.RedirectURL == "" {
		s.clearCart(ctx, sessionID)
	}
	return rc, nil
}

// PlaceGuest books an order without an account. Guests pay on delivery or
// through a later payment link, so no settlement runs here.
func (s *Service) PlaceGuest(ctx context.Context, sessionID string, req PlaceOrder) (Receipt, error) {
	req.UserID = ""
	if req.Guest == nil {
		return Receipt{}, apperr.Validation("guest", "contact details are required for guest checkout")
	}
	d, err := s.Assembler.Assemble(ctx, req)
	if err != nil {
		return Receipt{}, err
	}
	s.clearCart(ctx, sessionID)
	return Receipt{Detail: d}, nil
}

// FromCart converts a stored session cart into line requests.
func FromCart(c *cart.Cart) []LineRequest {
	lines := make([]LineRequest, 0, len(c.Items))
	for _, it := range c.Items {
		line := LineRequest{ServiceID: it.Service.ID, Quantity: it.Quantity}
		if it.Weight.Valid {
			w := it.Weight.Decimal
			line.WeightKg = &w
		}
		lines = append(lines, line)
	}
	return lines
}

func (s *Service) refresh(ctx context.Context, orderID string) (orders.Detail, error) {
	store := s.Assembler.Orders
	o, err := store.Get(ctx, orderID)
	if err != nil {
		return orders.Detail{}, err
	}
	items, err := store.Items(ctx, orderID)
	if err != nil {
		return orders.Detail{}, err
	}
	tracking, err := store.Tracking(ctx, orderID)
	if err != nil {
		return orders.Detail{}, err
	}
	return orders.Detail{Order: o, Items: items, Tracking: tracking}, nil
}

func (s *Service) clearCart(ctx context.Context, sessionID string) {
	if s.Carts == nil || sessionID == "" {
		return
	}
	if err := s.Carts.Clear(ctx, sessionID); err != nil && !errors.Is(err, context.Canceled) {
		s.log().Warn("cart not cleared", zap.String("session_id", sessionID), zap.Error(err))
	}
}
