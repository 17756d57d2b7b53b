// Package checkout turns a line-item request into a persisted, priced order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/cart"
	"github.com/ariefcatur/go-laundry-orders/internal/catalog"
	"github.com/ariefcatur/go-laundry-orders/internal/notify"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/pricing"
	"github.com/ariefcatur/go-laundry-orders/internal/textutil"
)

const defaultCity = "Karachi"

type LineRequest struct {
	ServiceID string           `json:"service_id"`
	Quantity  int              `json:"quantity"`
	WeightKg  *decimal.Decimal `json:"weight_kg,omitempty"`
}

// PlaceOrder is one checkout submission. Registered customers set UserID
// and reference saved addresses; guests set Guest and inline addresses.
type PlaceOrder struct {
	UserID string        `json:"-"`
	Guest  *orders.Guest `json:"guest,omitempty"`

	Items []LineRequest `json:"items"`

	PickupAddressID   string          `json:"pickup_address_id,omitempty"`
	DeliveryAddressID string          `json:"delivery_address_id,omitempty"`
	PickupAddress     *orders.Address `json:"pickup_address,omitempty"`
	DeliveryAddress   *orders.Address `json:"delivery_address,omitempty"`

	PreferredPickupAt   *time.Time `json:"preferred_pickup_time,omitempty"`
	PreferredDeliveryAt *time.Time `json:"preferred_delivery_time,omitempty"`

	SpecialInstructions string               `json:"special_instructions,omitempty"`
	PromoCode           string               `json:"promo_code,omitempty"`
	PaymentMethod       orders.PaymentMethod `json:"payment_method,omitempty"`
}

type Assembler struct {
	Catalog   catalog.Repository
	Addresses orders.AddressRepository
	Orders    orders.Store
	Pricing   *pricing.Calculator
	Notifier  notify.Dispatcher
	Log       *zap.Logger
	Clock     func() time.Time

	// RollbackTimeout bounds the compensating delete, which runs on a
	// context detached from the request.
	RollbackTimeout time.Duration
}

func (a *Assembler) now() time.Time {
	if a.Clock == nil {
		return time.Now().UTC()
	}
	return a.Clock().UTC()
}

func (a *Assembler) log() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

// Assemble validates req, prices it and persists the order header, its
// items and the initial tracking entry in that order. Nothing is left
// behind when a step after the header fails.
func (a *Assembler) Assemble(ctx context.Context, req PlaceOrder) (orders.Detail, error) {
	o, basket, err := a.build(ctx, req)
	if err != nil {
		return orders.Detail{}, err
	}

	items := make([]orders.Item, 0, len(basket.Items))
	for _, line := range basket.Items {
		items = append(items, orders.Item{
			ID:          uuid.NewString(),
			ServiceID:   line.Service.ID,
			ServiceName: line.Service.Name,
			Quantity:    line.Quantity,
			WeightKg:    line.Weight,
			UnitPrice:   cart.UnitPrice(line),
			TotalPrice:  cart.ItemPrice(line).Round(2),
		})
	}
	initial := orders.TrackingEntry{
		ID:        uuid.NewString(),
		Status:    orders.StatusPending,
		Notes:     orders.NotePlaced,
		UpdatedBy: req.UserID,
		CreatedAt: o.CreatedAt,
	}

	if err := a.persist(ctx, o, items, &initial); err != nil {
		return orders.Detail{}, err
	}

	if o.PromoCode != "" {
		if err := a.Pricing.Promotions.IncrementUsage(ctx, o.PromoCode); err != nil {
			a.log().Warn("promotion usage not recorded", zap.String("code", o.PromoCode), zap.Error(err))
		}
	}
	if !o.IsGuest() && a.Notifier != nil {
		if err := a.Notifier.Dispatch(ctx, notify.OrderPlaced(o.UserID, o.ID, o.OrderNumber)); err != nil {
			a.log().Warn("notification dispatch failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	a.log().Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Bool("guest", o.IsGuest()),
		zap.String("total", o.Total.StringFixed(2)),
	)
	return orders.Detail{Order: *o, Items: items, Tracking: []orders.TrackingEntry{initial}}, nil
}

func (a *Assembler) persist(ctx context.Context, o *orders.Order, items []orders.Item, initial *orders.TrackingEntry) error {
	if err := a.Orders.InsertOrder(ctx, o); err != nil {
		return apperr.Downstream("insert order", err)
	}
	initial.OrderID = o.ID

	err := a.Orders.InsertItems(ctx, o.ID, items)
	if err == nil {
		err = a.Orders.AppendTracking(ctx, *initial)
	}
	if err == nil {
		return nil
	}
	if rbErr := a.rollback(ctx, o.ID); rbErr != nil {
		a.log().Error("order rollback failed",
			zap.String("order_id", o.ID),
			zap.NamedError("cause", err),
			zap.Error(rbErr),
		)
		return &apperr.DownstreamError{Op: "rollback order " + o.OrderNumber, Err: fmt.Errorf("%w (after: %v)", rbErr, err)}
	}
	return &apperr.DownstreamError{Op: "persist order", Err: err}
}

func (a *Assembler) rollback(ctx context.Context, orderID string) error {
	timeout := a.RollbackTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return a.Orders.DeleteOrder(rctx, orderID)
}

func (a *Assembler) build(ctx context.Context, req PlaceOrder) (*orders.Order, *cart.Cart, error) {
	if len(req.Items) == 0 {
		return nil, nil, apperr.Validation("items", "cart is empty")
	}
	for i, line := range req.Items {
		if strings.TrimSpace(line.ServiceID) == "" {
			return nil, nil, apperr.Validation(fmt.Sprintf("items[%d].service_id", i), "service is required")
		}
		if line.Quantity < 1 {
			return nil, nil, apperr.Validation(fmt.Sprintf("items[%d].quantity", i), "quantity must be at least 1")
		}
		if line.WeightKg != nil && line.WeightKg.LessThan(cart.MinWeightKg) {
			return nil, nil, apperr.Validation(fmt.Sprintf("items[%d].weight_kg", i), "weight must be at least 0.5 kg")
		}
	}

	o := &orders.Order{
		Status:              orders.StatusPending,
		PaymentStatus:       orders.PaymentPending,
		PreferredPickupAt:   req.PreferredPickupAt,
		PreferredDeliveryAt: req.PreferredDeliveryAt,
		SpecialInstructions: textutil.Plain(req.SpecialInstructions),
	}

	method := req.PaymentMethod
	if method == "" {
		method = orders.MethodCash
	}
	if !method.Valid() {
		return nil, nil, apperr.Validation("payment_method", fmt.Sprintf("unsupported payment method %q", method))
	}
	o.PaymentMethod = method

	if req.UserID != "" {
		if err := a.resolveAddresses(ctx, req, o); err != nil {
			return nil, nil, err
		}
	} else {
		if err := guestDetails(req, o); err != nil {
			return nil, nil, err
		}
	}

	basket := cart.New("")
	for i, line := range req.Items {
		svc, err := a.Catalog.Get(ctx, line.ServiceID)
		if err != nil {
			return nil, nil, apperr.Downstream("load service", err)
		}
		if !svc.IsActive {
			return nil, nil, apperr.Validation(fmt.Sprintf("items[%d].service_id", i), svc.Name+" is not available")
		}
		if svc.WeightPriced() && line.WeightKg == nil {
			return nil, nil, apperr.Validation(fmt.Sprintf("items[%d].weight_kg", i), "weight is required for "+svc.Name)
		}
		if err := basket.Add(svc, line.Quantity, line.WeightKg); err != nil {
			return nil, nil, err
		}
	}

	q, err := a.Pricing.Quote(ctx, basket.Subtotal(), o.PickupAddress.Area, req.PromoCode)
	if err != nil {
		return nil, nil, err
	}
	o.Subtotal = q.Subtotal.Round(2)
	o.DeliveryFee = q.DeliveryFee.Round(2)
	o.Discount = q.Discount.Round(2)
	o.Total = pricing.Total(o.Subtotal, o.DeliveryFee, o.Discount)
	o.PromoCode = q.PromoCode

	now := a.now()
	o.ID = uuid.NewString()
	o.OrderNumber = orders.NewNumber(now)
	o.CreatedAt, o.UpdatedAt = now, now
	return o, basket, nil
}

func (a *Assembler) resolveAddresses(ctx context.Context, req PlaceOrder, o *orders.Order) error {
	o.UserID = req.UserID
	if req.PickupAddressID == "" {
		return apperr.Validation("pickup_address_id", "pickup address is required")
	}
	pickup, err := a.ownedAddress(ctx, req.UserID, req.PickupAddressID)
	if err != nil {
		return err
	}
	delivery := pickup
	if req.DeliveryAddressID != "" && req.DeliveryAddressID != req.PickupAddressID {
		if delivery, err = a.ownedAddress(ctx, req.UserID, req.DeliveryAddressID); err != nil {
			return err
		}
	}
	o.PickupAddressID, o.PickupAddress = pickup.ID, pickup
	o.DeliveryAddressID, o.DeliveryAddress = delivery.ID, delivery
	return nil
}

// ownedAddress reports another user's address as not found.
func (a *Assembler) ownedAddress(ctx context.Context, userID, id string) (orders.Address, error) {
	addr, err := a.Addresses.Get(ctx, id)
	if err != nil {
		return orders.Address{}, apperr.Downstream("load address", err)
	}
	if addr.UserID != userID {
		return orders.Address{}, apperr.NotFound("address", id)
	}
	return addr, nil
}

func guestDetails(req PlaceOrder, o *orders.Order) error {
	if req.Guest == nil {
		return apperr.Validation("guest", "contact details are required for guest checkout")
	}
	g := *req.Guest
	g.Name = strings.TrimSpace(g.Name)
	g.Email = strings.TrimSpace(g.Email)
	if g.Name == "" {
		return apperr.Validation("guest.name", "name is required")
	}
	if g.Email != "" && !strings.Contains(g.Email, "@") {
		return apperr.Validation("guest.email", "email is invalid")
	}
	phone, err := orders.NormalizePhone(g.Phone)
	if err != nil {
		var v *apperr.ValidationError
		if errors.As(err, &v) {
			return apperr.Validation("guest.phone", v.Msg)
		}
		return err
	}
	g.Phone = phone
	o.Guest = &g

	pickup, err := inlineAddress("pickup_address", req.PickupAddress)
	if err != nil {
		return err
	}
	delivery := pickup
	if req.DeliveryAddress != nil {
		if delivery, err = inlineAddress("delivery_address", req.DeliveryAddress); err != nil {
			return err
		}
	}
	o.PickupAddress, o.DeliveryAddress = pickup, delivery
	return nil
}

func inlineAddress(field string, a *orders.Address) (orders.Address, error) {
	if a == nil {
		return orders.Address{}, apperr.Validation(field, "address is required")
	}
	out := orders.Address{
		Label:                strings.TrimSpace(a.Label),
		Line1:                strings.TrimSpace(a.Line1),
		Line2:                strings.TrimSpace(a.Line2),
		Area:                 strings.TrimSpace(a.Area),
		City:                 strings.TrimSpace(a.City),
		PostalCode:           strings.TrimSpace(a.PostalCode),
		DeliveryInstructions: textutil.Plain(a.DeliveryInstructions),
	}
	if out.Line1 == "" {
		return orders.Address{}, apperr.Validation(field+".address_line1", "street address is required")
	}
	if out.Area == "" {
		return orders.Address{}, apperr.Validation(field+".area", "area is required")
	}
	if out.City == "" {
		out.City = defaultCity
	}
	return out, nil
}
