package payments

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
)

// AmountTolerance is the largest accepted difference between the amount a
// client submits and the stored order total.
var AmountTolerance = decimal.RequireFromString("0.01")

type PayRequest struct {
	OrderID string               `json:"order_id"`
	UserID  string               `json:"-"`
	Amount  decimal.Decimal      `json:"amount"`
	Method  orders.PaymentMethod `json:"payment_method"`
	Phone   string               `json:"customer_phone,omitempty"`
	Email   string               `json:"customer_email,omitempty"`
}

// Processor runs one settlement attempt per request. Payment submission is
// never retried here; the customer resubmits explicitly.
type Processor struct {
	Orders    orders.Store
	Lifecycle *orders.Lifecycle
	Log       *zap.Logger

	settlers map[orders.PaymentMethod]Settler
}

func NewProcessor(store orders.Store, lc *orders.Lifecycle, log *zap.Logger, settlers ...Settler) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Processor{Orders: store, Lifecycle: lc, Log: log, settlers: make(map[orders.PaymentMethod]Settler, len(settlers))}
	for _, s := range settlers {
		p.settlers[s.Method()] = s
	}
	return p
}

// Pay settles an order the caller owns. Provider errors leave the order
// untouched. A redirect result also leaves it untouched until the webhook
// arrives.
func (p *Processor) Pay(ctx context.Context, req PayRequest) (Result, error) {
	if req.UserID == "" {
		return Result{}, apperr.Unauthenticated("sign in to pay for an order")
	}
	if req.OrderID == "" {
		return Result{}, apperr.Validation("order_id", "order is required")
	}
	settler, ok := p.settlers[req.Method]
	if !ok {
		return Result{}, apperr.Validation("payment_method", fmt.Sprintf("invalid payment method %q", req.Method))
	}

	o, err := p.Orders.Get(ctx, req.OrderID)
	if err != nil {
		return Result{}, apperr.Downstream("load order", err)
	}
	if !o.OwnedBy(req.UserID) {
		return Result{}, apperr.Forbidden("not your order")
	}
	if req.Amount.Sub(o.Total).Abs().GreaterThan(AmountTolerance) {
		return Result{}, apperr.Validation("amount", fmt.Sprintf("amount %s does not match order total %s", req.Amount.StringFixed(2), o.Total.StringFixed(2)))
	}
	switch {
	case o.Status == orders.StatusCancelled:
		return Result{}, apperr.Conflict(string(o.Status), "order is cancelled")
	case o.PaymentStatus == orders.PaymentPaid || o.PaymentStatus == orders.PaymentRefunded:
		return Result{}, apperr.Conflict(string(o.PaymentStatus), "order is already paid")
	}

	log := p.Log.With(zap.String("order_id", o.ID), zap.String("method", string(req.Method)))
	res, err := settler.Settle(ctx, Charge{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Amount:      o.Total,
		Phone:       req.Phone,
		Email:       req.Email,
	})
	if err != nil {
		log.Warn("payment provider error", zap.Error(err))
		return Result{}, &apperr.DownstreamError{Op: "payment provider", Err: err}
	}

	switch {
	case !res.Success:
		_, err = p.Lifecycle.SettlePayment(ctx, o.ID, orders.Settlement{Success: false, Method: req.Method, Message: res.Message})
	case res.RedirectURL != "":
		log.Info("payment awaiting provider redirect", zap.String("transaction_id", res.TransactionID))
		return res, nil
	case req.Method == orders.MethodCash:
		_, err = p.Lifecycle.ConfirmCashOnDelivery(ctx, o.ID, res.TransactionID)
	default:
		_, err = p.Lifecycle.SettlePayment(ctx, o.ID, orders.Settlement{Success: true, TransactionID: res.TransactionID, Method: req.Method})
	}
	if err != nil {
		log.Error("payment settled but order not updated", zap.String("transaction_id", res.TransactionID), zap.Error(err))
		return res, err
	}
	log.Info("payment settled", zap.Bool("success", res.Success), zap.String("transaction_id", res.TransactionID))
	return res, nil
}

// Reconcile applies a verified provider callback. A callback that loses a
// race with another write to the order is re-read and applied once more; if
// it loses again the stale conflict is returned so the provider redelivers.
func (p *Processor) Reconcile(ctx context.Context, cb Callback) (orders.Order, error) {
	s := orders.Settlement{
		Success:       cb.Success,
		TransactionID: cb.TransactionID,
		Method:        cb.Method,
	}
	o, err := p.Lifecycle.SettlePayment(ctx, cb.OrderID, s)
	if apperr.IsStale(err) {
		p.Log.Info("payment callback raced an order update, retrying", zap.String("order_id", cb.OrderID))
		o, err = p.Lifecycle.SettlePayment(ctx, cb.OrderID, s)
	}
	if err != nil {
		return orders.Order{}, err
	}
	p.Log.Info("payment reconciled",
		zap.String("order_id", cb.OrderID),
		zap.String("method", string(cb.Method)),
		zap.Bool("success", cb.Success),
		zap.String("payment_status", string(o.PaymentStatus)),
	)
	return o, nil
}
