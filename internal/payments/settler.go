// Package payments maps a payment method to a settlement outcome and
// reconciles it into the order lifecycle.
package payments

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-laundry-orders/internal/orders"
)

// Charge is what a settler is asked to collect.
type Charge struct {
	OrderID     string
	OrderNumber string
	Amount      decimal.Decimal
	Phone       string
	Email       string
}

// Result is a provider's answer. A RedirectURL means the customer must
// finish on the provider's page and the outcome arrives by webhook.
type Result struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	RedirectURL   string `json:"payment_url,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Settler is one payment method. Settle returns an error only when the
// provider could not be reached or answered nonsense; a decline is a
// Result with Success false.
type Settler interface {
	Method() orders.PaymentMethod
	Settle(ctx context.Context, c Charge) (Result, error)
}

func syntheticID(prefix string, now time.Time) string {
	return prefix + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// CashSettler authorizes pay-on-delivery. Nothing is collected up front.
type CashSettler struct {
	Clock func() time.Time
}

func (CashSettler) Method() orders.PaymentMethod { return orders.MethodCash }

func (s CashSettler) Settle(context.Context, Charge) (Result, error) {
	now := time.Now()
	if s.Clock != nil {
		now = s.Clock()
	}
	return Result{
		Success:       true,
		TransactionID: syntheticID("COD", now),
		Message:       "Cash on Delivery confirmed. Pay when your laundry is delivered.",
	}, nil
}
