package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-laundry-orders/internal/orders"
)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeSettler takes card payments through Stripe Checkout. Without an API
// key it runs in sandbox mode and approves every charge.
type StripeSettler struct {
	sessions stripeSessionAPI
	appURL   string
	currency string
	clock    func() time.Time
	log      *zap.Logger
}

func NewStripeSettler(apiKey, appURL string, log *zap.Logger) *StripeSettler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &StripeSettler{
		appURL:   strings.TrimRight(appURL, "/"),
		currency: "pkr",
		clock:    time.Now,
		log:      log,
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		s.sessions = client.New(key, nil).CheckoutSessions
	}
	return s
}

func (*StripeSettler) Method() orders.PaymentMethod { return orders.MethodCard }

func (s *StripeSettler) Sandbox() bool { return s.sessions == nil }

func (s *StripeSettler) Settle(ctx context.Context, c Charge) (Result, error) {
	if s.Sandbox() {
		return Result{
			Success:       true,
			TransactionID: syntheticID("CARD", s.clock()),
			Message:       "Card payment processed successfully.",
		}, nil
	}

	orderURL := fmt.Sprintf("%s/dashboard/orders/%s", s.appURL, c.OrderID)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(orderURL + "?payment=success"),
		CancelURL:         stripe.String(orderURL + "?payment=cancelled"),
		ClientReferenceID: stripe.String(c.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency),
				UnitAmount: stripe.Int64(c.Amount.Shift(2).Round(0).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Laundry order #" + c.OrderNumber),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": c.OrderID},
		},
	}
	params.AddMetadata("order_id", c.OrderID)
	params.Context = ctx
	if c.Email != "" {
		params.CustomerEmail = stripe.String(c.Email)
	}

	session, err := s.sessions.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
			return Result{Success: false, Message: serr.Msg}, nil
		}
		return Result{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	s.log.Info("stripe checkout session created",
		zap.String("order_id", c.OrderID),
		zap.String("session_id", session.ID),
	)
	return Result{
		Success:       true,
		TransactionID: session.ID,
		RedirectURL:   session.URL,
		Message:       "Redirecting to secure card checkout.",
	}, nil
}
