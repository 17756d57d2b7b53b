package payments

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
)

const (
	jazzCashSuccess  = "000"
	easyPaisaSuccess = "0000"

	stripeSessionCompleted = "checkout.session.completed"
	stripeIntentFailed     = "payment_intent.payment_failed"
)

// Callback is a verified provider notification about one order.
type Callback struct {
	Method        orders.PaymentMethod
	OrderID       string
	Success       bool
	TransactionID string
}

// WebhookVerifier authenticates provider callbacks. A provider whose secret
// is empty is accepted unverified, which only makes sense in development.
type WebhookVerifier struct {
	StripeSecret string
	JazzCashSalt string
	EasyPaisaKey string
}

func badSignature(provider string) error {
	return apperr.Unauthenticated(provider + " signature verification failed")
}

// Stripe parses a Stripe event. ok is false for event types that carry no
// settlement.
func (v WebhookVerifier) Stripe(payload []byte, sigHeader string) (cb Callback, ok bool, err error) {
	var ev stripe.Event
	if v.StripeSecret != "" {
		ev, err = webhook.ConstructEventWithOptions(payload, sigHeader, v.StripeSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			return Callback{}, false, badSignature("stripe")
		}
	} else if err = json.Unmarshal(payload, &ev); err != nil {
		return Callback{}, false, apperr.Validation("body", "malformed stripe event")
	}
	if ev.Data == nil {
		return Callback{}, false, nil
	}

	cb = Callback{Method: orders.MethodCard}
	switch string(ev.Type) {
	case stripeSessionCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return Callback{}, false, apperr.Validation("data.object", "malformed checkout session")
		}
		cb.OrderID, cb.Success, cb.TransactionID = s.Metadata["order_id"], true, s.ID
	case stripeIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Callback{}, false, apperr.Validation("data.object", "malformed payment intent")
		}
		cb.OrderID, cb.Success, cb.TransactionID = pi.Metadata["order_id"], false, pi.ID
	default:
		return Callback{}, false, nil
	}
	if cb.OrderID == "" {
		return Callback{}, false, nil
	}
	return cb, true, nil
}

func (v WebhookVerifier) JazzCash(fields map[string]string) (Callback, error) {
	if v.JazzCashSalt != "" && !VerifySignature(fields, v.JazzCashSalt) {
		return Callback{}, badSignature("jazzcash")
	}
	id := fields["pp_TxnRefNo"]
	if id == "" {
		return Callback{}, apperr.Validation("pp_TxnRefNo", "missing order reference")
	}
	return Callback{
		Method:        orders.MethodJazzCash,
		OrderID:       id,
		Success:       fields["pp_ResponseCode"] == jazzCashSuccess,
		TransactionID: fields["pp_RetreivalReferenceNo"],
	}, nil
}

func (v WebhookVerifier) EasyPaisa(fields map[string]string) (Callback, error) {
	if v.EasyPaisaKey != "" && !VerifySignature(fields, v.EasyPaisaKey) {
		return Callback{}, badSignature("easypaisa")
	}
	id := fields["orderRefNumber"]
	if id == "" {
		return Callback{}, apperr.Validation("orderRefNumber", "missing order reference")
	}
	return Callback{
		Method:        orders.MethodEasyPaisa,
		OrderID:       id,
		Success:       fields["responseCode"] == easyPaisaSuccess,
		TransactionID: fields["transactionRefNumber"],
	}, nil
}

// Fields flattens a wallet callback body; wallets post flat string maps but
// some send numbers unquoted.
func Fields(body []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperr.Validation("body", "malformed callback")
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out, nil
}
