package httpx

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/payments"
)

func (s *Server) pay(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	var req payments.PayRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.UserID = id.UserID
	res, err := s.Payments.Pay(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// paymentWebhook verifies a provider callback and applies it. Callbacks for
// orders that can no longer take a payment are acknowledged so the provider
// stops retrying. A concurrent-write conflict is not acknowledged: the 409
// makes the provider redeliver.
func (s *Server) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var cb payments.Callback
	provider := strings.ToLower(r.URL.Query().Get("provider"))
	switch provider {
	case "stripe":
		var ok bool
		cb, ok, err = s.Webhooks.Stripe(body, r.Header.Get("Stripe-Signature"))
		if err == nil && !ok {
			writeJSON(w, http.StatusOK, map[string]any{"received": true})
			return
		}
	case "jazzcash", "easypaisa":
		var fields map[string]string
		if fields, err = payments.Fields(body); err != nil {
			break
		}
		if provider == "jazzcash" {
			cb, err = s.Webhooks.JazzCash(fields)
		} else {
			cb, err = s.Webhooks.EasyPaisa(fields)
		}
	default:
		err = apperr.Validation("provider", "unknown payment provider "+provider)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	o, err := s.Payments.Reconcile(r.Context(), cb)
	if apperr.IsConflict(err) && !apperr.IsStale(err) {
		s.log().Warn("webhook for closed order ignored",
			zap.String("provider", provider),
			zap.String("order_id", cb.OrderID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "applied": false})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received":       true,
		"applied":        true,
		"payment_status": o.PaymentStatus,
	})
}
