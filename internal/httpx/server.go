package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-laundry-orders/internal/auth"
	"github.com/ariefcatur/go-laundry-orders/internal/cart"
	"github.com/ariefcatur/go-laundry-orders/internal/catalog"
	"github.com/ariefcatur/go-laundry-orders/internal/checkout"
	kafkax "github.com/ariefcatur/go-laundry-orders/internal/kafka"
	"github.com/ariefcatur/go-laundry-orders/internal/logging"
	"github.com/ariefcatur/go-laundry-orders/internal/notify"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/payments"
	"github.com/ariefcatur/go-laundry-orders/internal/pricing"
	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
)

// Idempotency binds an Idempotency-Key to the request that first used it and
// the order that request created.
type Idempotency interface {
	Reserve(ctx context.Context, key, fingerprint string) (redisx.Reservation, bool, error)
	Complete(ctx context.Context, key string, res redisx.Reservation) error
	Release(ctx context.Context, key string) error
}

type Server struct {
	Catalog       catalog.Repository
	Carts         cart.Store
	Pricing       *pricing.Calculator
	Addresses     orders.AddressRepository
	Orders        orders.Store
	Lifecycle     *orders.Lifecycle
	Checkout      *checkout.Service
	Payments      *payments.Processor
	Webhooks      payments.WebhookVerifier
	Idempotency   Idempotency
	Notifications notify.Inbox
	Tokens        *auth.Tokens
	Log           *zap.Logger
	Timeout       time.Duration
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) Routes() http.Handler {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.Requests(s.log()), middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(traceRequests)
	r.Use(s.Tokens.Middleware(s.writeError))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	requireUser := auth.RequireUser(s.writeError)
	requireAdmin := auth.RequireAdmin(s.writeError)

	r.Get("/services", s.listServices)
	r.With(requireAdmin).Post("/services", s.upsertService)
	r.Get("/areas", s.listAreas)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", s.getCart)
		r.Delete("/", s.clearCart)
		r.Post("/items", s.addCartItem)
		r.Put("/items/{serviceID}", s.updateCartItem)
		r.Delete("/items/{serviceID}", s.removeCartItem)
	})

	r.Post("/promotions/apply", s.applyPromotion)

	r.Route("/addresses", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", s.listAddresses)
		r.Post("/", s.createAddress)
		r.Put("/{id}", s.updateAddress)
		r.Delete("/{id}", s.deleteAddress)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/guest", s.placeGuestOrder)
		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/", s.placeOrder)
			r.Get("/", s.listOrders)
			r.Get("/{id}", s.getOrder)
			r.Delete("/{id}", s.cancelOrder)
			r.With(requireAdmin).Patch("/{id}", s.updateOrder)
		})
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", s.listNotifications)
		r.Post("/{id}/read", s.markNotificationRead)
	})

	r.With(requireUser).Post("/payments", s.pay)
	r.Post("/webhooks/payments", s.paymentWebhook)

	return r
}

// traceRequests carries the request id into published events.
func traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kafkax.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identity(r *http.Request) (auth.Identity, bool) {
	return auth.FromContext(r.Context())
}
