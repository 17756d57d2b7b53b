package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/auth"
	"github.com/ariefcatur/go-laundry-orders/internal/cart"
	"github.com/ariefcatur/go-laundry-orders/internal/catalog"
	"github.com/ariefcatur/go-laundry-orders/internal/checkout"
	"github.com/ariefcatur/go-laundry-orders/internal/notify"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/payments"
	"github.com/ariefcatur/go-laundry-orders/internal/pricing"
	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
)

const jazzSalt = "salt"

type harness struct {
	t      *testing.T
	h      http.Handler
	tokens *auth.Tokens
	store  *orders.MemoryStore
	addrs  *orders.MemoryAddressRepo
	idem   *redisx.MemoryIdempotency
}

func newHarness(t *testing.T) *harness { return newHarnessWith(t, nil) }

// newHarnessWith lets a test put a wrapper between the handlers and the
// in-memory order store.
func newHarnessWith(t *testing.T, wrap func(orders.Store) orders.Store) *harness {
	t.Helper()
	store := orders.NewMemoryStore()
	var st orders.Store = store
	if wrap != nil {
		st = wrap(store)
	}
	addrs := orders.NewMemoryAddressRepo()
	cat := catalog.NewMemoryRepo(
		catalog.Service{ID: "wash-fold", Name: "Wash & Fold", BasePrice: decimal.NewFromInt(200), PricePerKg: decimal.NewNullDecimal(decimal.NewFromInt(200)), PriceType: catalog.PerKg, IsActive: true},
		catalog.Service{ID: "shirt-iron", Name: "Shirt Ironing", BasePrice: decimal.NewFromInt(50), PriceType: catalog.PerPiece, IsActive: true},
	)
	promos := pricing.NewMemoryPromotionRepo(pricing.Promotion{Code: "SAVE10", DiscountType: pricing.DiscountFixed, DiscountValue: decimal.NewFromInt(100), IsActive: true})
	calc := pricing.NewCalculator(promos)
	carts := cart.NewMemoryStore()
	inbox := notify.NewMemorySink()
	notes := notify.SinkDispatcher{Sink: inbox}
	lc := orders.NewLifecycle(st, notes, nil)
	proc := payments.NewProcessor(st, lc, nil, payments.CashSettler{}, payments.NewStripeSettler("", "", nil))
	asm := &checkout.Assembler{Catalog: cat, Addresses: addrs, Orders: st, Pricing: calc, Notifier: notes}
	tokens := auth.NewTokens("test-secret")
	idem := redisx.NewMemoryIdempotency()

	s := &Server{
		Catalog:       cat,
		Carts:         carts,
		Pricing:       calc,
		Addresses:     addrs,
		Orders:        st,
		Lifecycle:     lc,
		Checkout:      &checkout.Service{Assembler: asm, Payments: proc, Carts: carts},
		Payments:      proc,
		Webhooks:      payments.WebhookVerifier{JazzCashSalt: jazzSalt},
		Idempotency:   idem,
		Notifications: inbox,
		Tokens:        tokens,
	}
	return &harness{t: t, h: s.Routes(), tokens: tokens, store: store, addrs: addrs, idem: idem}
}

func (h *harness) token(userID, role string) string {
	tok, err := h.tokens.Sign(auth.Identity{UserID: userID, Role: role})
	require.NoError(h.t, err)
	return tok
}

type call struct {
	method, path string
	body         any
	token        string
	headers      map[string]string
}

func (h *harness) do(c call) (*httptest.ResponseRecorder, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func (h *harness) address(userID string) string {
	a := orders.Address{UserID: userID, Line1: "House 1", Area: "Clifton", City: "Karachi"}
	require.NoError(h.t, h.addrs.Create(context.Background(), &a))
	return a.ID
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServices_AdminOnlyWrites(t *testing.T) {
	h := newHarness(t)
	svc := map[string]any{"id": "duvet", "name": "Duvet Wash", "price_type": "per_piece", "base_price": "800", "category": "wash", "is_active": true}

	rec, body := h.do(call{method: http.MethodPost, path: "/services", body: svc})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", body["error"])
	assert.NotEmpty(t, body["request_id"])

	rec, _ = h.do(call{method: http.MethodPost, path: "/services", body: svc, token: h.token("u1", "")})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = h.do(call{method: http.MethodPost, path: "/services", body: svc, token: h.token("a1", auth.RoleAdmin)})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = h.do(call{method: http.MethodGet, path: "/services"})
	var list []catalog.Service
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 3)
}

func TestCart_Flow(t *testing.T) {
	h := newHarness(t)
	sess := map[string]string{sessionHeader: "sess-1"}

	rec, body := h.do(call{method: http.MethodPost, path: "/cart/items", headers: sess, body: map[string]any{"service_id": "wash-fold", "weight_kg": "0.2"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "weight", body["field"])

	rec, _ = h.do(call{method: http.MethodPost, path: "/cart/items", headers: sess, body: map[string]any{"service_id": "wash-fold", "weight_kg": "2.5"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body = h.do(call{method: http.MethodPost, path: "/cart/items", headers: sess, body: map[string]any{"service_id": "shirt-iron", "quantity": 3}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "650", body["subtotal"])
	assert.EqualValues(t, 4, body["count"])

	rec, body = h.do(call{method: http.MethodPut, path: "/cart/items/shirt-iron", headers: sess, body: map[string]any{"quantity": 1}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "550", body["subtotal"])

	rec, body = h.do(call{method: http.MethodDelete, path: "/cart/items/wash-fold", headers: sess})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "50", body["subtotal"])

	rec, _ = h.do(call{method: http.MethodGet, path: "/cart"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no session")
}

func TestApplyPromotion(t *testing.T) {
	h := newHarness(t)
	rec, body := h.do(call{method: http.MethodPost, path: "/promotions/apply", body: map[string]any{"promo_code": "save10", "area": "Clifton", "subtotal": "600"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "650", body["total_amount"])
	assert.Equal(t, "SAVE10", body["promo_code"])

	rec, body = h.do(call{method: http.MethodPost, path: "/promotions/apply", body: map[string]any{"promo_code": "BOGUS", "subtotal": "600"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestAddresses(t *testing.T) {
	h := newHarness(t)
	tok := h.token("u1", "")

	rec, body := h.do(call{method: http.MethodPost, path: "/addresses", token: tok, body: map[string]any{"address_line1": "Flat 2", "area": "PECHS"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["is_primary"], "first address becomes primary")
	assert.Equal(t, "Karachi", body["city"])
	id := body["id"].(string)

	rec, _ = h.do(call{method: http.MethodPost, path: "/addresses", token: tok, body: map[string]any{"address_line1": "Shop 9"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(call{method: http.MethodDelete, path: "/addresses/" + id, token: h.token("u2", "")})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(call{method: http.MethodDelete, path: "/addresses/" + id, token: tok})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUpdateAddress_PrimaryDemotesOthers(t *testing.T) {
	h := newHarness(t)
	tok := h.token("u1", "")
	first := h.address("u1")
	second := h.address("u1")

	rec, body := h.do(call{method: http.MethodPut, path: "/addresses/" + second, token: tok, body: map[string]any{
		"address_line1": "Office 3", "area": "Malir", "label": "work", "is_primary": true,
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["is_primary"])
	assert.Equal(t, "Malir", body["area"])

	a, err := h.addrs.Get(context.Background(), first)
	require.NoError(t, err)
	assert.False(t, a.IsPrimary)

	rec, _ = h.do(call{method: http.MethodPut, path: "/addresses/" + second, token: h.token("u2", ""), body: map[string]any{
		"address_line1": "Hijack", "area": "Malir",
	}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = h.do(call{method: http.MethodPut, path: "/addresses/" + second, token: tok, body: map[string]any{"address_line1": "Office 3"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "area", body["field"])
}

func TestPlaceOrder_FromCartIsIdempotent(t *testing.T) {
	h := newHarness(t)
	tok := h.token("u1", "")
	addr := h.address("u1")
	sess := map[string]string{sessionHeader: "sess-9"}

	rec, _ := h.do(call{method: http.MethodPost, path: "/cart/items", headers: sess, body: map[string]any{"service_id": "shirt-iron", "quantity": 4}})
	require.Equal(t, http.StatusOK, rec.Code)

	headers := map[string]string{sessionHeader: "sess-9", idempotencyHeader: "abc-123"}
	rec, body := h.do(call{method: http.MethodPost, path: "/orders", token: tok, headers: headers, body: map[string]any{"pickup_address_id": addr}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := body["id"].(string)
	assert.Equal(t, "confirmed", body["status"])
	assert.Equal(t, "350", body["total_amount"])
	assert.Len(t, body["items"], 1)

	rec, body = h.do(call{method: http.MethodPost, path: "/orders", token: tok, headers: headers, body: map[string]any{"pickup_address_id": addr}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(replayedHeader))
	assert.Equal(t, orderID, body["id"])

	all, err := h.store.List(context.Background(), orders.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, cartBody := h.do(call{method: http.MethodGet, path: "/cart", headers: sess})
	assert.EqualValues(t, 0, cartBody["count"])
}

func TestGuestOrder(t *testing.T) {
	h := newHarness(t)
	rec, body := h.do(call{method: http.MethodPost, path: "/orders/guest", body: map[string]any{
		"items":          []map[string]any{{"service_id": "shirt-iron", "quantity": 2}},
		"guest":          map[string]any{"name": "Ayesha", "phone": "0321 1234567"},
		"pickup_address": map[string]any{"address_line1": "House 5", "area": "Saddar"},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	guest := body["guest"].(map[string]any)
	assert.Equal(t, "+923211234567", guest["phone"])
	assert.Equal(t, "pending", body["status"])

	rec, body = h.do(call{method: http.MethodPost, path: "/orders/guest", body: map[string]any{
		"items": []map[string]any{{"service_id": "shirt-iron", "quantity": 2}},
		"guest": map[string]any{"name": "Ayesha", "phone": "12"},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "guest.phone", body["field"])
}

func TestGuestOrder_IdempotencyKeyBoundToRequest(t *testing.T) {
	h := newHarness(t)
	key := map[string]string{idempotencyHeader: "checkout-1"}
	guest := func(name, phone string) map[string]any {
		return map[string]any{
			"items":          []map[string]any{{"service_id": "shirt-iron", "quantity": 1}},
			"guest":          map[string]any{"name": name, "phone": phone},
			"pickup_address": map[string]any{"address_line1": "House 5", "area": "Saddar"},
		}
	}

	rec, body := h.do(call{method: http.MethodPost, path: "/orders/guest", headers: key, body: guest("Ayesha", "03211234567")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := body["id"].(string)

	// another guest picking the same key gets nothing of the first order
	rec, body = h.do(call{method: http.MethodPost, path: "/orders/guest", headers: key, body: guest("Bilal", "03009876543")})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "idempotency_key_conflict", body["error"])
	assert.NotContains(t, rec.Body.String(), first)
	assert.NotContains(t, rec.Body.String(), "Ayesha")
	assert.Empty(t, rec.Header().Get(replayedHeader))

	rec, body = h.do(call{method: http.MethodPost, path: "/orders/guest", headers: key, body: guest("Ayesha", "03211234567")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(replayedHeader))
	assert.Equal(t, first, body["id"])

	all, err := h.store.List(context.Background(), orders.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGuestOrder_FailedAttemptFreesKey(t *testing.T) {
	h := newHarness(t)
	key := map[string]string{idempotencyHeader: "checkout-2"}
	req := map[string]any{
		"items":          []map[string]any{{"service_id": "shirt-iron", "quantity": 1}},
		"guest":          map[string]any{"name": "Ayesha", "phone": "12"},
		"pickup_address": map[string]any{"address_line1": "House 5", "area": "Saddar"},
	}
	rec, _ := h.do(call{method: http.MethodPost, path: "/orders/guest", headers: key, body: req})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req["guest"] = map[string]any{"name": "Ayesha", "phone": "03211234567"}
	rec, _ = h.do(call{method: http.MethodPost, path: "/orders/guest", headers: key, body: req})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestGuestOrder_KeyInProgressConflicts(t *testing.T) {
	h := newHarness(t)
	_, fresh, err := h.idem.Reserve(context.Background(), "guest:checkout-3", "someone-else")
	require.NoError(t, err)
	require.True(t, fresh)

	rec, body := h.do(call{method: http.MethodPost, path: "/orders/guest", headers: map[string]string{idempotencyHeader: "checkout-3"}, body: map[string]any{}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "idempotency_key_conflict", body["error"])

	_, _, err = h.idem.Reserve(context.Background(), "guest:checkout-4", fingerprint([]byte("{}\n")))
	require.NoError(t, err)
	rec, body = h.do(call{method: http.MethodPost, path: "/orders/guest", headers: map[string]string{idempotencyHeader: "checkout-4"}, body: map[string]any{}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "idempotency_in_progress", body["error"])
}

func TestCart_HeaderCannotNameAccountCart(t *testing.T) {
	h := newHarness(t)
	tok := h.token("u1", "")

	rec, _ := h.do(call{method: http.MethodPost, path: "/cart/items", token: tok, body: map[string]any{"service_id": "shirt-iron", "quantity": 2}})
	require.Equal(t, http.StatusOK, rec.Code)

	_, body := h.do(call{method: http.MethodGet, path: "/cart", headers: map[string]string{sessionHeader: "user:u1"}})
	assert.EqualValues(t, 0, body["count"])

	_, body = h.do(call{method: http.MethodGet, path: "/cart", token: tok})
	assert.EqualValues(t, 2, body["count"])
}

func placeFor(t *testing.T, h *harness, userID string) string {
	t.Helper()
	addr := h.address(userID)
	rec, body := h.do(call{method: http.MethodPost, path: "/orders", token: h.token(userID, ""), body: map[string]any{
		"items":             []map[string]any{{"service_id": "shirt-iron", "quantity": 1}},
		"pickup_address_id": addr,
		"payment_method":    "card",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return body["id"].(string)
}

func TestOrderAccessAndAdminUpdate(t *testing.T) {
	h := newHarness(t)
	id := placeFor(t, h, "u1")
	admin := h.token("a1", auth.RoleAdmin)

	rec, _ := h.do(call{method: http.MethodGet, path: "/orders/" + id, token: h.token("u2", "")})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := h.do(call{method: http.MethodGet, path: "/orders/" + id, token: admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid", body["payment_status"])

	rec, _ = h.do(call{method: http.MethodPatch, path: "/orders/" + id, token: h.token("u1", ""), body: map[string]any{"status": "washing"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = h.do(call{method: http.MethodPatch, path: "/orders/" + id, token: admin, body: map[string]any{"status": "washing", "notes": "<i>started</i>"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "washing", body["status"])

	rec, body = h.do(call{method: http.MethodPatch, path: "/orders/" + id, token: admin, body: map[string]any{"status": "picked_up"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "washing", body["current_status"])

	_, body = h.do(call{method: http.MethodGet, path: "/orders/" + id, token: h.token("u1", "")})
	tracking := body["tracking"].([]any)
	require.Len(t, tracking, 3)
	assert.Equal(t, "started", tracking[0].(map[string]any)["notes"])

	rec, _ = h.do(call{method: http.MethodGet, path: "/orders?status=bogus", token: admin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = h.do(call{method: http.MethodGet, path: "/orders?status=washing&limit=5", token: admin})
	var list []orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	tok := h.token("u1", "")
	addr := h.address("u1")

	// jazzcash has no settler here, so the order stays pending
	rec, body := h.do(call{method: http.MethodPost, path: "/orders", token: tok, body: map[string]any{
		"items":             []map[string]any{{"service_id": "shirt-iron", "quantity": 1}},
		"pickup_address_id": addr,
		"payment_method":    "jazzcash",
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, body["payment_error"])
	id := body["id"].(string)

	rec, _ = h.do(call{method: http.MethodDelete, path: "/orders/" + id, token: h.token("u2", "")})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = h.do(call{method: http.MethodDelete, path: "/orders/" + id, token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", body["status"])

	rec, body = h.do(call{method: http.MethodDelete, path: "/orders/" + id, token: tok})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cancelled", body["current_status"])
}

func TestPayments(t *testing.T) {
	h := newHarness(t)
	tok := h.token("u1", "")
	addr := h.address("u1")
	rec, body := h.do(call{method: http.MethodPost, path: "/orders", token: tok, body: map[string]any{
		"items":             []map[string]any{{"service_id": "shirt-iron", "quantity": 2}},
		"pickup_address_id": addr,
		"payment_method":    "easypaisa",
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := body["id"].(string)

	rec, body = h.do(call{method: http.MethodPost, path: "/payments", token: tok, body: map[string]any{"order_id": id, "amount": "1", "payment_method": "card"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount", body["field"])

	rec, _ = h.do(call{method: http.MethodPost, path: "/payments", body: map[string]any{"order_id": id, "amount": "250", "payment_method": "card"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body = h.do(call{method: http.MethodPost, path: "/payments", token: tok, body: map[string]any{"order_id": id, "amount": "250", "payment_method": "card"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])

	rec, body = h.do(call{method: http.MethodPost, path: "/payments", token: tok, body: map[string]any{"order_id": id, "amount": "250", "payment_method": "card"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "paid", body["current_status"])
}

func TestPaymentWebhook_JazzCash(t *testing.T) {
	h := newHarness(t)
	tok := h.token("u1", "")
	addr := h.address("u1")
	_, body := h.do(call{method: http.MethodPost, path: "/orders", token: tok, body: map[string]any{
		"items":             []map[string]any{{"service_id": "shirt-iron", "quantity": 2}},
		"pickup_address_id": addr,
		"payment_method":    "jazzcash",
	}})
	id := body["id"].(string)

	fields := map[string]string{"pp_TxnRefNo": id, "pp_ResponseCode": "000", "pp_RetreivalReferenceNo": "RRN1"}
	fields["pp_SecureHash"] = payments.Signature(fields, jazzSalt)
	rec, body := h.do(call{method: http.MethodPost, path: "/webhooks/payments?provider=jazzcash", body: fields})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "paid", body["payment_status"])

	o, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, o.Status)

	fields["pp_SecureHash"] = "00"
	rec, _ = h.do(call{method: http.MethodPost, path: "/webhooks/payments?provider=jazzcash", body: fields})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = h.do(call{method: http.MethodPost, path: "/webhooks/payments?provider=paypal", body: fields})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// racingStore loses the next `stale` conditional writes to a concurrent
// writer.
type racingStore struct {
	orders.Store
	stale atomic.Int32
}

func (s *racingStore) Apply(ctx context.Context, m orders.Mutation) (orders.Order, error) {
	if s.stale.Add(-1) >= 0 {
		return orders.Order{}, apperr.StaleWrite(string(m.ExpectStatus))
	}
	return s.Store.Apply(ctx, m)
}

func TestPaymentWebhook_ConcurrentWriteIsRedelivered(t *testing.T) {
	racing := &racingStore{}
	h := newHarnessWith(t, func(s orders.Store) orders.Store {
		racing.Store = s
		return racing
	})
	addr := h.address("u1")
	_, body := h.do(call{method: http.MethodPost, path: "/orders", token: h.token("u1", ""), body: map[string]any{
		"items":             []map[string]any{{"service_id": "shirt-iron", "quantity": 2}},
		"pickup_address_id": addr,
		"payment_method":    "jazzcash",
	}})
	id := body["id"].(string)
	fields := map[string]string{"pp_TxnRefNo": id, "pp_ResponseCode": "000", "pp_RetreivalReferenceNo": "RRN1"}
	fields["pp_SecureHash"] = payments.Signature(fields, jazzSalt)

	// both the first attempt and its retry lose
	racing.stale.Store(2)
	rec, body := h.do(call{method: http.MethodPost, path: "/webhooks/payments?provider=jazzcash", body: fields})
	assert.Equal(t, http.StatusConflict, rec.Code, "not acknowledged, so the provider retries")
	assert.Equal(t, "conflict", body["error"])
	o, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)

	// the first attempt loses, the retry lands
	racing.stale.Store(1)
	rec, body = h.do(call{method: http.MethodPost, path: "/webhooks/payments?provider=jazzcash", body: fields})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["applied"])
	assert.Equal(t, "paid", body["payment_status"])

	// a cancelled order cannot take the payment; that is acknowledged
	_, body = h.do(call{method: http.MethodPost, path: "/orders", token: h.token("u1", ""), body: map[string]any{
		"items":             []map[string]any{{"service_id": "shirt-iron", "quantity": 1}},
		"pickup_address_id": addr,
		"payment_method":    "jazzcash",
	}})
	id2 := body["id"].(string)
	rec, _ = h.do(call{method: http.MethodDelete, path: "/orders/" + id2, token: h.token("u1", "")})
	require.Equal(t, http.StatusOK, rec.Code)
	fields = map[string]string{"pp_TxnRefNo": id2, "pp_ResponseCode": "000"}
	fields["pp_SecureHash"] = payments.Signature(fields, jazzSalt)
	rec, body = h.do(call{method: http.MethodPost, path: "/webhooks/payments?provider=jazzcash", body: fields})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["applied"])
}

func TestNotifications_Inbox(t *testing.T) {
	h := newHarness(t)
	placeFor(t, h, "u1")
	tok := h.token("u1", "")

	rec, _ := h.do(call{method: http.MethodGet, path: "/notifications"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = h.do(call{method: http.MethodGet, path: "/notifications", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	var list []notify.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.NotEmpty(t, list)
	total := len(list)
	first := list[0].ID

	rec, _ = h.do(call{method: http.MethodGet, path: "/notifications", token: h.token("u2", "")})
	assert.JSONEq(t, "[]", rec.Body.String())

	rec, _ = h.do(call{method: http.MethodPost, path: "/notifications/" + first + "/read", token: h.token("u2", "")})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(call{method: http.MethodPost, path: "/notifications/" + first + "/read", token: tok})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = h.do(call{method: http.MethodGet, path: "/notifications?unread=true", token: tok})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, total-1)
	for _, n := range list {
		assert.NotEqual(t, first, n.ID)
	}

	rec, _ = h.do(call{method: http.MethodGet, path: "/notifications?unread=maybe", token: tok})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
