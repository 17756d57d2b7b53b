package httpx

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/checkout"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
	"github.com/ariefcatur/go-laundry-orders/internal/textutil"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	defaultListLimit = 50
	maxListLimit     = 200
)

// idempotencyKey scopes the client key to its caller so one customer can
// never replay another's order. Guests share one scope; claim keeps them
// apart by request fingerprint.
func idempotencyKey(r *http.Request, scope string) string {
	k := sanitizeHeader(r.Header.Get(idempotencyHeader), 128)
	if k == "" {
		return ""
	}
	return scope + ":" + k
}

// fingerprint identifies a request body. A key reused with a different body
// is a client bug, never a replay.
func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// claim reserves key for this request before any order is assembled, so two
// concurrent submissions cannot both create one. It reports whether the key
// is now held by this request, and whether a response (a replay or a 409)
// has already been written. A failing store is logged and the request goes
// ahead unguarded.
func (s *Server) claim(w http.ResponseWriter, r *http.Request, key, fp string) (held, answered bool) {
	if key == "" || s.Idempotency == nil {
		return false, false
	}
	res, fresh, err := s.Idempotency.Reserve(r.Context(), key, fp)
	if err != nil {
		s.log().Warn("idempotency reserve failed", zap.String("key", key), zap.Error(err))
		return false, false
	}
	switch {
	case fresh:
		return true, false
	case res.Fingerprint != fp:
		s.writeError(w, r, &apperr.ConflictError{Code: "idempotency_key_conflict", Msg: "idempotency key already used for a different request"})
	case res.OrderID == "":
		s.writeError(w, r, &apperr.ConflictError{Code: "idempotency_in_progress", Msg: "another request is processing this idempotency key"})
	default:
		d, err := s.Lifecycle.Detail(r.Context(), res.OrderID, "", true)
		if err != nil {
			s.writeError(w, r, err)
			break
		}
		w.Header().Set(replayedHeader, "true")
		writeJSON(w, http.StatusOK, checkout.Receipt{Detail: d})
	}
	return false, true
}

// settle finishes a held key: it records the created order, or frees the key
// when the request failed so the client can retry with it.
func (s *Server) settle(r *http.Request, key, fp, orderID string) {
	var err error
	if orderID == "" {
		err = s.Idempotency.Release(r.Context(), key)
	} else {
		err = s.Idempotency.Complete(r.Context(), key, redisx.Reservation{Fingerprint: fp, OrderID: orderID})
	}
	if err != nil {
		s.log().Warn("idempotency key not settled", zap.String("key", key), zap.String("order_id", orderID), zap.Error(err))
	}
}

// itemsFromCart fills an empty item list from the session cart.
func (s *Server) itemsFromCart(r *http.Request, req *checkout.PlaceOrder, sid string) error {
	if len(req.Items) > 0 || sid == "" {
		return nil
	}
	c, err := s.Carts.Load(r.Context(), sid)
	if err != nil {
		return apperr.Downstream("load cart", err)
	}
	req.Items = checkout.FromCart(c)
	return nil
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	key, fp := idempotencyKey(r, "user:"+id.UserID), fingerprint(body)
	held, answered := s.claim(w, r, key, fp)
	if answered {
		return
	}
	var created string
	if held {
		defer func() { s.settle(r, key, fp, created) }()
	}

	var req checkout.PlaceOrder
	if err := decodeFrom(bytes.NewReader(body), &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.UserID = id.UserID
	sid := sessionID(r)
	if err := s.itemsFromCart(r, &req, sid); err != nil {
		s.writeError(w, r, err)
		return
	}

	rc, err := s.Checkout.Place(r.Context(), sid, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created = rc.Order.ID
	writeJSON(w, http.StatusCreated, rc)
}

func (s *Server) placeGuestOrder(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	key, fp := idempotencyKey(r, "guest"), fingerprint(body)
	held, answered := s.claim(w, r, key, fp)
	if answered {
		return
	}
	var created string
	if held {
		defer func() { s.settle(r, key, fp, created) }()
	}

	var req checkout.PlaceOrder
	if err := decodeFrom(bytes.NewReader(body), &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sid := headerSession(r)
	if err := s.itemsFromCart(r, &req, sid); err != nil {
		s.writeError(w, r, err)
		return
	}

	rc, err := s.Checkout.PlaceGuest(r.Context(), sid, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created = rc.Order.ID
	writeJSON(w, http.StatusCreated, rc)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	q := r.URL.Query()

	f := orders.Filter{UserID: id.UserID, Limit: defaultListLimit}
	if id.IsAdmin() {
		f.UserID = q.Get("user_id")
	}
	if st := q.Get("status"); st != "" {
		f.Status = orders.Status(st)
		if !f.Status.Valid() {
			s.writeError(w, r, apperr.Validation("status", "unknown status "+strconv.Quote(st)))
			return
		}
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			s.writeError(w, r, apperr.Validation("limit", "limit must be a positive integer"))
			return
		}
		f.Limit = min(n, maxListLimit)
	}

	list, err := s.Orders.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, apperr.Downstream("list orders", err))
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	d, err := s.Lifecycle.Detail(r.Context(), chi.URLParam(r, "id"), id.UserID, id.IsAdmin())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	o, err := s.Lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type updateOrderReq struct {
	Status           *orders.Status        `json:"status"`
	PaymentStatus    *orders.PaymentStatus `json:"payment_status"`
	AssignedDriverID *string               `json:"assigned_driver_id"`
	Notes            string                `json:"notes"`
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	var req updateOrderReq
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.Lifecycle.Update(r.Context(), chi.URLParam(r, "id"), orders.Change{
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		DriverID:      req.AssignedDriverID,
		Note:          textutil.Plain(req.Notes),
	}, id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
