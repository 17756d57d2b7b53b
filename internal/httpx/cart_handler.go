package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/cart"
	"github.com/ariefcatur/go-laundry-orders/internal/pricing"
)

const sessionHeader = "X-Session-Id"

type cartLine struct {
	cart.Item
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type cartView struct {
	SessionID string          `json:"session_id"`
	Items     []cartLine      `json:"items"`
	Count     int             `json:"count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

func viewCart(c *cart.Cart) cartView {
	lines := make([]cartLine, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, cartLine{Item: it, UnitPrice: cart.UnitPrice(it), LineTotal: cart.ItemPrice(it).Round(2)})
	}
	return cartView{SessionID: c.SessionID, Items: lines, Count: c.Count(), Subtotal: c.Subtotal().Round(2)}
}

// headerSession is the cart key named by the session header. Header keys and
// account keys live in separate namespaces, so no header value can address an
// account's cart.
func headerSession(r *http.Request) string {
	if sid := sanitizeHeader(r.Header.Get(sessionHeader), 128); sid != "" {
		return "sess:" + sid
	}
	return ""
}

// sessionID is the browsing session's cart key. Signed-in callers without a
// session header share one cart per account.
func sessionID(r *http.Request) string {
	if sid := headerSession(r); sid != "" {
		return sid
	}
	if id, ok := identity(r); ok {
		return "user:" + id.UserID
	}
	return ""
}

func (s *Server) loadCart(w http.ResponseWriter, r *http.Request) (*cart.Cart, bool) {
	sid := sessionID(r)
	if sid == "" {
		s.writeError(w, r, apperr.Validation(sessionHeader, "session id is required"))
		return nil, false
	}
	c, err := s.Carts.Load(r.Context(), sid)
	if err != nil {
		s.writeError(w, r, apperr.Downstream("load cart", err))
		return nil, false
	}
	return c, true
}

func (s *Server) saveCart(w http.ResponseWriter, r *http.Request, c *cart.Cart) {
	if err := s.Carts.Save(r.Context(), c); err != nil {
		s.writeError(w, r, apperr.Downstream("save cart", err))
		return
	}
	writeJSON(w, http.StatusOK, viewCart(c))
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCart(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewCart(c))
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if sid == "" {
		s.writeError(w, r, apperr.Validation(sessionHeader, "session id is required"))
		return
	}
	if err := s.Carts.Clear(r.Context(), sid); err != nil {
		s.writeError(w, r, apperr.Downstream("clear cart", err))
		return
	}
	writeJSON(w, http.StatusOK, viewCart(cart.New(sid)))
}

type cartItemReq struct {
	ServiceID string           `json:"service_id"`
	Quantity  *int             `json:"quantity"`
	WeightKg  *decimal.Decimal `json:"weight_kg"`
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ServiceID == "" {
		s.writeError(w, r, apperr.Validation("service_id", "service is required"))
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	svc, err := s.Catalog.Get(r.Context(), req.ServiceID)
	if err != nil {
		s.writeError(w, r, apperr.Downstream("load service", err))
		return
	}
	if !svc.IsActive {
		s.writeError(w, r, apperr.Validation("service_id", svc.Name+" is not available"))
		return
	}
	c, ok := s.loadCart(w, r)
	if !ok {
		return
	}
	if err := c.Add(svc, qty, req.WeightKg); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.saveCart(w, r, c)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Quantity == nil && req.WeightKg == nil {
		s.writeError(w, r, apperr.Validation("quantity", "quantity or weight_kg is required"))
		return
	}
	c, ok := s.loadCart(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "serviceID")
	if req.WeightKg != nil {
		if err := c.SetWeight(id, *req.WeightKg); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.Quantity != nil {
		if err := c.SetQuantity(id, *req.Quantity); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.saveCart(w, r, c)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCart(w, r)
	if !ok {
		return
	}
	c.Remove(chi.URLParam(r, "serviceID"))
	s.saveCart(w, r, c)
}

type applyPromotionReq struct {
	Code     string           `json:"promo_code"`
	Area     string           `json:"area"`
	Subtotal *decimal.Decimal `json:"subtotal,omitempty"`
}

// applyPromotion quotes an explicit subtotal, or the session cart when none
// is given.
func (s *Server) applyPromotion(w http.ResponseWriter, r *http.Request) {
	var req applyPromotionReq
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if pricing.NormalizeCode(req.Code) == "" {
		s.writeError(w, r, apperr.Validation("promo_code", "promo code is required"))
		return
	}
	var subtotal decimal.Decimal
	if req.Subtotal != nil {
		if req.Subtotal.IsNegative() {
			s.writeError(w, r, apperr.Validation("subtotal", "must not be negative"))
			return
		}
		subtotal = *req.Subtotal
	} else {
		c, ok := s.loadCart(w, r)
		if !ok {
			return
		}
		subtotal = c.Subtotal()
	}
	q, err := s.Pricing.Quote(r.Context(), subtotal, req.Area, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
