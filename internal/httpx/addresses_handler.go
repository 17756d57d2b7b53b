package httpx

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/textutil"
)

func (s *Server) listAddresses(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	list, err := s.Addresses.ListByUser(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, apperr.Downstream("list addresses", err))
		return
	}
	if list == nil {
		list = []orders.Address{}
	}
	writeJSON(w, http.StatusOK, list)
}

// readAddress decodes and normalizes an address body for the caller.
func readAddress(r *http.Request, userID string) (orders.Address, error) {
	var a orders.Address
	if err := decode(r, &a); err != nil {
		return a, err
	}
	a = orders.Address{
		UserID:               userID,
		Label:                strings.TrimSpace(a.Label),
		Line1:                strings.TrimSpace(a.Line1),
		Line2:                strings.TrimSpace(a.Line2),
		Area:                 strings.TrimSpace(a.Area),
		City:                 strings.TrimSpace(a.City),
		PostalCode:           strings.TrimSpace(a.PostalCode),
		DeliveryInstructions: textutil.Plain(a.DeliveryInstructions),
		IsPrimary:            a.IsPrimary,
	}
	switch {
	case a.Line1 == "":
		return a, apperr.Validation("address_line1", "street address is required")
	case a.Area == "":
		return a, apperr.Validation("area", "area is required")
	}
	if a.City == "" {
		a.City = "Karachi"
	}
	return a, nil
}

func (s *Server) createAddress(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	a, err := readAddress(r, id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Addresses.Create(r.Context(), &a); err != nil {
		s.writeError(w, r, apperr.Downstream("save address", err))
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) updateAddress(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	a, err := readAddress(r, id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a.ID = chi.URLParam(r, "id")
	if err := s.Addresses.Update(r.Context(), &a); err != nil {
		s.writeError(w, r, apperr.Downstream("update address", err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deleteAddress(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	if err := s.Addresses.Delete(r.Context(), id.UserID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, apperr.Downstream("delete address", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
