package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/catalog"
	"github.com/ariefcatur/go-laundry-orders/internal/pricing"
)

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	svcs, err := s.Catalog.ListActive(r.Context())
	if err != nil {
		s.writeError(w, r, apperr.Downstream("list services", err))
		return
	}
	if svcs == nil {
		svcs = []catalog.Service{}
	}
	writeJSON(w, http.StatusOK, svcs)
}

func (s *Server) upsertService(w http.ResponseWriter, r *http.Request) {
	var svc catalog.Service
	if err := decode(r, &svc); err != nil {
		s.writeError(w, r, err)
		return
	}
	svc.ID = strings.TrimSpace(svc.ID)
	if svc.ID == "" {
		s.writeError(w, r, apperr.Validation("id", "id is required"))
		return
	}
	if err := svc.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	now := time.Now().UTC()
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = now
	}
	svc.UpdatedAt = now
	if err := s.Catalog.Upsert(r.Context(), &svc); err != nil {
		s.writeError(w, r, apperr.Downstream("save service", err))
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (s *Server) listAreas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"areas":                   pricing.KarachiAreas,
		"free_delivery_threshold": pricing.FreeDeliveryThreshold,
		"base_delivery_fee":       pricing.BaseDeliveryFee,
	})
}
