package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, apperr.Validation("body", "unreadable body")
	}
	return b, nil
}

func decode(r *http.Request, v any) error {
	return decodeFrom(io.LimitReader(r.Body, maxBody), v)
}

func decodeFrom(rd io.Reader, v any) error {
	dec := json.NewDecoder(rd)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("body", "request body is empty")
		}
		return apperr.Validation("body", "invalid json")
	}
	return nil
}

// errorBody maps err onto the JSON envelope and status code.
func errorBody(err error) (int, map[string]any) {
	var (
		v *apperr.ValidationError
		n *apperr.NotFoundError
		a *apperr.AuthorizationError
		c *apperr.ConflictError
		d *apperr.DownstreamError
	)
	switch {
	case errors.As(err, &v):
		body := map[string]any{"error": "validation_error", "message": v.Error()}
		if v.Field != "" {
			body["field"] = v.Field
		}
		return http.StatusBadRequest, body
	case errors.As(err, &n):
		return http.StatusNotFound, map[string]any{"error": "not_found", "message": n.Error()}
	case errors.As(err, &a):
		if a.Unauthenticated {
			return http.StatusUnauthorized, map[string]any{"error": "unauthenticated", "message": a.Msg}
		}
		return http.StatusForbidden, map[string]any{"error": "forbidden", "message": a.Msg}
	case errors.As(err, &c):
		code := "conflict"
		if c.Code != "" {
			code = c.Code
		}
		body := map[string]any{"error": code, "message": c.Msg}
		if c.Current != "" {
			body["current_status"] = c.Current
		}
		return http.StatusConflict, body
	case errors.As(err, &d):
		return http.StatusBadGateway, map[string]any{"error": "downstream_error", "message": "a dependency failed: " + d.Op}
	default:
		return http.StatusInternalServerError, map[string]any{"error": "internal_error", "message": "internal server error"}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorBody(err)
	body["status"] = status
	reqID := middleware.GetReqID(r.Context())
	if reqID != "" {
		body["request_id"] = reqID
	}
	if status >= http.StatusInternalServerError {
		s.log().Error("request failed",
			zap.String("request_id", reqID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

func sanitizeHeader(v string, limit int) string {
	v = strings.TrimSpace(strings.NewReplacer("\n", "", "\r", "").Replace(v))
	if len(v) > limit {
		v = v[:limit]
	}
	return v
}
