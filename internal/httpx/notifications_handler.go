package httpx

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/notify"
)

// listNotifications returns the caller's inbox, newest first. ?unread=true
// hides what has been read.
func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	q := r.URL.Query()

	unread := false
	if v := q.Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, apperr.Validation("unread", "unread must be true or false"))
			return
		}
		unread = b
	}
	limit := 0
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			s.writeError(w, r, apperr.Validation("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	list, err := s.Notifications.List(r.Context(), id.UserID, unread, limit)
	if err != nil {
		s.writeError(w, r, apperr.Downstream("list notifications", err))
		return
	}
	if list == nil {
		list = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	if err := s.Notifications.MarkRead(r.Context(), id.UserID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, apperr.Downstream("mark notification read", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
