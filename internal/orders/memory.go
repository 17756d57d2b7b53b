package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
)

// MemoryStore is an in-process Store used when no database is configured.
type MemoryStore struct {
	mu       sync.Mutex
	orders   map[string]Order
	items    map[string][]Item
	tracking map[string][]TrackingEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]Order),
		items:    make(map[string][]Item),
		tracking: make(map[string][]TrackingEntry),
	}
}

func (s *MemoryStore) InsertOrder(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	for _, existing := range s.orders {
		if existing.OrderNumber == o.OrderNumber {
			return apperr.Conflict("", "duplicate order number "+o.OrderNumber)
		}
	}
	s.orders[o.ID] = *o
	return nil
}

func (s *MemoryStore) InsertItems(_ context.Context, orderID string, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return apperr.NotFound("order", orderID)
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].OrderID = orderID
	}
	s.items[orderID] = append(s.items[orderID], items...)
	return nil
}

func (s *MemoryStore) AppendTracking(_ context.Context, e TrackingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendTracking(e)
}

func (s *MemoryStore) appendTracking(e TrackingEntry) error {
	if _, ok := s.orders[e.OrderID]; !ok {
		return apperr.NotFound("order", e.OrderID)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.tracking[e.OrderID] = append(s.tracking[e.OrderID], e)
	return nil
}

func (s *MemoryStore) DeleteOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, orderID)
	delete(s.items, orderID)
	delete(s.tracking, orderID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orderID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, apperr.NotFound("order", orderID)
	}
	return o, nil
}

func (s *MemoryStore) Items(_ context.Context, orderID string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items[orderID]...), nil
}

// Tracking returns entries newest first.
func (s *MemoryStore) Tracking(_ context.Context, orderID string) ([]TrackingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.tracking[orderID]
	out := make([]TrackingEntry, len(src))
	for i, e := range src {
		out[len(src)-1-i] = e
	}
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderNumber > out[j].OrderNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Apply(_ context.Context, m Mutation) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[m.OrderID]
	if !ok {
		return Order{}, apperr.NotFound("order", m.OrderID)
	}
	if o.Status != m.ExpectStatus || o.PaymentStatus != m.ExpectPayment {
		return Order{}, apperr.StaleWrite(string(o.Status))
	}
	m.apply(&o)
	s.orders[o.ID] = o
	if m.Tracking != nil {
		e := *m.Tracking
		e.OrderID = o.ID
		if err := s.appendTracking(e); err != nil {
			return Order{}, err
		}
	}
	return o, nil
}

type MemoryAddressRepo struct {
	mu sync.Mutex
	m  map[string]Address
}

func NewMemoryAddressRepo(seed ...Address) *MemoryAddressRepo {
	r := &MemoryAddressRepo{m: make(map[string]Address)}
	for _, a := range seed {
		r.m[a.ID] = a
	}
	return r
}

func (r *MemoryAddressRepo) ListByUser(_ context.Context, userID string) ([]Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Address
	for _, a := range r.m {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryAddressRepo) Get(_ context.Context, id string) (Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.m[id]
	if !ok {
		return Address{}, apperr.NotFound("address", id)
	}
	return a, nil
}

func (r *MemoryAddressRepo) Create(_ context.Context, a *Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	first := true
	for _, x := range r.m {
		if x.UserID == a.UserID {
			first = false
			break
		}
	}
	if first {
		a.IsPrimary = true
	}
	if a.IsPrimary {
		for id, x := range r.m {
			if x.UserID == a.UserID && x.IsPrimary {
				x.IsPrimary = false
				r.m[id] = x
			}
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	r.m[a.ID] = *a
	return nil
}

func (r *MemoryAddressRepo) Update(_ context.Context, a *Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.m[a.ID]
	if !ok || old.UserID != a.UserID {
		return apperr.NotFound("address", a.ID)
	}
	if a.IsPrimary {
		for id, x := range r.m {
			if id != a.ID && x.UserID == a.UserID && x.IsPrimary {
				x.IsPrimary = false
				r.m[id] = x
			}
		}
	}
	a.CreatedAt = old.CreatedAt
	r.m[a.ID] = *a
	return nil
}

func (r *MemoryAddressRepo) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.m[id]
	if !ok || a.UserID != userID {
		return apperr.NotFound("address", id)
	}
	delete(r.m, id)
	return nil
}
