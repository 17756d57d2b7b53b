package redisx

import (
	"context"
	"sync"
	"time"
)

// MemoryIdempotency is the in-process stand-in for Idempotency when Redis is
// not configured. Entries expire after TTLIdempotency.
type MemoryIdempotency struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	res     Reservation
	expires time.Time
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{m: make(map[string]memEntry), now: time.Now}
}

func (i *MemoryIdempotency) Reserve(_ context.Context, key, fingerprint string) (Reservation, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if e, ok := i.m[key]; ok && !i.now().After(e.expires) {
		return e.res, false, nil
	}
	res := Reservation{Fingerprint: fingerprint}
	i.m[key] = memEntry{res: res, expires: i.now().Add(TTLIdempotency)}
	return res, true, nil
}

func (i *MemoryIdempotency) Complete(_ context.Context, key string, res Reservation) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.m[key] = memEntry{res: res, expires: i.now().Add(TTLIdempotency)}
	return nil
}

func (i *MemoryIdempotency) Release(_ context.Context, key string) error {
	i.mu.Lock()
	delete(i.m, key)
	i.mu.Unlock()
	return nil
}

type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDedup() *MemoryDedup { return &MemoryDedup{seen: make(map[string]struct{})} }

func (d *MemoryDedup) Claim(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[eventID]; ok {
		return false, nil
	}
	d.seen[eventID] = struct{}{}
	return true, nil
}

func (d *MemoryDedup) Release(_ context.Context, eventID string) error {
	d.mu.Lock()
	delete(d.seen, eventID)
	d.mu.Unlock()
	return nil
}
