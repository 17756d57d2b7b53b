package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
)

// Store persists carts keyed by session. Load returns an empty cart for an
// unknown session.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Clear(ctx context.Context, sessionID string) error
}

type RedisStore struct {
	Redis *redis.Client
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Cart, error) {
	b, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyCart, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(sessionID), nil
	}
	if err != nil {
		return nil, err
	}
	var c Cart
	if err := json.Unmarshal(b, &c); err != nil {
		// a corrupt cart is dropped rather than blocking checkout
		return New(sessionID), nil
	}
	c.SessionID = sessionID
	if c.Items == nil {
		c.Items = []Item{}
	}
	return &c, nil
}

func (s *RedisStore) Save(ctx context.Context, c *Cart) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyCart, c.SessionID), b, redisx.TTLCart).Err()
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyCart, sessionID)).Err()
}

type MemoryStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string][]byte)}
}

// Carts are stored serialized so callers never share line slices.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Cart, error) {
	s.mu.Lock()
	b, ok := s.m[sessionID]
	s.mu.Unlock()
	if !ok {
		return New(sessionID), nil
	}
	var c Cart
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MemoryStore) Save(_ context.Context, c *Cart) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.m[c.SessionID] = b
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.m, sessionID)
	s.mu.Unlock()
	return nil
}
