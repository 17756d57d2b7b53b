package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// MarkOnce sets key if absent and reports whether this call set it.
func MarkOnce(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, key, "1", ttl).Result()
}

// Reservation is what an idempotency key holds: the fingerprint of the
// request that claimed it and, once that request succeeded, the order id.
// An empty OrderID means the first request is still running.
type Reservation struct {
	Fingerprint string `json:"fingerprint"`
	OrderID     string `json:"order_id,omitempty"`
}

// Idempotency binds a client-supplied key to the request that first used it
// and to the order that request created.
type Idempotency struct {
	Redis *redis.Client
}

func (i *Idempotency) key(k string) string { return fmt.Sprintf(KeyIdemOrderCreate, k) }

// Reserve claims key for fingerprint. When the key is already held it
// returns the existing reservation and false.
func (i *Idempotency) Reserve(ctx context.Context, key, fingerprint string) (Reservation, bool, error) {
	fresh := Reservation{Fingerprint: fingerprint}
	val, err := json.Marshal(fresh)
	if err != nil {
		return Reservation{}, false, err
	}
	// a held key may expire between SETNX and GET; one more round settles it
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := i.Redis.SetNX(ctx, i.key(key), val, TTLIdempotency).Result()
		if err != nil {
			return Reservation{}, false, err
		}
		if ok {
			return fresh, true, nil
		}
		raw, err := i.Redis.Get(ctx, i.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Reservation{}, false, err
		}
		var held Reservation
		if err := json.Unmarshal(raw, &held); err != nil {
			return Reservation{}, false, fmt.Errorf("decode reservation %s: %w", key, err)
		}
		return held, false, nil
	}
	return Reservation{}, false, fmt.Errorf("reserve %s: key churned", key)
}

// Complete records the order a reserved request created.
func (i *Idempotency) Complete(ctx context.Context, key string, res Reservation) error {
	val, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return i.Redis.Set(ctx, i.key(key), val, TTLIdempotency).Err()
}

// Release frees a reservation whose request failed so the client can retry.
func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.Redis.Del(ctx, i.key(key)).Err()
}

// Dedup records processed event ids so redelivered messages are skipped.
type Dedup struct {
	Redis   *redis.Client
	Service string
}

func (d *Dedup) key(eventID string) string { return fmt.Sprintf(KeyDedup, d.Service, eventID) }

// Claim reports whether eventID is new. A claimed id stays claimed for TTLDedup.
func (d *Dedup) Claim(ctx context.Context, eventID string) (bool, error) {
	return MarkOnce(ctx, d.Redis, d.key(eventID), TTLDedup)
}

// Release undoes a Claim after a failed attempt so the redelivery is processed.
func (d *Dedup) Release(ctx context.Context, eventID string) error {
	return d.Redis.Del(ctx, d.key(eventID)).Err()
}
