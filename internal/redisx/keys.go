package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{key} -> Reservation JSON
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cart per browsing session: cart:{session_id} -> cart JSON
	KeyCart = "cart:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLCart        = 30 * 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
