package orders

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const numberPrefix = "WK"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewNumber returns a human-readable, time-ordered order number.
func NewNumber(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return numberPrefix + ulid.MustNew(ulid.Timestamp(now), entropy).String()
}
