package reminder

import (
	"fmt"
	"sync"
	"time"
)

const idSpace = 1_000_000

// IDGenerator issues six-digit reminder ids from the clock's milliseconds.
// Ids issued by one generator never repeat back to back, and callers can pass
// ids already in the store to avoid them as well.
type IDGenerator struct {
	mu   sync.Mutex
	last int
	now  func() time.Time
}

// NewIDGenerator returns a generator reading now; nil means time.Now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{last: -1, now: now}
}

// Next returns an id that differs from the previous one and from every id in taken.
func (g *IDGenerator) Next(taken map[string]struct{}) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := int(g.now().UnixMilli() % idSpace)
	for i := 0; i < idSpace; i++ {
		id := fmt.Sprintf("%06d", n)
		if _, dup := taken[id]; n != g.last && !dup {
			g.last = n
			return id
		}
		n = (n + 1) % idSpace
	}
	// every id is taken; only reachable with a million live reminders
	g.last = n
	return fmt.Sprintf("%06d", n)
}
