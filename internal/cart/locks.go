package cart

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// sessionLocks serializes cart mutations per session within this process.
// Requests for different sessions proceed in parallel; two writers on the
// same session are applied one after the other.
type sessionLocks struct {
	stripes [lockStripes]sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{}
}

func (l *sessionLocks) lock(sessionID string) func() {
	mu := &l.stripes[stripeFor(sessionID)]
	mu.Lock()
	return mu.Unlock
}

func stripeFor(sessionID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return h.Sum32() % lockStripes
}
