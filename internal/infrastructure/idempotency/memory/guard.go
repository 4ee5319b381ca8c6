// Package memory holds an in-process idempotency guard. It backs tests and
// single-node runs; deployments with more than one consumer instance per
// group need the Postgres-backed guard.
package memory

import (
	"context"
	"sync"
	"time"
)

type Guard struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	claims map[string]time.Time
}

func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		claims: make(map[string]time.Time),
	}
}

// TryClaim returns true exactly once per message identifier within the TTL
// window. The mutex makes the check-and-set atomic under concurrent callers.
func (g *Guard) TryClaim(_ context.Context, messageID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, ok := g.claims[messageID]; ok && now.Before(expiry) {
		return false, nil
	}
	g.claims[messageID] = now.Add(g.ttl)
	return true, nil
}

// Release drops a claim so a redelivery of the same message can claim again.
func (g *Guard) Release(_ context.Context, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, messageID)
	return nil
}

// PurgeExpired drops claims past their TTL; returns the number removed.
func (g *Guard) PurgeExpired(_ context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	var removed int64
	for id, expiry := range g.claims {
		if !now.Before(expiry) {
			delete(g.claims, id)
			removed++
		}
	}
	return removed, nil
}
