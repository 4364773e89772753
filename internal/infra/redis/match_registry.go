package redis

import (
	"context"
	"sync"
	"time"

	"quiz-battle-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// MatchRegistry is a Redis-aware implementation of app.MatchRegistry.
// Notes:
//   - It still keeps a local in-memory map of aggregates to reuse the
//     in-process serialization and broadcast logic.
//   - Redis marks match liveness (and could be extended to route
//     cross-instance pub/sub for multi-node rosters).
type MatchRegistry struct {
	client  *redis.Client
	ttl     time.Duration
	mu      sync.RWMutex
	matches map[string]*app.Battle
}

func NewMatchRegistry(client *redis.Client, ttl time.Duration) *MatchRegistry {
	return &MatchRegistry{
		client:  client,
		ttl:     ttl,
		matches: make(map[string]*app.Battle),
	}
}

func (r *MatchRegistry) Put(b *app.Battle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[b.ID()] = b
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(b.ID()), "1", r.ttl).Err()
}

func (r *MatchRegistry) Get(matchID string) (*app.Battle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.matches[matchID]
	return b, ok
}

func (r *MatchRegistry) Delete(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.matches[matchID]; !ok {
		return
	}
	delete(r.matches, matchID)
	_ = r.client.Del(context.Background(), r.key(matchID)).Err()
}

func (r *MatchRegistry) key(matchID string) string {
	return "battle:match:" + matchID
}
