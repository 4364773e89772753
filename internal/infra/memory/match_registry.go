package memory

import (
	"sync"

	"quiz-battle-service/internal/app"
)

// MatchRegistry is an in-memory implementation of app.MatchRegistry.
type MatchRegistry struct {
	mu      sync.RWMutex
	matches map[string]*app.Battle
}

func NewMatchRegistry() *MatchRegistry {
	return &MatchRegistry{
		matches: make(map[string]*app.Battle),
	}
}

func (r *MatchRegistry) Put(b *app.Battle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[b.ID()] = b
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
	delete(r.matches, matchID)
}
