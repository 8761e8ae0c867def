package campusly

import (
	"sort"
	"sync"
)

// Presence is the client's cached copy of the server's online set. It is
// only ever replaced wholesale or cleared.
type Presence struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

func newPresence() *Presence {
	return &Presence{users: make(map[string]struct{})}
}

func (p *Presence) replace(ids []string) {
	users := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		users[id] = struct{}{}
	}
	p.mu.Lock()
	p.users = users
	p.mu.Unlock()
}

func (p *Presence) clear() {
	p.replace(nil)
}

// Contains reports whether userID was in the latest broadcast.
func (p *Presence) Contains(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.users[userID]
	return ok
}

// List returns the online users, sorted.
func (p *Presence) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.users))
	for id := range p.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
