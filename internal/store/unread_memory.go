package store

import (
	"context"
	"sync"
)

// MemoryUnread is an in-process UnreadTracker used when Redis is not configured.
type MemoryUnread struct {
	mu     sync.Mutex
	unread map[string]map[string]bool
}

// NewMemoryUnread creates an empty tracker.
func NewMemoryUnread() *MemoryUnread {
	return &MemoryUnread{unread: make(map[string]map[string]bool)}
}

func (m *MemoryUnread) MarkUnread(_ context.Context, userID, fromID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.unread[userID]
	if !ok {
		set = make(map[string]bool)
		m.unread[userID] = set
	}
	set[fromID] = true
	return nil
}

func (m *MemoryUnread) ClearUnread(_ context.Context, userID, fromID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.unread[userID], fromID)
	return nil
}

func (m *MemoryUnread) UnreadFrom(_ context.Context, userID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.unread[userID]))
	for id := range m.unread[userID] {
		out[id] = true
	}
	return out, nil
}
