package campusly

import (
	"context"
	"errors"
	"sync"
)

// ErrIdentityMismatch is returned when the shared channel is held for a
// different user.
var ErrIdentityMismatch = errors.New("event channel is held by another identity")

// ConnectionManager shares one Channel between every view of a signed-in
// user. The first Acquire connects, the last Release disconnects.
type ConnectionManager struct {
	ch *Channel

	mu     sync.Mutex
	selfID string
	refs   int
}

// NewConnectionManager wraps ch.
func NewConnectionManager(ch *Channel) *ConnectionManager {
	return &ConnectionManager{ch: ch}
}

// Acquire takes a reference on the channel, connecting it if needed. A
// failed Acquire holds no reference.
func (m *ConnectionManager) Acquire(ctx context.Context, selfID string) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs > 0 && m.selfID != selfID {
		return nil, ErrIdentityMismatch
	}

	// Connect is a no-op on a live connection and redials after a silent drop.
	if err := m.ch.Connect(ctx, selfID); err != nil {
		return nil, err
	}

	m.refs++
	m.selfID = selfID
	return m.ch, nil
}

// Release drops a reference. Releasing more often than acquiring is a no-op.
func (m *ConnectionManager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs == 0 {
		return
	}
	m.refs--
	if m.refs == 0 {
		m.selfID = ""
		m.ch.Disconnect()
	}
}

// Refs returns the number of outstanding references.
func (m *ConnectionManager) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

// Channel returns the managed channel without taking a reference.
func (m *ConnectionManager) Channel() *Channel {
	return m.ch
}
