package campusly

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManagerSharesOneConnection(t *testing.T) {
	ch, d := newTestChannel()
	m := NewConnectionManager(ch)
	ctx := context.Background()

	first, err := m.Acquire(ctx, "u1")
	require.NoError(t, err)
	second, err := m.Acquire(ctx, "u1")
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, d.dials())
	require.Len(t, d.last().sent(EventUserOnline), 1)
	require.Equal(t, 2, m.Refs())

	m.Release()
	require.True(t, ch.Connected())

	m.Release()
	require.False(t, ch.Connected())
	require.Equal(t, 0, m.Refs())

	m.Release()
	require.Equal(t, 0, m.Refs())
}

func TestManagerRejectsAnotherIdentity(t *testing.T) {
	ch, _ := newTestChannel()
	m := NewConnectionManager(ch)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "u1")
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "u2")
	require.ErrorIs(t, err, ErrIdentityMismatch)
	require.Equal(t, 1, m.Refs())

	m.Release()
	_, err = m.Acquire(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, "u2", ch.SelfID())
	m.Release()
}

func TestManagerFailedAcquireHoldsNoReference(t *testing.T) {
	ch, d := newTestChannel()
	d.err = errors.New("refused")
	m := NewConnectionManager(ch)

	_, err := m.Acquire(context.Background(), "u1")
	require.ErrorIs(t, err, d.err)
	require.Equal(t, 0, m.Refs())
}

func TestManagerReconnectsAfterLoss(t *testing.T) {
	ch, d := newTestChannel()
	m := NewConnectionManager(ch)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "u1")
	require.NoError(t, err)
	d.last().Close()
	eventually(t, func() bool { return !ch.Connected() }, "loss detected")

	_, err = m.Acquire(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, d.dials())
	require.True(t, ch.Connected())

	m.Release()
	m.Release()
	require.False(t, ch.Connected())
}
