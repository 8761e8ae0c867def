package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewSecret(t *testing.T) {
	secret, err := NewSecret(32)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(secret)
	require.NoError(t, err)
	require.Len(t, raw, 32)

	other, err := NewSecret(32)
	require.NoError(t, err)
	require.NotEqual(t, secret, other)

	_, err = NewSecret(8)
	require.Error(t, err)
}

func TestIdentifiersAreOrdered(t *testing.T) {
	a := NewMessageID()
	b := NewMessageID()
	require.Len(t, a, 26)
	require.LessOrEqual(t, a[:10], b[:10])

	require.Equal(t, uuid.Version(7), NewUUIDv7().Version())
}
