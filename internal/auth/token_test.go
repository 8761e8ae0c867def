package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier("s3cret")

	token, err := v.Issue("user-1", time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewVerifier("one").Issue("user-1", time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("two").Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpired(t *testing.T) {
	v := NewVerifier("s3cret")
	token, err := v.Issue("user-1", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyMissing(t *testing.T) {
	_, err := NewVerifier("s3cret").Verify("")
	require.ErrorIs(t, err, ErrMissingToken)
}
