package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndResolve(t *testing.T) {
	svc, err := New([]byte("test-signing-key"), time.Hour)
	require.NoError(t, err)

	token, err := svc.Issue("account-1")
	require.NoError(t, err)

	accountID, err := svc.Resolve(token)
	require.NoError(t, err)
	require.Equal(t, "account-1", accountID)
}

func TestResolveRejectsForgedToken(t *testing.T) {
	issuer, err := New([]byte("real-key"), time.Hour)
	require.NoError(t, err)
	verifier, err := New([]byte("other-key"), time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue("account-1")
	require.NoError(t, err)

	_, err = verifier.Resolve(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveRejectsExpiredToken(t *testing.T) {
	svc, err := New([]byte("test-signing-key"), time.Millisecond)
	require.NoError(t, err)

	token, err := svc.Issue("account-1")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = svc.Resolve(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveRejectsGarbage(t *testing.T) {
	svc, err := New([]byte("test-signing-key"), time.Hour)
	require.NoError(t, err)

	_, err = svc.Resolve("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(nil, time.Hour)
	require.Error(t, err)
}
