package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyToken_RoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.IssueToken("principal-1", time.Hour)
	require.NoError(t, err)

	principal, err := v.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "principal-1", principal)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a").IssueToken("principal-1", time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("secret-b").VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyToken_Expired(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.IssueToken("principal-1", -time.Minute)
	require.NoError(t, err)

	_, err = v.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyToken_MissingSubject(t *testing.T) {
	v := NewVerifier("test-secret")

	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := raw.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = v.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyToken_Garbage(t *testing.T) {
	v := NewVerifier("test-secret")

	_, err := v.VerifyToken(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
