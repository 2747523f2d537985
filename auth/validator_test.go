package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	v := NewValidator("test-secret", "safety-gateway")

	token, err := v.IssueToken("alice", "Alice", []string{"approver"}, time.Hour)
	require.NoError(t, err)

	claims, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Sub)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, []string{"approver"}, claims.Roles)
	assert.Equal(t, "safety-gateway", claims.Iss)
	assert.Positive(t, claims.Exp)
}

func TestValidateTokenExpired(t *testing.T) {
	v := NewValidator("test-secret", "safety-gateway")

	token, err := v.IssueToken("alice", "", nil, -time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	signer := NewValidator("one-secret", "safety-gateway")
	verifier := NewValidator("other-secret", "safety-gateway")

	token, err := signer.IssueToken("alice", "", nil, time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenWrongIssuer(t *testing.T) {
	signer := NewValidator("test-secret", "some-other-service")
	verifier := NewValidator("test-secret", "safety-gateway")

	token, err := signer.IssueToken("alice", "", nil, time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidIssuer)
}

func TestValidateTokenRejectsUnsignedAlg(t *testing.T) {
	v := NewValidator("test-secret", "safety-gateway")

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "alice",
		Issuer:  "safety-gateway",
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.ValidateToken(context.Background(), token)
	assert.Error(t, err)
}

func TestValidateTokenMissingSubject(t *testing.T) {
	v := NewValidator("test-secret", "safety-gateway")

	token, err := v.IssueToken("", "", nil, time.Hour)
	require.NoError(t, err)

	_, err = v.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	v := NewValidator("test-secret", "safety-gateway")

	_, err := v.ValidateToken(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
