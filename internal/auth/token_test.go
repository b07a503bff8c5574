// ABOUTME: Tests for JWT token minting and verification
// ABOUTME: Covers round-trips, expiry, wrong secrets, and malformed tokens

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("console-user", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "console-user", subject)
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("console-user", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	minter := NewJWTVerifier([]byte("secret-a"))
	verifier := NewJWTVerifier([]byte("secret-b"))

	token, err := minter.Generate("console-user", time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_MalformedToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	_, err := v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_MissingSubject(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret)

	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestJWTVerifier_RejectsUnexpectedSigningMethod(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	// alg=none tokens must never verify.
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "console-user",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
