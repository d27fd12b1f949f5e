package utils

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestSignAndParseIdentity(t *testing.T) {
	token, err := SignIdentity(testSecret, "user-1", "Alice")
	require.NoError(t, err)

	claims, err := ParseIdentity(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Alice", claims.UserName)
}

func TestParseIdentityWrongSecret(t *testing.T) {
	token, err := SignIdentity(testSecret, "user-1", "Alice")
	require.NoError(t, err)

	_, err = ParseIdentity([]byte("other-secret"), token)
	assert.Error(t, err)
}

func TestParseIdentityGarbage(t *testing.T) {
	_, err := ParseIdentity(testSecret, "not.a.token")
	assert.Error(t, err)
}

func TestParseIdentityMissingUserID(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, IdentityClaims{UserName: "nameless"})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)

	_, err = ParseIdentity(testSecret, signed)
	assert.ErrorContains(t, err, "userId")
}

func TestParseIdentityRejectsUnsignedToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, IdentityClaims{UserID: "user-1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseIdentity(testSecret, signed)
	assert.Error(t, err)
}
