package utils

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims is the verified identity the auth service issues before a
// client attempts to join. The engine trusts these after signature check and
// does not re-verify them.
type IdentityClaims struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	jwt.RegisteredClaims
}

// ParseIdentity validates the join token and returns its claims.
func ParseIdentity(secret []byte, tokenString string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(*IdentityClaims)
	if claims.UserID == "" {
		return nil, errors.New("token missing userId")
	}
	return claims, nil
}

// SignIdentity mints a token for the given identity. The auth service owns
// this in production; the engine uses it in tests and local development.
func SignIdentity(secret []byte, userID, userName string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, IdentityClaims{
		UserID:   userID,
		UserName: userName,
	})
	return token.SignedString(secret)
}
