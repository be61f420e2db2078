// Package auth verifies the bearer token presented when a connection is opened.
// Issuing tokens for real users is someone else's job; GenerateToken exists
// for tests and local tooling.
package auth

import (
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const Issuer = "chat-gateway"

// Claims is the payload of a gateway token. The user ID travels in "sub".
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) Verifier {
	return Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuer(Issuer),
		),
	}
}

// Verify returns the user ID carried by a valid token.
func (v Verifier) Verify(tokenString string) (chat.UserID, error) {
	if tokenString == "" {
		return "", fmt.Errorf("%w: missing token", errors.ErrInvalidToken)
	}
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: no subject", errors.ErrInvalidToken)
	}
	return chat.UserID(claims.Subject), nil
}

// GenerateToken signs a token for userID valid for ttl.
func GenerateToken(secret string, userID chat.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(userID),
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// TokenFromRequest reads the token from the "token" query parameter, browsers
// cannot set headers on a WebSocket upgrade, then from an Authorization header.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}
