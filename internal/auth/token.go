// ABOUTME: JWT token issuing and verification for HTTP and WebSocket logins
// ABOUTME: Uses HS256 signing with configurable secret; PlainTokens serves auth-disabled mode

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum accepted HS256 secret size in bytes.
const MinSecretLength = 32

// Token errors
var (
	ErrExpiredToken = fmt.Errorf("%w: token expired", ErrInvalidCredential)
	ErrMissingClaim = fmt.Errorf("%w: missing required claim", ErrInvalidCredential)
	ErrWeakSecret   = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// TokenVerifier resolves a token to the user ID it was issued for.
type TokenVerifier interface {
	Verify(tokenString string) (userID string, err error)
}

// TokenIssuer creates tokens for users.
type TokenIssuer interface {
	Generate(userID string, expiresIn time.Duration) (string, error)
}

// Tokens both issues and verifies tokens.
type Tokens interface {
	TokenVerifier
	TokenIssuer
}

// JWTVerifier implements Tokens using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and extracts the user ID from the "sub" claim
func (v *JWTVerifier) Verify(tokenString string) (userID string, err error) {
	if tokenString == "" {
		return "", ErrMissingCredential
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	if !token.Valid {
		return "", ErrInvalidCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredential
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// Generate creates a new JWT token for the given user ID with expiration
func (v *JWTVerifier) Generate(userID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// PlainTokens treats the token itself as the user ID. Used when no
// jwt_secret is configured, for local development only.
type PlainTokens struct{}

// Verify returns the token unchanged.
func (PlainTokens) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingCredential
	}
	return tokenString, nil
}

// Generate returns the user ID unchanged.
func (PlainTokens) Generate(userID string, _ time.Duration) (string, error) {
	return userID, nil
}
