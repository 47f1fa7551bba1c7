package wsgateway

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultOwner is the owner of every request when no JWT secret is configured
const DefaultOwner = "default"

// AuthManager handles JWT authentication for the API and the WebSocket
// endpoint
type AuthManager struct {
	jwtSecret []byte
}

// NewAuthManager creates a new auth manager
func NewAuthManager(jwtSecret string) *AuthManager {
	return &AuthManager{
		jwtSecret: []byte(jwtSecret),
	}
}

// Enabled reports whether tokens are verified. A nil manager verifies
// nothing.
func (a *AuthManager) Enabled() bool {
	return a != nil && len(a.jwtSecret) > 0
}

// ValidateToken validates an HS256 token and returns its owner, taken from
// the user_id claim or else sub
func (a *AuthManager) ValidateToken(tokenString string) (string, error) {
	if !a.Enabled() {
		return DefaultOwner, nil
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	if owner, ok := claims["user_id"].(string); ok && owner != "" {
		return owner, nil
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("user_id not found in token")
}

// ExtractTokenFromHeader extracts the token from "Bearer <token>" or a bare
// token
func (a *AuthManager) ExtractTokenFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	switch len(parts) {
	case 0:
		return "", fmt.Errorf("authorization header is empty")
	case 1:
		return parts[0], nil
	case 2:
		if !strings.EqualFold(parts[0], "bearer") {
			return "", fmt.Errorf("invalid authorization header format")
		}
		return parts[1], nil
	}
	return "", fmt.Errorf("invalid authorization header format")
}

// OwnerFromRequest authenticates r. The token is read from the Authorization
// header, or from the token query parameter for browser WebSocket clients.
func (a *AuthManager) OwnerFromRequest(r *http.Request) (string, error) {
	if !a.Enabled() {
		return DefaultOwner, nil
	}

	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		t, err := a.ExtractTokenFromHeader(header)
		if err != nil {
			return "", err
		}
		token = t
	}
	if token == "" {
		return "", fmt.Errorf("missing token")
	}
	return a.ValidateToken(token)
}
