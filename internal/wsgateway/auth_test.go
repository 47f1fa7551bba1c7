package wsgateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to create token: %v", err)
	}
	return tokenString
}

func TestAuthManager_ValidateToken(t *testing.T) {
	secret := "test-secret-key"
	authManager := NewAuthManager(secret)

	tokenString := signToken(t, secret, jwt.MapClaims{
		"user_id": "alice",
		"exp":     time.Now().Add(1 * time.Hour).Unix(),
	})

	owner, err := authManager.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if owner != "alice" {
		t.Errorf("Expected owner %s, got %s", "alice", owner)
	}
}

func TestAuthManager_ValidateToken_Rejected(t *testing.T) {
	secret := "test-secret-key"
	authManager := NewAuthManager(secret)

	tests := []struct {
		name  string
		token string
	}{
		{
			name: "wrong secret",
			token: signToken(t, "wrong-secret", jwt.MapClaims{
				"user_id": "alice",
				"exp":     time.Now().Add(1 * time.Hour).Unix(),
			}),
		},
		{
			name: "expired",
			token: signToken(t, secret, jwt.MapClaims{
				"user_id": "alice",
				"exp":     time.Now().Add(-1 * time.Hour).Unix(),
			}),
		},
		{
			name: "no owner claim",
			token: signToken(t, secret, jwt.MapClaims{
				"exp": time.Now().Add(1 * time.Hour).Unix(),
			}),
		},
		{name: "garbage", token: "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := authManager.ValidateToken(tt.token); err == nil {
				t.Error("Expected token to be rejected")
			}
		})
	}
}

func TestAuthManager_ValidateToken_NoSecret(t *testing.T) {
	authManager := NewAuthManager("")
	if authManager.Enabled() {
		t.Fatal("Expected auth to be disabled without a secret")
	}

	owner, err := authManager.ValidateToken("any-token")
	if err != nil {
		t.Fatalf("Expected no error without a secret, got %v", err)
	}
	if owner != DefaultOwner {
		t.Errorf("Expected default owner, got %s", owner)
	}
}

func TestAuthManager_ValidateToken_SubjectClaim(t *testing.T) {
	secret := "test-secret-key"
	authManager := NewAuthManager(secret)

	tokenString := signToken(t, secret, jwt.MapClaims{
		"sub": "bob",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})

	owner, err := authManager.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if owner != "bob" {
		t.Errorf("Expected owner %s, got %s", "bob", owner)
	}
}

func TestAuthManager_ExtractTokenFromHeader(t *testing.T) {
	authManager := NewAuthManager("test-secret")

	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer test-token", want: "test-token"},
		{header: "bearer test-token", want: "test-token"},
		{header: "test-token", want: "test-token"},
		{header: "", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "Bearer a b", wantErr: true},
	}

	for _, tt := range tests {
		token, err := authManager.ExtractTokenFromHeader(tt.header)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.header, err)
			continue
		}
		if token != tt.want {
			t.Errorf("%q: expected token %s, got %s", tt.header, tt.want, token)
		}
	}
}

func TestAuthManager_OwnerFromRequest(t *testing.T) {
	secret := "test-secret-key"
	authManager := NewAuthManager(secret)
	token := signToken(t, secret, jwt.MapClaims{
		"user_id": "alice",
		"exp":     time.Now().Add(1 * time.Hour).Unix(),
	})

	header := httptest.NewRequest("GET", "/api/v1/monitors", nil)
	header.Header.Set("Authorization", "Bearer "+token)
	if owner, err := authManager.OwnerFromRequest(header); err != nil || owner != "alice" {
		t.Errorf("Header auth: got %q, %v", owner, err)
	}

	query := httptest.NewRequest("GET", "/ws?token="+token, nil)
	if owner, err := authManager.OwnerFromRequest(query); err != nil || owner != "alice" {
		t.Errorf("Query auth: got %q, %v", owner, err)
	}

	missing := httptest.NewRequest("GET", "/ws", nil)
	if _, err := authManager.OwnerFromRequest(missing); err == nil {
		t.Error("Expected error without a token")
	}

	open := NewAuthManager("")
	if owner, err := open.OwnerFromRequest(missing); err != nil || owner != DefaultOwner {
		t.Errorf("Open auth: got %q, %v", owner, err)
	}
}
