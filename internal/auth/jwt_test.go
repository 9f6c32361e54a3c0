package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParseToken(t *testing.T) {
	InitJWT("test-secret-key")

	expireAt := time.Now().Add(24 * time.Hour)

	token, err := GenerateToken("telegram-frontend", ScopeBot, expireAt, "go_certbot")
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	if token == "" {
		t.Error("Expected non-empty token")
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() failed: %v", err)
	}

	if claims.Client != "telegram-frontend" {
		t.Errorf("Expected client telegram-frontend, got %s", claims.Client)
	}
	if claims.Scope != ScopeBot {
		t.Errorf("Expected scope %s, got %s", ScopeBot, claims.Scope)
	}
	if claims.Issuer != "go_certbot" {
		t.Errorf("Expected issuer go_certbot, got %s", claims.Issuer)
	}
}

func TestParseToken_InvalidToken(t *testing.T) {
	InitJWT("test-secret-key")

	if _, err := ParseToken("invalid.token.string"); err == nil {
		t.Error("ParseToken() should fail for invalid token")
	}
}

func TestParseToken_ExpiredToken(t *testing.T) {
	InitJWT("test-secret-key")

	token, err := GenerateToken("frontend", ScopeBot, time.Now().Add(-1*time.Hour), "go_certbot")
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	_, err = ParseToken(token)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("ParseToken() error = %v; want ErrTokenExpired", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	InitJWT("secret-1")
	token, err := GenerateToken("frontend", ScopeBot, time.Now().Add(time.Hour), "go_certbot")
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	InitJWT("secret-2")
	if _, err := ParseToken(token); err == nil {
		t.Error("ParseToken() should fail with a different secret")
	}
}
