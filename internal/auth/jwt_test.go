package auth

import (
	"testing"
	"time"

	"phone-assistant/internal/config"
)

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "phone-assistant",
		JWTAudience:    "ops",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "ops-1", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.OperatorID != "ops-1" || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "ops-1", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m1, _ := NewManager(config.AuthConfig{JWTSecret: "one", AccessTokenTTL: time.Minute})
	m2, _ := NewManager(config.AuthConfig{JWTSecret: "two", AccessTokenTTL: time.Minute})
	now := time.Now()
	tok, err := m1.Issue(now, "ops-1", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m2.Verify(tok, now); err == nil {
		t.Fatalf("expected signature error")
	}
}
