package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	issuer := Issuer{Secret: "test-secret-key"}

	token, err := issuer.Generate(1, "alice")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if claims.UserID != 1 {
		t.Errorf("expected user_id 1, got %d", claims.UserID)
	}
	if claims.Handle != "alice" {
		t.Errorf("expected handle 'alice', got %q", claims.Handle)
	}
	if claims.ID == "" {
		t.Error("expected a JTI")
	}
}

func TestTokensHaveDistinctIDs(t *testing.T) {
	issuer := Issuer{Secret: "s"}
	a, _ := issuer.Generate(1, "alice")
	b, _ := issuer.Generate(1, "alice")

	ca, _ := issuer.Validate(a)
	cb, _ := issuer.Validate(b)
	if ca.ID == cb.ID {
		t.Error("expected distinct JTIs so one session can be revoked alone")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := Issuer{Secret: "secret1"}.Generate(1, "alice")

	if _, err := (Issuer{Secret: "secret2"}).Validate(token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	if _, err := (Issuer{Secret: "secret"}).Validate("not-a-token"); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	issuer := Issuer{Secret: "test", TTL: time.Hour, Now: func() time.Time { return now }}

	token, _ := issuer.Generate(1, "test")
	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(time.Hour)) {
		t.Errorf("expected expiry %v, got %v", now.Add(time.Hour), claims.ExpiresAt.Time)
	}

	later := issuer
	later.Now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := later.Validate(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	ok, err := CheckPassword(hash, "correct horse")
	if err != nil || !ok {
		t.Errorf("CheckPassword(correct) = %v, %v", ok, err)
	}
	ok, err = CheckPassword(hash, "wrong")
	if err != nil || ok {
		t.Errorf("CheckPassword(wrong) = %v, %v", ok, err)
	}
	if _, err := CheckPassword("not-a-hash", "x"); err == nil {
		t.Error("expected error for malformed hash")
	}
}
