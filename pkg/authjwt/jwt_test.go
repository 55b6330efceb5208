package authjwt

import (
	"testing"
	"time"
)

func TestMintParseExternal_RoundTrip(t *testing.T) {
	secret := []byte("super-secret")
	tok, err := MintExternal(secret, "user-1", "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := ParseExternal(secret, tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseExternal_RejectsExpired(t *testing.T) {
	secret := []byte("super-secret")
	tok, err := MintExternal(secret, "user-1", "alice@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseExternal(secret, tok); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseExternal_RejectsWrongSecret(t *testing.T) {
	tok, err := MintExternal([]byte("secret-a"), "user-1", "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseExternal([]byte("secret-b"), tok); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestMintParseInternal_RoundTrip(t *testing.T) {
	secret := []byte("internal-secret")
	tok, err := MintInternal(secret, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := ParseInternal(secret, tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !claims.Internal {
		t.Fatal("expected internal flag to be set")
	}
}

func TestParseInternal_RejectsMissingFlag(t *testing.T) {
	// An external token signed with the internal secret must not pass as
	// an internal token: it never sets `internal: true`.
	secret := []byte("internal-secret")
	tok, err := MintExternal(secret, "user-1", "alice@example.com", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseInternal(secret, tok); err == nil {
		t.Fatal("expected token without internal flag to be rejected")
	}
}

func TestParseInternal_RejectsExpired(t *testing.T) {
	secret := []byte("internal-secret")
	tok, err := MintInternal(secret, -time.Second)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseInternal(secret, tok); err == nil {
		t.Fatal("expected expired internal token to be rejected")
	}
}
