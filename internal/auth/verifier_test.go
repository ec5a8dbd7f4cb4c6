package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifier_NoSecretConfigured(t *testing.T) {
	v := NewVerifier(nil)
	_, err := v.Verify("anything")
	if err == nil || err.Reason != ReasonNoSecretConfigured {
		t.Fatalf("got %v, want %s", err, ReasonNoSecretConfigured)
	}
}

func TestVerifier_NoTokenProvided(t *testing.T) {
	v := NewVerifier([]byte("secret"))
	_, err := v.Verify("  ")
	if err == nil || err.Reason != ReasonNoTokenProvided {
		t.Fatalf("got %v, want %s", err, ReasonNoTokenProvided)
	}
}

func TestVerifier_IssueThenVerify(t *testing.T) {
	v := NewVerifier([]byte("secret"))
	tok, err := v.Issue("alice", "r1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, verr := v.Verify(tok)
	if verr != nil {
		t.Fatalf("verify: %v", verr)
	}
	if id.UserID != "alice" || id.RoomID != "r1" {
		t.Fatalf("got %+v", id)
	}
}

func TestVerifier_Expired(t *testing.T) {
	v := NewVerifier([]byte("secret"))
	tok, err := v.Issue("bob", "", -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, verr := v.Verify(tok)
	if verr == nil || verr.Reason != ReasonTokenExpired {
		t.Fatalf("got %v, want %s", verr, ReasonTokenExpired)
	}
}

func TestVerifier_RejectsNoneAlg(t *testing.T) {
	v := NewVerifier([]byte("secret"))
	claims := jwt.MapClaims{"sub": "eve", "exp": time.Now().Add(time.Minute).Unix()}
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	_, verr := v.Verify(signed)
	if verr == nil || verr.Reason != ReasonInvalidToken {
		t.Fatalf("got %v, want %s", verr, ReasonInvalidToken)
	}
}

func TestVerifier_MissingUserIdentifier(t *testing.T) {
	v := NewVerifier([]byte("secret"))
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix()}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, verr := v.Verify(signed)
	if verr == nil || verr.Reason != ReasonMissingUserIdentifier {
		t.Fatalf("got %v, want %s", verr, ReasonMissingUserIdentifier)
	}
}

func TestVerifier_ClaimFallbackOrder(t *testing.T) {
	v := NewVerifier([]byte("secret"))
	claims := jwt.MapClaims{"uid": "carol", "exp": time.Now().Add(time.Minute).Unix()}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, verr := v.Verify(signed)
	if verr != nil {
		t.Fatalf("verify: %v", verr)
	}
	if id.UserID != "carol" {
		t.Fatalf("got %q, want carol", id.UserID)
	}
}
