package auth

import (
	"errors"
	"testing"
)

func TestMintAndVerifyToken(t *testing.T) {
	token := MintToken(42)

	userID, err := VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if userID != 42 {
		t.Errorf("Expected identity 42, got %d", userID)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	token := MintToken(42)

	for _, bad := range []string{
		token + "x",
		"not-a-token",
		"",
		token[:len(token)-4],
	} {
		if _, err := VerifyToken(bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken for %q, got %v", bad, err)
		}
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	token := MintToken(42)

	old := secretKey
	secretKey = []byte("rotated")
	defer func() { secretKey = old }()

	if _, err := VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken after key rotation, got %v", err)
	}
}
