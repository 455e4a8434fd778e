package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := hashPasswordCost("19062004", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if string(hash) == "19062004" {
		t.Fatal("hash must not be the plaintext")
	}

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"correct", "19062004", nil},
		{"wrong", "19062005", ErrInvalidPassword},
		{"empty", "", ErrInvalidPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword(tt.password, hash)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifyPassword(%q) = %v, want %v", tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestHashPassword_DefaultCost(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cost, err := bcrypt.Cost(hash)
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost != bcryptCost {
		t.Errorf("cost = %d, want %d", cost, bcryptCost)
	}
}
