package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_Hash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "password123", false},
		{"empty password", "", false},
		{"max length password", strings.Repeat("a", 72), false},
		{"too long password", strings.Repeat("a", 73), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("Hash() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && hash == "" {
				t.Error("Hash() returned empty hash")
			}
		})
	}
}

func TestHasher_DifferentHashes(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash1, _ := h.Hash("testpassword")
	hash2, _ := h.Hash("testpassword")

	if hash1 == hash2 {
		t.Error("Hash() should produce different hashes for same password")
	}
}

func TestHasher_Verify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	password := "testpassword123"
	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		want     bool
	}{
		{"correct password", hash, password, true},
		{"wrong password", hash, "wrongpassword", false},
		{"prefix of password", hash, "testpassword12", false},
		{"empty password", hash, "", false},
		{"invalid hash", "invalidhash", password, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Verify(tt.hash, tt.password); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasher_VerifyAcrossCosts(t *testing.T) {
	old := NewHasher(bcrypt.MinCost)
	hash, err := old.Hash("pw1")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	current := NewHasher(bcrypt.MinCost + 1)
	if !current.Verify(hash, "pw1") {
		t.Error("Verify() should accept a hash produced with an older cost")
	}
	if !current.NeedsRehash(hash) {
		t.Error("NeedsRehash() = false, want true for a lower cost hash")
	}
	if old.NeedsRehash(hash) {
		t.Error("NeedsRehash() = true, want false for a hash at the configured cost")
	}
	if !current.NeedsRehash("garbage") {
		t.Error("NeedsRehash() = false, want true for an unparsable hash")
	}
}

func TestNewHasher_OutOfRangeCost(t *testing.T) {
	tests := []struct {
		name string
		cost int
		want int
	}{
		{"zero", 0, bcrypt.DefaultCost},
		{"too high", bcrypt.MaxCost + 1, bcrypt.DefaultCost},
		{"min", bcrypt.MinCost, bcrypt.MinCost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewHasher(tt.cost).cost; got != tt.want {
				t.Errorf("NewHasher(%d).cost = %d, want %d", tt.cost, got, tt.want)
			}
		})
	}
}
