package auth

import "testing"

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("expected nil error, got %q", err)
	}
	if hash == "" || hash == "correct horse battery staple" {
		t.Errorf("unexpected hash: %q", hash)
	}
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("expected nil error, got %q", err)
	}

	if !CheckPasswordHash("correct horse battery staple", hash) {
		t.Error("expected the password to match its own hash")
	}
	if CheckPasswordHash("wrong password", hash) {
		t.Error("expected a wrong password to be rejected")
	}
	if CheckPasswordHash("correct horse battery staple", "not-a-bcrypt-hash") {
		t.Error("expected a malformed hash to be rejected")
	}
}
