package utils

import (
	"regexp"
	"testing"
)

var hex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestNewOpaqueToken(t *testing.T) {
	a, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	b, _ := NewOpaqueToken()
	if !hex64.MatchString(a) {
		t.Fatalf("unexpected token format %q", a)
	}
	if a == b {
		t.Fatalf("tokens must differ")
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatalf("HashToken not deterministic")
	}
	if HashToken("abc") == "abc" || !hex64.MatchString(HashToken("abc")) {
		t.Fatalf("unexpected digest %q", HashToken("abc"))
	}
	if !EqualHash(HashToken("x"), HashToken("x")) || EqualHash(HashToken("x"), HashToken("y")) {
		t.Fatalf("EqualHash mismatch")
	}
	if EqualHash("ab", "abc") {
		t.Fatalf("different lengths must not match")
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if NewAccountID() == NewAccountID() {
		t.Fatalf("duplicate account id")
	}
}
