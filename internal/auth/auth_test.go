package auth

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(key.Prefix) != prefixLength {
		t.Errorf("prefix length = %d, want %d", len(key.Prefix), prefixLength)
	}

	expectedStart := "teester_" + key.Prefix + "_"
	if !strings.HasPrefix(key.Display, expectedStart) {
		t.Errorf("display %q does not start with %q", key.Display, expectedStart)
	}

	secret := strings.TrimPrefix(key.Display, expectedStart)
	if len(secret) != secretBytes*2 {
		t.Errorf("secret length = %d, want %d", len(secret), secretBytes*2)
	}

	if len(key.Hash) != 32 {
		t.Errorf("hash length = %d, want 32 (SHA256)", len(key.Hash))
	}
}

func TestGenerateUnique(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	if a.Display == b.Display {
		t.Error("two generated keys are identical")
	}
}

func TestVerify(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !Verify(key.Display, key.Hash) {
		t.Error("Verify should accept the generated key")
	}

	tampered := key.Display[:len(key.Display)-1] + "x"
	if Verify(tampered, key.Hash) {
		t.Error("Verify should reject a tampered secret")
	}

	if Verify("not-a-key", key.Hash) {
		t.Error("Verify should reject malformed keys")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		display    string
		wantPrefix string
		wantSecret string
		wantErr    bool
	}{
		{"valid", "teester_abcd1234_deadbeef", "abcd1234", "deadbeef", false},
		{"secret with underscore", "teester_abcd1234_dead_beef", "abcd1234", "dead_beef", false},
		{"wrong service", "otherapp_abcd1234_deadbeef", "", "", true},
		{"short prefix", "teester_abc_deadbeef", "", "", true},
		{"uppercase prefix", "teester_ABCD1234_deadbeef", "", "", true},
		{"no secret", "teester_abcd1234_", "", "", true},
		{"no separator", "teester_abcd1234", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, secret, err := Parse(tt.display)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.display, err, tt.wantErr)
			}
			if prefix != tt.wantPrefix || secret != tt.wantSecret {
				t.Errorf("Parse(%q) = %q, %q; want %q, %q", tt.display, prefix, secret, tt.wantPrefix, tt.wantSecret)
			}
		})
	}
}
