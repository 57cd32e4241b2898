package auth

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey("prod")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "conduit-prod-") {
		t.Errorf("expected conduit-prod- prefix, got %s", key)
	}
	random := strings.TrimPrefix(key, "conduit-prod-")
	if len(random) != 32 {
		t.Errorf("expected 32 random chars, got %d", len(random))
	}

	key2, err := GenerateKey("prod")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if key == key2 {
		t.Error("two generated keys should differ")
	}
}

func TestHashKey(t *testing.T) {
	h1 := HashKey("conduit-dev-abc")
	h2 := HashKey("conduit-dev-abc")
	h3 := HashKey("conduit-dev-abd")

	if h1 != h2 {
		t.Error("same key should hash identically")
	}
	if h1 == h3 {
		t.Error("different keys should hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestKeyPrefix(t *testing.T) {
	key := "conduit-prod-abcdefghij1234567890"
	prefix := KeyPrefix(key)
	if prefix != "conduit-prod-abcdefgh" {
		t.Errorf("unexpected prefix: %s", prefix)
	}
	if strings.Contains(prefix, key[len(key)-8:]) {
		t.Error("prefix should not expose the key tail")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
		err   bool
	}{
		{"365d", 365 * 24 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"24h", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if tt.err {
			if err == nil {
				t.Errorf("ParseDuration(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDuration(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
