package apikey

import "testing"

func TestGenerateKeyFormat(t *testing.T) {
	raw, hash, prefix := generateKey()

	if len(raw) < len("ck_")+32 {
		t.Errorf("raw key too short: %q", raw)
	}
	if raw[:3] != "ck_" {
		t.Errorf("raw key missing ck_ prefix: %q", raw)
	}
	if len(hash) != 64 {
		t.Errorf("hash should be a 64-char hex digest, got %d chars", len(hash))
	}
	if prefix != raw[:10] {
		t.Errorf("prefix %q should be the first 10 chars of raw key", prefix)
	}
}

func TestGenerateKeyUnique(t *testing.T) {
	raw1, _, _ := generateKey()
	raw2, _, _ := generateKey()

	if raw1 == raw2 {
		t.Error("generateKey() should produce unique values across calls")
	}
}
