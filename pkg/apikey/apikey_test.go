package apikey

import (
	"testing"
	"time"
)

func TestKeyValid(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		key  Key
		want bool
	}{
		{"no expiry no revocation", Key{}, true},
		{"revoked", Key{RevokedAt: &past}, false},
		{"expired", Key{ExpiresAt: &past}, false},
		{"expires exactly now", Key{ExpiresAt: &now}, false},
		{"not yet expired", Key{ExpiresAt: &future}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.Valid(now); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToResponseKeepsPrefixAndDefaultsScopes(t *testing.T) {
	k := Key{Name: "ci-deploy", KeyHash: "secret-hash", KeyPrefix: "ck_abc123"}
	resp := k.ToResponse()

	if resp.KeyPrefix != "ck_abc123" {
		t.Errorf("KeyPrefix = %q, want ck_abc123", resp.KeyPrefix)
	}
	if resp.Scopes == nil {
		t.Error("Scopes should default to an empty slice, not nil")
	}
}
