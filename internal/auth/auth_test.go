package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestHashAPIKey(t *testing.T) {
	h1 := HashAPIKey("test-key-123")
	h2 := HashAPIKey("test-key-123")
	if h1 != h2 {
		t.Errorf("HashAPIKey should be deterministic, got %q and %q", h1, h2)
	}

	h3 := HashAPIKey("different-key")
	if h1 == h3 {
		t.Error("different raw keys should hash differently")
	}
}

func TestPrincipalHasScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		check  string
		want   bool
	}{
		{"exact match", []string{ScopeContentRead}, ScopeContentRead, true},
		{"missing scope", []string{ScopeContentRead}, ScopeContentWrite, false},
		{"admin wildcard", []string{ScopeAdmin}, ScopeWebhooksManage, true},
		{"empty scopes", nil, ScopeContentRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Principal{Scopes: tt.scopes}
			if got := p.HasScope(tt.check); got != tt.want {
				t.Errorf("HasScope(%q) = %v, want %v", tt.check, got, tt.want)
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	p := &Principal{ActorID: uuid.New(), TenantID: uuid.New(), Scopes: []string{ScopeContentRead}}
	ctx := NewContext(context.Background(), p)

	got := FromContext(ctx)
	if got == nil || got.ActorID != p.ActorID {
		t.Errorf("FromContext() = %+v, want %+v", got, p)
	}
}

func TestFromContextEmpty(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() on empty context = %+v, want nil", got)
	}
}
