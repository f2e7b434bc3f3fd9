package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractKey(t *testing.T) {
	tests := []struct {
		name   string
		header func(r *http.Request)
		want   string
	}{
		{
			name:   "X-API-Key header",
			header: func(r *http.Request) { r.Header.Set("X-API-Key", "raw-key") },
			want:   "raw-key",
		},
		{
			name:   "bearer token",
			header: func(r *http.Request) { r.Header.Set("Authorization", "Bearer raw-bearer") },
			want:   "raw-bearer",
		},
		{
			name:   "no header",
			header: func(r *http.Request) {},
			want:   "",
		},
		{
			name: "X-API-Key takes precedence over bearer",
			header: func(r *http.Request) {
				r.Header.Set("X-API-Key", "preferred")
				r.Header.Set("Authorization", "Bearer other")
			},
			want: "preferred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/content-items", nil)
			tt.header(r)
			if got := extractKey(r); got != tt.want {
				t.Errorf("extractKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireScope_NoPrincipal(t *testing.T) {
	mw := RequireScope(ScopeContentRead)
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/content-items", nil)

	handlerCalled := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})).ServeHTTP(rr, r)

	if handlerCalled {
		t.Error("handler should not run without a principal in context")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRequireScope_InsufficientScope(t *testing.T) {
	mw := RequireScope(ScopeWebhooksManage)
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/webhooks", nil)
	ctx := NewContext(r.Context(), &Principal{Scopes: []string{ScopeContentRead}})
	r = r.WithContext(ctx)

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run for an insufficiently scoped principal")
	})).ServeHTTP(rr, r)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestRequireScope_Allowed(t *testing.T) {
	mw := RequireScope(ScopeContentRead)
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/content-items", nil)
	ctx := NewContext(r.Context(), &Principal{Scopes: []string{ScopeAdmin}})
	r = r.WithContext(ctx)

	handlerCalled := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, r)

	if !handlerCalled {
		t.Error("handler should run for an admin-scoped principal")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}
