package contentitem

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseListFiltersInvalidContentTypeID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?content_type_id=not-a-uuid", nil)
	if _, err := parseListFilters(r); err == nil {
		t.Fatal("expected an error for an invalid content_type_id")
	}
}

func TestParseListFiltersInvalidCreatedAfter(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?created_after=not-a-time", nil)
	if _, err := parseListFilters(r); err == nil {
		t.Fatal("expected an error for an invalid created_after")
	}
}

func TestParseListFiltersValid(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?status=draft&created_after=2026-01-01T00:00:00Z", nil)
	f, err := parseListFilters(r)
	if err != nil {
		t.Fatalf("parseListFilters: %v", err)
	}
	if f.Status != "draft" {
		t.Errorf("Status = %q, want draft", f.Status)
	}
	if f.CreatedAfter == nil {
		t.Error("expected CreatedAfter to be set")
	}
}

func TestHandleGetInvalidID(t *testing.T) {
	h := &Handler{}
	r := httptest.NewRequest(http.MethodGet, "/not-a-uuid", nil)
	w := httptest.NewRecorder()

	h.handleGet(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleDeleteInvalidID(t *testing.T) {
	h := &Handler{}
	r := httptest.NewRequest(http.MethodDelete, "/not-a-uuid", nil)
	w := httptest.NewRecorder()

	h.handleDelete(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCredentialFromHeaderMissing(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/content-items", nil)
	if got := credentialFromHeader(r); got != "" {
		t.Errorf("credentialFromHeader() = %q, want empty", got)
	}
}

func TestCredentialFromHeaderWrongScheme(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/content-items", nil)
	r.Header.Set("Authorization", "Bearer sometoken")
	if got := credentialFromHeader(r); got != "" {
		t.Errorf("credentialFromHeader() = %q, want empty", got)
	}
}

func TestCredentialFromHeaderValid(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/content-items", nil)
	r.Header.Set("Authorization", "L402 token123:preimage456")
	if got := credentialFromHeader(r); got != "token123:preimage456" {
		t.Errorf("credentialFromHeader() = %q, want token123:preimage456", got)
	}
}
