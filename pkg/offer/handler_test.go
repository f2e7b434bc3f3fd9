package offer

import (
	"net/http/httptest"
	"testing"
)

func TestCredentialFromHeaderParsesL402Scheme(t *testing.T) {
	r := httptest.NewRequest("POST", "/offers/x/purchase/confirm", nil)
	r.Header.Set("Authorization", "L402 abc123:def456")

	cred, ok := credentialFromHeader(r)
	if !ok || cred != "abc123:def456" {
		t.Fatalf("credentialFromHeader() = (%q, %v), want (\"abc123:def456\", true)", cred, ok)
	}
}

func TestCredentialFromHeaderRejectsOtherSchemes(t *testing.T) {
	r := httptest.NewRequest("POST", "/offers/x/purchase/confirm", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	if _, ok := credentialFromHeader(r); ok {
		t.Fatal("credentialFromHeader() = ok, want false for non-L402 scheme")
	}
}

func TestCredentialFromHeaderRejectsMissing(t *testing.T) {
	r := httptest.NewRequest("POST", "/offers/x/purchase/confirm", nil)

	if _, ok := credentialFromHeader(r); ok {
		t.Fatal("credentialFromHeader() = ok, want false when header absent")
	}
}
