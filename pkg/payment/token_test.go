package payment

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenSignVerifyRoundTrip(t *testing.T) {
	signer := NewTokenSigner("test-master-secret")
	claims := Claims{
		PaymentHash: "abc123",
		Method:      "POST",
		Path:        "/api/v1/content-items",
		TenantID:    uuid.New(),
		AmountSats:  500,
		Expiry:      time.Now().Add(time.Hour),
	}

	token, err := signer.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.PaymentHash != claims.PaymentHash || got.TenantID != claims.TenantID {
		t.Errorf("Verify() = %+v, want claims matching %+v", got, claims)
	}
}

func TestTokenVerifyRejectsTampering(t *testing.T) {
	signer := NewTokenSigner("test-master-secret")
	claims := Claims{
		PaymentHash: "abc123",
		Method:      "GET",
		Path:        "/api/v1/content-items/1",
		TenantID:    uuid.New(),
		AmountSats:  100,
		Expiry:      time.Now().Add(time.Hour),
	}
	token, err := signer.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := signer.Verify(token + "tampered"); err == nil {
		t.Fatal("expected an error for a tampered token")
	}
}

func TestTokenVerifyRejectsOtherMasterSecret(t *testing.T) {
	claims := Claims{
		PaymentHash: "abc123",
		Method:      "GET",
		Path:        "/p",
		TenantID:    uuid.New(),
		AmountSats:  10,
		Expiry:      time.Now().Add(time.Hour),
	}
	signerA := NewTokenSigner("secret-a")
	signerB := NewTokenSigner("secret-b")

	token, err := signerA.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := signerB.Verify(token); err == nil {
		t.Fatal("expected verification with a different master secret to fail")
	}
}

func TestTokenVerifyRejectsExpired(t *testing.T) {
	signer := NewTokenSigner("test-master-secret")
	claims := Claims{
		PaymentHash: "abc123",
		Method:      "GET",
		Path:        "/p",
		TenantID:    uuid.New(),
		AmountSats:  10,
		Expiry:      time.Now().Add(-time.Minute),
	}
	token, err := signer.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := signer.Verify(token); err != ErrTokenExpired {
		t.Errorf("Verify() error = %v, want ErrTokenExpired", err)
	}
}

func TestSplitCredential(t *testing.T) {
	token, preimage, err := SplitCredential("tok123:pre456")
	if err != nil {
		t.Fatalf("SplitCredential: %v", err)
	}
	if token != "tok123" || preimage != "pre456" {
		t.Errorf("SplitCredential() = (%q, %q), want (tok123, pre456)", token, preimage)
	}

	if _, _, err := SplitCredential("malformed"); err == nil {
		t.Fatal("expected an error for a credential with no separator")
	}
}
