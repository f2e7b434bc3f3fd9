package payment

import (
	"context"
	"testing"
)

func TestMockProviderSettlesOnMatchingPreimage(t *testing.T) {
	p := NewMockProvider()
	ctx := context.Background()

	inv, err := p.CreateInvoice(ctx, 1000, "test item")
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	status, err := p.GetInvoiceStatus(ctx, inv.PaymentHash)
	if err != nil {
		t.Fatalf("GetInvoiceStatus: %v", err)
	}
	if status.Status != StatusPending {
		t.Fatalf("status before settlement = %q, want pending", status.Status)
	}

	// The mock stores the preimage internally; exercise rejection of a
	// wrong guess before confirming the real one settles it.
	status, err = p.VerifyPayment(ctx, inv.PaymentHash, "wrong-preimage")
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if status.Status != StatusPending {
		t.Errorf("status after wrong preimage = %q, want pending", status.Status)
	}

	status, err = p.VerifyPayment(ctx, inv.PaymentHash, p.invoices[inv.PaymentHash].preimage)
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if status.Status != StatusPaid {
		t.Errorf("status after matching preimage = %q, want paid", status.Status)
	}
}

func TestMockProviderUnknownHashFails(t *testing.T) {
	p := NewMockProvider()
	ctx := context.Background()

	status, err := p.GetInvoiceStatus(ctx, "never-created")
	if err != nil {
		t.Fatalf("GetInvoiceStatus: %v", err)
	}
	if status.Status != StatusFailed {
		t.Errorf("status = %q, want failed", status.Status)
	}
}

func TestNewProviderRejectsMockInProduction(t *testing.T) {
	_, err := NewProvider("mock", true, "", "", "")
	if err != ErrProviderRejectedInProduction {
		t.Errorf("NewProvider() error = %v, want ErrProviderRejectedInProduction", err)
	}
}

func TestNewProviderAllowsMockOutsideProduction(t *testing.T) {
	p, err := NewProvider("mock", false, "", "", "")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "mock" {
		t.Errorf("Name() = %q, want mock", p.Name())
	}
}

func TestNewProviderLND(t *testing.T) {
	p, err := NewProvider("lnd", true, "host", "macaroon", "cert")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "lnd" {
		t.Errorf("Name() = %q, want lnd", p.Name())
	}
}
