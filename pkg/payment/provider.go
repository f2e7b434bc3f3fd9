package payment

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Invoice is what a provider returns from CreateInvoice.
type Invoice struct {
	PaymentHash       string
	ProviderInvoiceID string
	PaymentRequest    string
	ExpiresAt         time.Time
}

// ProviderStatus is the authoritative invoice status a provider reports,
// distinct from Payment.Status: a provider never reports "consumed", since
// consumption is this service's own concept once an entitlement is
// fulfilled.
type ProviderStatus struct {
	Status        string // pending, paid, expired, failed
	SettledAt     *time.Time
	FailureReason *string
}

// Provider is the three-operation abstraction spec.md §9 requires:
// createInvoice, verifyPayment, getInvoiceStatus.
type Provider interface {
	Name() string
	CreateInvoice(ctx context.Context, amountSats int64, memo string) (Invoice, error)
	VerifyPayment(ctx context.Context, paymentHash, preimage string) (ProviderStatus, error)
	GetInvoiceStatus(ctx context.Context, paymentHash string) (ProviderStatus, error)
}

// ErrProviderRejectedInProduction is returned by NewProvider when the mock
// provider is selected under a production configuration.
var ErrProviderRejectedInProduction = errors.New("mock payment provider is not permitted in production")

// mockInvoice tracks the preimage the mock provider expects for settlement.
type mockInvoice struct {
	invoice  Invoice
	preimage string
	settled  bool
}

// MockProvider is an in-memory provider for development. CreateInvoice
// mints a random preimage/hash pair; VerifyPayment settles the invoice only
// when the caller presents the matching preimage, exactly as a real
// Lightning node would reject a non-matching one.
type MockProvider struct {
	mu       sync.Mutex
	invoices map[string]*mockInvoice
}

func NewMockProvider() *MockProvider {
	return &MockProvider{invoices: make(map[string]*mockInvoice)}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) CreateInvoice(ctx context.Context, amountSats int64, memo string) (Invoice, error) {
	preimage, err := randomHex(32)
	if err != nil {
		return Invoice{}, fmt.Errorf("generating mock preimage: %w", err)
	}
	hash := sha256.Sum256([]byte(preimage))
	paymentHash := hex.EncodeToString(hash[:])

	inv := Invoice{
		PaymentHash:       paymentHash,
		ProviderInvoiceID: "mock_" + paymentHash[:16],
		PaymentRequest:    fmt.Sprintf("lnmock1%s", paymentHash),
		ExpiresAt:         time.Now().Add(15 * time.Minute),
	}

	m.mu.Lock()
	m.invoices[paymentHash] = &mockInvoice{invoice: inv, preimage: preimage}
	m.mu.Unlock()

	return inv, nil
}

func (m *MockProvider) VerifyPayment(ctx context.Context, paymentHash, preimage string) (ProviderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mi, ok := m.invoices[paymentHash]
	if !ok {
		reason := "unknown invoice"
		return ProviderStatus{Status: StatusFailed, FailureReason: &reason}, nil
	}

	if preimage != "" && preimage == mi.preimage {
		mi.settled = true
	}

	return m.statusLocked(mi), nil
}

func (m *MockProvider) GetInvoiceStatus(ctx context.Context, paymentHash string) (ProviderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mi, ok := m.invoices[paymentHash]
	if !ok {
		reason := "unknown invoice"
		return ProviderStatus{Status: StatusFailed, FailureReason: &reason}, nil
	}

	return m.statusLocked(mi), nil
}

func (m *MockProvider) statusLocked(mi *mockInvoice) ProviderStatus {
	if mi.settled {
		now := time.Now()
		return ProviderStatus{Status: StatusPaid, SettledAt: &now}
	}
	if time.Now().After(mi.invoice.ExpiresAt) {
		return ProviderStatus{Status: StatusExpired}
	}
	return ProviderStatus{Status: StatusPending}
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// LNDProvider is a narrow seam for a real Lightning node backend. The wire
// protocol (gRPC to lnd) is out of scope per spec.md §1's "specific
// Lightning node implementations" non-goal; every method returns
// ErrNotImplemented so a real client is a drop-in behind this same
// interface.
type LNDProvider struct {
	Host     string
	Macaroon string
	TLSCert  string
}

var ErrNotImplemented = errors.New("lnd provider not implemented")

func (p *LNDProvider) Name() string { return "lnd" }

func (p *LNDProvider) CreateInvoice(ctx context.Context, amountSats int64, memo string) (Invoice, error) {
	return Invoice{}, ErrNotImplemented
}

func (p *LNDProvider) VerifyPayment(ctx context.Context, paymentHash, preimage string) (ProviderStatus, error) {
	return ProviderStatus{}, ErrNotImplemented
}

func (p *LNDProvider) GetInvoiceStatus(ctx context.Context, paymentHash string) (ProviderStatus, error) {
	return ProviderStatus{}, ErrNotImplemented
}

// NewProvider selects a Provider by name, rejecting "mock" when production
// is true per spec.md §9's explicit requirement.
func NewProvider(name string, production bool, lndHost, lndMacaroon, lndTLSCert string) (Provider, error) {
	switch name {
	case "mock":
		if production {
			return nil, ErrProviderRejectedInProduction
		}
		return NewMockProvider(), nil
	case "lnd":
		return &LNDProvider{Host: lndHost, Macaroon: lndMacaroon, TLSCert: lndTLSCert}, nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", name)
	}
}
