package revenue

import (
	"context"
	"testing"
)

func TestNewExecutorRejectsMockInProduction(t *testing.T) {
	_, err := NewExecutor("mock", true)
	if err != ErrExecutorRejectedInProduction {
		t.Errorf("NewExecutor() error = %v, want ErrExecutorRejectedInProduction", err)
	}
}

func TestNewExecutorAllowsMockOutsideProduction(t *testing.T) {
	e, err := NewExecutor("mock", false)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if e.Name() != "mock" {
		t.Errorf("Name() = %q, want mock", e.Name())
	}
}

func TestNewExecutorRejectsUnknown(t *testing.T) {
	if _, err := NewExecutor("bank-wire", false); err == nil {
		t.Error("expected error for unknown executor name")
	}
}

func TestMockExecutorTransferReturnsReference(t *testing.T) {
	e := NewMockExecutor()
	ref, err := e.Transfer(context.Background(), "agent-1", 5000)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if ref == "" {
		t.Error("expected non-empty transfer reference")
	}
}
