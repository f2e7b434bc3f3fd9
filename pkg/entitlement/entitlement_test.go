package entitlement

import "testing"

func TestTerminal(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{StatusPendingPayment, false},
		{StatusActive, false},
		{StatusExhausted, true},
		{StatusExpired, true},
		{StatusRevoked, true},
	}
	for _, c := range cases {
		if got := terminal(c.status); got != c.want {
			t.Errorf("terminal(%q) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestToResponseUnlimited(t *testing.T) {
	e := Entitlement{Status: StatusActive, RemainingReads: nil}
	resp := e.ToResponse()
	if resp.RemainingReads != nil {
		t.Errorf("RemainingReads = %v, want nil", resp.RemainingReads)
	}
	if resp.Status != StatusActive {
		t.Errorf("Status = %q, want %q", resp.Status, StatusActive)
	}
}

func TestToResponseBounded(t *testing.T) {
	n := int32(5)
	e := Entitlement{Status: StatusActive, RemainingReads: &n}
	resp := e.ToResponse()
	if resp.RemainingReads == nil || *resp.RemainingReads != 5 {
		t.Errorf("RemainingReads = %v, want 5", resp.RemainingReads)
	}
}
