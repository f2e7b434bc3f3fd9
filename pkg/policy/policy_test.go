package policy

import (
	"testing"

	"github.com/google/uuid"
)

func TestToResponse(t *testing.T) {
	r := Record{
		ID:      uuid.New(),
		Gate:    GateScope,
		Outcome: Deny,
		Reason:  "missing scope content:write",
		Method:  "POST",
		Path:    "/content-items",
	}

	resp := r.ToResponse()
	if resp.Gate != GateScope || resp.Outcome != Deny {
		t.Errorf("ToResponse() = %+v, want gate=%q outcome=%q", resp, GateScope, Deny)
	}
}
