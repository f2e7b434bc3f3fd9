package revenue

import "testing"

func policyFixture() SplitPolicy {
	return SplitPolicy{
		Splits: []SplitEntry{
			{AgentProfileID: "creator", Bps: 7000},
			{AgentProfileID: "platform", Bps: 2500},
			{AgentProfileID: "dependency", Bps: 500},
		},
		ResidualAgentProfileID: "platform",
	}
}

func TestValidateRejectsUnbalancedSplit(t *testing.T) {
	p := policyFixture()
	p.Splits[0].Bps = 6999
	if err := p.Validate(); err != ErrSplitNotBalanced {
		t.Errorf("Validate() = %v, want ErrSplitNotBalanced", err)
	}
}

func TestValidateRejectsUnknownResidualParty(t *testing.T) {
	p := policyFixture()
	p.ResidualAgentProfileID = "someone-else"
	if err := p.Validate(); err != ErrUnknownResidualParty {
		t.Errorf("Validate() = %v, want ErrUnknownResidualParty", err)
	}
}

func TestAllocateSumsToGross(t *testing.T) {
	p := policyFixture()
	_, amounts, err := p.Allocate(1000)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	var total int64
	for _, v := range amounts {
		total += v
	}
	if total != 1000 {
		t.Errorf("total allocated = %d, want 1000", total)
	}
}

func TestAllocateResidualAbsorbsRounding(t *testing.T) {
	p := policyFixture()
	// 333 * 7000 / 10000 = 233.1 -> floors to 233
	// 333 * 2500 / 10000 = 83.25 -> floors to 83
	// 333 * 500 / 10000 = 16.65 -> floors to 16
	// floor sum = 332, residual of 1 sat goes to platform (83 floor + 1 = 84 total)
	_, amounts, err := p.Allocate(333)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if amounts["creator"] != 233 {
		t.Errorf("creator = %d, want 233", amounts["creator"])
	}
	if amounts["dependency"] != 16 {
		t.Errorf("dependency = %d, want 16", amounts["dependency"])
	}
	if amounts["platform"] != 84 {
		t.Errorf("platform = %d, want 84 (83 floor + 1 residual)", amounts["platform"])
	}
}

func TestAllocateRejectsUnbalancedPolicy(t *testing.T) {
	p := policyFixture()
	p.Splits[0].Bps = 1
	if _, _, err := p.Allocate(1000); err != ErrSplitNotBalanced {
		t.Errorf("Allocate() error = %v, want ErrSplitNotBalanced", err)
	}
}
