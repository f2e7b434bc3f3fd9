package revenue

import (
	"errors"
	"fmt"
)

// ErrSplitNotBalanced is returned when a policy's basis points do not sum
// to 10000.
var ErrSplitNotBalanced = errors.New("split basis points do not sum to 10000")

// ErrUnknownResidualParty is returned when a policy's residual party is not
// among its own split entries.
var ErrUnknownResidualParty = errors.New("residual party is not a split entry")

// Validate checks that p's splits sum to exactly 10000 basis points and
// that its residual party is one of the split entries.
func (p *SplitPolicy) Validate() error {
	sum := int32(0)
	found := false
	for _, s := range p.Splits {
		if s.Bps < 0 {
			return fmt.Errorf("negative bps for %q", s.AgentProfileID)
		}
		sum += s.Bps
		if s.AgentProfileID == p.ResidualAgentProfileID {
			found = true
		}
	}
	if sum != totalBps {
		return ErrSplitNotBalanced
	}
	if !found {
		return ErrUnknownResidualParty
	}
	return nil
}

// Allocate splits grossSats among p's parties proportional to their basis
// points, flooring each share and assigning the rounding remainder to the
// residual party — spec.md §4.5's Open Question, resolved as "largest
// recipient eats the remainder" where the designated residual party always
// plays that role (see SPEC_FULL.md §4.5).
func (p *SplitPolicy) Allocate(grossSats int64) ([]SplitEntry, map[string]int64, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	amounts := make(map[string]int64, len(p.Splits))
	var allocated int64
	for _, s := range p.Splits {
		share := grossSats * int64(s.Bps) / totalBps
		amounts[s.AgentProfileID] += share
		allocated += share
	}

	residual := grossSats - allocated
	amounts[p.ResidualAgentProfileID] += residual

	return p.Splits, amounts, nil
}
