package policy

import "fmt"

// Validate checks that a Policy is well-formed.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy: name is required")
	}
	if p.Action == "" {
		return fmt.Errorf("policy %s: action is required", p.Name)
	}
	if p.Effect != EffectAllow && p.Effect != EffectDeny {
		return fmt.Errorf("policy %s: invalid effect %q", p.Name, p.Effect)
	}
	c := p.Conditions
	if c.MinCost != nil && *c.MinCost < 0 {
		return fmt.Errorf("policy %s: min_cost must be >= 0", p.Name)
	}
	if c.MaxCost != nil && *c.MaxCost < 0 {
		return fmt.Errorf("policy %s: max_cost must be >= 0", p.Name)
	}
	if c.MinCost != nil && c.MaxCost != nil && *c.MinCost > *c.MaxCost {
		return fmt.Errorf("policy %s: min_cost exceeds max_cost", p.Name)
	}
	return nil
}
