package policy

// Baseline returns the built-in policy set evaluated when a tenant's own
// policies cannot be loaded.
func Baseline() []Policy {
	bulkExport := 25.0
	return []Policy{
		{
			ID:               "baseline-approve-payments",
			Name:             "Payments require approval",
			Action:           "payment.process",
			Effect:           EffectAllow,
			RequiresApproval: true,
			Priority:         100,
			Enabled:          true,
		},
		{
			ID:               "baseline-approve-user-removal",
			Name:             "User removal requires approval",
			Action:           "user.remove",
			Effect:           EffectAllow,
			RequiresApproval: true,
			Priority:         100,
			Enabled:          true,
		},
		{
			ID:         "baseline-deny-costly-export",
			Name:       "Deny expensive bulk exports",
			Action:     "data.export",
			Effect:     EffectDeny,
			Conditions: Conditions{MinCost: &bulkExport},
			Priority:   90,
			Enabled:    true,
		},
	}
}
