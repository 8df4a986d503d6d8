package policy

// SensitiveSet is the configured list of high-risk actions. Lookups that
// fail for these actions deny instead of allowing.
type SensitiveSet map[string]struct{}

// NewSensitiveSet builds a set from a configured action list.
func NewSensitiveSet(actions []string) SensitiveSet {
	s := make(SensitiveSet, len(actions))
	for _, a := range actions {
		s[a] = struct{}{}
	}
	return s
}

// Contains reports whether action is sensitive.
func (s SensitiveSet) Contains(action string) bool {
	_, ok := s[action]
	return ok
}
