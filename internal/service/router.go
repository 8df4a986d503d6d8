package service

import (
	"strings"

	"github.com/multivitaminds/signof-sub014/internal/domain/agent"
)

// Route picks an agent type from the message text by keyword hits. Ties go
// to the profile listed first; no hits routes to the assistant.
func Route(message string) agent.Type {
	text := strings.ToLower(message)
	best, bestScore := agent.TypeAssistant, 0
	for _, p := range agent.Profiles {
		score := 0
		for _, kw := range p.Keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = p.Type, score
		}
	}
	return best
}
