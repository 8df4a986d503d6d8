// Package agent defines agent behavioral profiles and model tiers.
package agent

import (
	"fmt"
	"strings"
)

// Type is a named behavioral profile.
type Type string

const (
	TypeAssistant  Type = "assistant"
	TypeResearcher Type = "researcher"
	TypeCoder      Type = "coder"
	TypeWriter     Type = "writer"
	TypeAnalyst    Type = "analyst"
)

// Tier is a cost/capability class used to pick a model.
type Tier string

const (
	TierFast     Tier = "fast"
	TierBalanced Tier = "balanced"
	TierPowerful Tier = "powerful"
)

// Tiers lists every tier from cheapest to most capable.
var Tiers = []Tier{TierFast, TierBalanced, TierPowerful}

// Rank orders tiers; unknown tiers rank below fast.
func (t Tier) Rank() int {
	for i, x := range Tiers {
		if x == t {
			return i
		}
	}
	return -1
}

// Min returns the less capable of a and b. Unknown tiers lose.
func Min(a, b Tier) Tier {
	if a.Rank() <= b.Rank() {
		return a
	}
	return b
}

// Profile describes how an agent type is prompted and which tier it prefers.
type Profile struct {
	Type          Type     `json:"type"`
	Description   string   `json:"description"`
	SystemPrompt  string   `json:"system_prompt"`
	PreferredTier Tier     `json:"preferred_tier"`
	Keywords      []string `json:"keywords,omitempty"`
}

// Profiles is the built-in profile set in routing order.
var Profiles = []Profile{
	{
		Type:          TypeAssistant,
		Description:   "General workspace assistant",
		SystemPrompt:  "You are a helpful workspace assistant. Answer concisely and use tools only when they are needed.",
		PreferredTier: TierFast,
	},
	{
		Type:          TypeResearcher,
		Description:   "Finds, compares and summarizes information",
		SystemPrompt:  "You are a research agent. Gather evidence, cite where each fact came from, and flag uncertainty.",
		PreferredTier: TierBalanced,
		Keywords:      []string{"research", "find", "search", "compare", "investigate", "sources", "look up"},
	},
	{
		Type:          TypeCoder,
		Description:   "Writes and reviews code and formulas",
		SystemPrompt:  "You are a coding agent. Produce correct, minimal code and explain only non-obvious choices.",
		PreferredTier: TierPowerful,
		Keywords:      []string{"code", "function", "bug", "script", "formula", "api", "debug", "implement"},
	},
	{
		Type:          TypeWriter,
		Description:   "Drafts and edits documents",
		SystemPrompt:  "You are a writing agent. Match the requested tone and keep the structure easy to scan.",
		PreferredTier: TierBalanced,
		Keywords:      []string{"write", "draft", "email", "letter", "rewrite", "edit", "summarize", "proofread"},
	},
	{
		Type:          TypeAnalyst,
		Description:   "Analyzes tables, spend and metrics",
		SystemPrompt:  "You are a data analyst agent. Show the numbers behind each conclusion.",
		PreferredTier: TierBalanced,
		Keywords:      []string{"analyze", "analysis", "chart", "trend", "revenue", "spreadsheet", "table", "metrics", "forecast"},
	},
}

// Lookup returns the profile for t.
func Lookup(t Type) (Profile, bool) {
	for _, p := range Profiles {
		if p.Type == t {
			return p, true
		}
	}
	return Profile{}, false
}

// ParseType validates a caller-supplied agent type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := Lookup(t); !ok {
		return "", fmt.Errorf("unknown agent type %q", s)
	}
	return t, nil
}
