package service_test

import (
	"testing"

	"github.com/multivitaminds/signof-sub014/internal/domain/agent"
	"github.com/multivitaminds/signof-sub014/internal/service"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		message string
		want    agent.Type
	}{
		{"hello there", agent.TypeAssistant},
		{"Please research and compare sources on solar panels", agent.TypeResearcher},
		{"Fix the bug in this function", agent.TypeCoder},
		{"Draft an email to the team", agent.TypeWriter},
		{"Analyze the revenue trend in this spreadsheet", agent.TypeAnalyst},
		{"", agent.TypeAssistant},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := service.Route(tt.message); got != tt.want {
				t.Errorf("Route(%q) = %s, want %s", tt.message, got, tt.want)
			}
		})
	}
}
