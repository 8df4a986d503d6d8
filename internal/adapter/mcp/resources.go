package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const budgetURIPrefix = "signof://budgets/"

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"signof://breakers",
			"Circuit Breakers",
			mcplib.WithResourceDescription("State of every connector circuit breaker"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleBreakersResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			budgetURIPrefix+"{agent_id}",
			"Agent Budget",
			mcplib.WithTemplateDescription("Budget consumption of one agent"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleBudgetResource,
	)
}

func (s *Server) handleBreakersResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Breakers == nil {
		return jsonResource(req.Params.URI, `{"error":"breaker registry not configured"}`), nil
	}
	data, err := json.Marshal(s.deps.Breakers.List())
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, string(data)), nil
}

func (s *Server) handleBudgetResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Budgets == nil {
		return jsonResource(req.Params.URI, `{"error":"budget ledger not configured"}`), nil
	}
	agentID := strings.TrimPrefix(req.Params.URI, budgetURIPrefix)
	if agentID == "" || agentID == req.Params.URI {
		return nil, errors.New("agent id missing from resource uri")
	}
	status, err := s.deps.Budgets.Status(ctx, agentID)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(status)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, string(data)), nil
}

func jsonResource(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}
}
