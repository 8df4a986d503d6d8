package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.checkActionTool(),
		s.breakerStatusTool(),
		s.checkBudgetTool(),
		s.approvalStatusTool(),
	)
}

func (s *Server) checkActionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("check_action",
		mcplib.WithDescription("Ask the governor whether an action may proceed for a tenant"),
		mcplib.WithString("tenant_id", mcplib.Required(), mcplib.Description("Tenant the action belongs to")),
		mcplib.WithString("actor_id", mcplib.Required(), mcplib.Description("User or agent requesting the action")),
		mcplib.WithString("action", mcplib.Required(), mcplib.Description("Action name, e.g. data.export")),
		mcplib.WithString("agent_id", mcplib.Description("Agent whose budget is charged")),
		mcplib.WithString("agent_type", mcplib.Description("Agent type used for policy matching")),
		mcplib.WithString("resource_type", mcplib.Description("Type of the target resource")),
		mcplib.WithString("resource_id", mcplib.Description("ID of the target resource")),
		mcplib.WithNumber("estimated_cost", mcplib.Description("Estimated cost in USD")),
		mcplib.WithString("approval_id", mcplib.Description("Approved request satisfying the approval step")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCheckAction}
}

func (s *Server) breakerStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("breaker_status",
		mcplib.WithDescription("Circuit breaker state of one connector, or of all connectors when connector_id is empty"),
		mcplib.WithString("connector_id", mcplib.Description("Connector to inspect")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleBreakerStatus}
}

func (s *Server) checkBudgetTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("check_budget",
		mcplib.WithDescription("Check whether an agent can afford the requested tokens and cost"),
		mcplib.WithString("agent_id", mcplib.Required(), mcplib.Description("Agent budget key")),
		mcplib.WithNumber("tokens", mcplib.Description("Requested tokens")),
		mcplib.WithNumber("cost_usd", mcplib.Description("Requested cost in USD")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCheckBudget}
}

func (s *Server) approvalStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("approval_status",
		mcplib.WithDescription("Status of an approval request, or the pending requests of a tenant when approval_id is empty"),
		mcplib.WithString("tenant_id", mcplib.Required(), mcplib.Description("Tenant owning the request")),
		mcplib.WithString("approval_id", mcplib.Description("Approval request ID")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleApprovalStatus}
}

func (s *Server) handleCheckAction(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Governor == nil {
		return mcplib.NewToolResultError("governor not configured"), nil
	}
	ac := policy.ActionContext{
		TenantID:     req.GetString("tenant_id", ""),
		ActorID:      req.GetString("actor_id", ""),
		AgentID:      req.GetString("agent_id", ""),
		AgentType:    req.GetString("agent_type", ""),
		Action:       req.GetString("action", ""),
		ResourceType: req.GetString("resource_type", ""),
		ResourceID:   req.GetString("resource_id", ""),
		ApprovalID:   req.GetString("approval_id", ""),
	}
	if ac.TenantID == "" || ac.ActorID == "" || ac.Action == "" {
		return mcplib.NewToolResultError("tenant_id, actor_id and action are required"), nil
	}
	if _, ok := req.GetArguments()["estimated_cost"]; ok {
		c := req.GetFloat("estimated_cost", 0)
		ac.EstimatedCost = &c
	}
	d, err := s.deps.Governor.CheckAction(ctx, ac)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to check action", err), nil
	}
	return marshalResult(d, "decision")
}

func (s *Server) handleBreakerStatus(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Breakers == nil {
		return mcplib.NewToolResultError("breaker registry not configured"), nil
	}
	if id := req.GetString("connector_id", ""); id != "" {
		return marshalResult(s.deps.Breakers.Status(id), "breaker")
	}
	return marshalResult(s.deps.Breakers.List(), "breakers")
}

func (s *Server) handleCheckBudget(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Budgets == nil {
		return mcplib.NewToolResultError("budget ledger not configured"), nil
	}
	agentID := req.GetString("agent_id", "")
	if agentID == "" {
		return mcplib.NewToolResultError("agent_id is required"), nil
	}
	requested := budget.Usage{
		Tokens:  int64(req.GetFloat("tokens", 0)),
		CostUSD: req.GetFloat("cost_usd", 0),
	}
	d, err := s.deps.Budgets.CheckBudget(ctx, agentID, requested)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to check budget of %s", agentID), err), nil
	}
	return marshalResult(d, "budget decision")
}

func (s *Server) handleApprovalStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Approvals == nil {
		return mcplib.NewToolResultError("approval workflow not configured"), nil
	}
	tenantID := req.GetString("tenant_id", "")
	if tenantID == "" {
		return mcplib.NewToolResultError("tenant_id is required"), nil
	}
	id := req.GetString("approval_id", "")
	if id == "" {
		pending, err := s.deps.Approvals.ListPending(ctx, tenantID)
		if err != nil {
			return mcplib.NewToolResultErrorFromErr("failed to list pending approvals", err), nil
		}
		return marshalResult(pending, "approvals")
	}
	status, err := s.deps.Approvals.Status(ctx, tenantID, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get approval %s", id), err), nil
	}
	return marshalResult(map[string]string{"approval_id": id, "status": string(status)}, "approval status")
}

func marshalResult(v any, what string) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal "+what, err), nil
	}
	return toolResultJSON(string(data)), nil
}
