// Package mcp binds the Model Context Protocol: a server exposing the
// governance checks as MCP tools, and a client connector routing agent tool
// calls to external MCP servers.
package mcp

import (
	"context"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/multivitaminds/signof-sub014/internal/domain/approval"
	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
	"github.com/multivitaminds/signof-sub014/internal/resilience"
)

// ActionChecker evaluates a proposed action.
type ActionChecker interface {
	CheckAction(ctx context.Context, ac policy.ActionContext) (policy.Decision, error)
}

// BreakerReader reports circuit breaker state.
type BreakerReader interface {
	Status(connectorID string) resilience.Snapshot
	List() []resilience.Snapshot
}

// BudgetChecker evaluates an agent budget.
type BudgetChecker interface {
	CheckBudget(ctx context.Context, agentID string, requested budget.Usage) (budget.Decision, error)
	Status(ctx context.Context, agentID string) (budget.Status, error)
}

// ApprovalReader reads approval request state.
type ApprovalReader interface {
	Status(ctx context.Context, tenantID, id string) (approval.Status, error)
	ListPending(ctx context.Context, tenantID string) ([]approval.Request, error)
}

// ServerConfig holds the MCP server identity.
type ServerConfig struct {
	Name    string
	Version string
	APIKey  string // empty disables auth
}

// ServerDeps are the services backing the tools. Nil deps make their
// tools report "not configured".
type ServerDeps struct {
	Governor  ActionChecker
	Breakers  BreakerReader
	Budgets   BudgetChecker
	Approvals ApprovalReader
}

// Server exposes governance checks over MCP.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer creates a Server with every tool and resource registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(
		cfg.Name,
		cfg.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler returns the streamable HTTP transport, behind AuthMiddleware.
func (s *Server) Handler() http.Handler {
	return AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
