package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/port/connector"
)

const (
	clientName    = "signof-governor"
	clientVersion = "1.0.0"
)

// Connector exposes the tools of one external MCP server as a connector.
// Its ID doubles as the circuit breaker key.
type Connector struct {
	id     string
	client *mcpclient.Client
}

var _ connector.Connector = (*Connector)(nil)

// Dial connects to the MCP server described by def and completes the
// initialize handshake.
func Dial(ctx context.Context, def config.MCPConnectorDef) (*Connector, error) {
	if def.ID == "" {
		return nil, errors.New("mcp connector: id is required")
	}

	var (
		c     *mcpclient.Client
		err   error
		start = true
	)
	switch def.Transport {
	case "stdio":
		if def.Command == "" {
			return nil, fmt.Errorf("mcp connector %s: command is required for stdio", def.ID)
		}
		// the stdio client spawns its subprocess on construction
		c, err = mcpclient.NewStdioMCPClient(def.Command, nil, def.Args...)
		start = false
	case "sse":
		c, err = mcpclient.NewSSEMCPClient(def.URL, mcptransport.WithHeaders(def.Headers))
	case "streamable_http", "":
		c, err = mcpclient.NewStreamableHttpClient(def.URL, mcptransport.WithHTTPHeaders(def.Headers))
	default:
		return nil, fmt.Errorf("mcp connector %s: unknown transport %q", def.ID, def.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("mcp connector %s: create client: %w", def.ID, err)
	}
	if start {
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("mcp connector %s: start: %w", def.ID, err)
		}
	}
	return NewConnector(ctx, def.ID, c)
}

// NewConnector wraps a started client and runs the initialize handshake.
func NewConnector(ctx context.Context, id string, c *mcpclient.Client) (*Connector, error) {
	res, err := c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ProtocolVersion: mcplib.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcplib.Implementation{Name: clientName, Version: clientVersion},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp connector %s: initialize: %w", id, err)
	}
	slog.Info("mcp connector ready", "connector_id", id, "server", res.ServerInfo.Name, "server_version", res.ServerInfo.Version)
	return &Connector{id: id, client: c}, nil
}

// ID returns the connector id.
func (c *Connector) ID() string { return c.id }

// Tools lists the remote tools.
func (c *Connector) Tools(ctx context.Context) ([]connector.Tool, error) {
	res, err := c.client.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp connector %s: list tools: %w", c.id, err)
	}
	out := make([]connector.Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, connector.Tool{
			Name:        t.Name,
			Description: t.Description,
			ConnectorID: c.id,
			Parameters:  inputSchema(t),
		})
	}
	return out, nil
}

// Call invokes a remote tool. A tool-level error result becomes an error
// so the breaker counts it.
func (c *Connector) Call(ctx context.Context, tool string, args json.RawMessage) (string, error) {
	var arguments map[string]any
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("mcp connector %s: decode arguments of %s: %w", c.id, tool, err)
		}
	}
	res, err := c.client.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: tool, Arguments: arguments},
	})
	if err != nil {
		return "", fmt.Errorf("mcp connector %s: call %s: %w", c.id, tool, err)
	}
	text := resultText(res)
	if res.IsError {
		return "", fmt.Errorf("mcp connector %s: tool %s failed: %s", c.id, tool, text)
	}
	return text, nil
}

// Close shuts the client down.
func (c *Connector) Close() error {
	return c.client.Close()
}

func inputSchema(t mcplib.Tool) map[string]any {
	if len(t.RawInputSchema) > 0 {
		var m map[string]any
		if err := json.Unmarshal(t.RawInputSchema, &m); err == nil {
			return m
		}
	}
	schema := map[string]any{"type": "object"}
	if t.InputSchema.Type != "" {
		schema["type"] = t.InputSchema.Type
	}
	if len(t.InputSchema.Properties) > 0 {
		schema["properties"] = t.InputSchema.Properties
	}
	if len(t.InputSchema.Required) > 0 {
		schema["required"] = t.InputSchema.Required
	}
	return schema
}

func resultText(res *mcplib.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcplib.TextContent:
			parts = append(parts, tc.Text)
		case *mcplib.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
