package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/commerce-router/internal/logging"
)

const clientName = "commerce-router"

// Transport delivers JSON-RPC messages to one MCP server.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
	Notify(ctx context.Context, notif *Notification) error
	Close() error
}

// Client connects to a single MCP server and provides typed access to
// initialize, tools/list and tools/call.
type Client struct {
	name      string
	version   string
	transport Transport
	logger    *logrus.Entry
	nextID    atomic.Int64

	mu          sync.RWMutex
	initialized bool
	serverName  string
	tools       []ToolDefinition
}

// NewClient creates an MCP client for the named server.
func NewClient(name, version string, transport Transport) *Client {
	return &Client{
		name:      name,
		version:   version,
		transport: transport,
		logger:    logging.For("mcp").WithField("mcp_server", name),
	}
}

// Name returns the server name this client is connected to.
func (c *Client) Name() string {
	return c.name
}

// Initialize performs the MCP handshake: an initialize request followed by
// the notifications/initialized notification.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": implementationInfo{
			Name:    clientName,
			Version: c.version,
		},
	}

	resp, err := c.send(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("unmarshal initialize result: %w", err)
	}

	c.mu.Lock()
	c.initialized = true
	c.serverName = result.ServerInfo.Name
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"server_name":      result.ServerInfo.Name,
		"server_version":   result.ServerInfo.Version,
		"protocol_version": result.ProtocolVersion,
	}).Debug("MCP server initialized")

	if err := c.transport.Notify(ctx, NewNotification("notifications/initialized", nil)); err != nil {
		return fmt.Errorf("send initialized notification: %w", err)
	}
	return nil
}

// ListTools calls tools/list. Results are cached for the client's lifetime.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	c.mu.RLock()
	if c.tools != nil {
		defer c.mu.RUnlock()
		return c.tools, nil
	}
	c.mu.RUnlock()

	resp, err := c.send(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("unmarshal tools/list result: %w", err)
	}
	if result.Tools == nil {
		result.Tools = []ToolDefinition{}
	}

	c.mu.Lock()
	c.tools = result.Tools
	c.mu.Unlock()

	c.logger.WithField("count", len(result.Tools)).Debug("discovered MCP tools")
	return result.Tools, nil
}

// CallTool invokes a tool and flattens its content blocks into one string.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	resp, err := c.send(ctx, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("tools/call %s: %w", name, err)
	}

	var result CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("unmarshal tools/call result: %w", err)
	}

	text := ExtractText(result.Content)
	if result.IsError {
		return "", fmt.Errorf("MCP tool %s returned error: %s", name, text)
	}
	return text, nil
}

// Close shuts down the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) send(ctx context.Context, method string, params any) (*Response, error) {
	req, err := NewRequest(c.nextID.Add(1), method, params)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp, nil
}

// ExtractText joins all text content blocks into a single string.
// Non-text blocks are represented as inline markers.
func ExtractText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		default:
			parts = append(parts, fmt.Sprintf("[%s]", b.Type))
		}
	}
	return strings.Join(parts, "\n")
}
