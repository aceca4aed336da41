package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/commerce-router/internal/config"
	"github.com/zhouzirui/commerce-router/internal/logging"
)

const (
	anthropicAPIVersion = "2023-06-01"
	// anthropicMCPBeta enables the hosted MCP connector (mcp_servers).
	anthropicMCPBeta = "mcp-client-2025-04-04"
)

// AnthropicClient calls the Messages API and lets Anthropic's MCP connector
// reach the service's tool provider directly.
type AnthropicClient struct {
	cfg        config.AnthropicConfig
	httpClient *http.Client
	logger     *logrus.Entry
}

// AnthropicOption configures an AnthropicClient.
type AnthropicOption func(*AnthropicClient)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) AnthropicOption {
	return func(a *AnthropicClient) { a.httpClient = c }
}

// NewAnthropic creates a client. Timeouts come from the caller's context.
func NewAnthropic(cfg config.AnthropicConfig, opts ...AnthropicOption) *AnthropicClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 120 * time.Second

	c := &AnthropicClient{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport},
		logger:     logging.For("anthropic"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type anthropicRequest struct {
	Model      string               `json:"model"`
	MaxTokens  int                  `json:"max_tokens"`
	System     string               `json:"system,omitempty"`
	Messages   []anthropicMessage   `json:"messages"`
	MCPServers []anthropicMCPServer `json:"mcp_servers,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMCPServer struct {
	Type               string `json:"type"`
	URL                string `json:"url"`
	Name               string `json:"name"`
	AuthorizationToken string `json:"authorization_token,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicContent struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Content json.RawMessage `json:"content,omitempty"` // tool results: string or []{type,text}
	IsError bool            `json:"is_error,omitempty"`
}

// Generate sends one Messages API request.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (*Result, error) {
	body := anthropicRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    req.SystemPrompt,
		Messages:  make([]anthropicMessage, 0, len(req.History)),
	}
	for _, m := range req.History {
		body.Messages = append(body.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	tools := req.ToolProvider != nil && req.ToolProvider.URL != ""
	if tools {
		body.MaxTokens = c.cfg.ToolMaxTokens
		typ := req.ToolProvider.Type
		if typ == "" {
			typ = "url"
		}
		body.MCPServers = []anthropicMCPServer{{
			Type:               typ,
			URL:                req.ToolProvider.URL,
			Name:               req.ToolProvider.Name,
			AuthorizationToken: req.ToolProvider.AuthorizationToken,
		}}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	if tools {
		httpReq.Header.Set("anthropic-beta", anthropicMCPBeta)
	}

	logger := c.logger.WithFields(logrus.Fields{
		"service":  req.Service,
		"messages": len(body.Messages),
		"tools":    tools,
	})
	logger.Debug("sending messages request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := convertFromAnthropic(&parsed)
	logger.WithFields(logrus.Fields{
		"input_tokens":  parsed.Usage.InputTokens,
		"output_tokens": parsed.Usage.OutputTokens,
		"stop_reason":   parsed.StopReason,
		"text_blocks":   len(result.TextSegments()),
		"tool_results":  len(result.ToolResultSegments()),
	}).Debug("messages response received")
	return result, nil
}

func convertFromAnthropic(resp *anthropicResponse) *Result {
	result := &Result{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Blocks = append(result.Blocks, Block{Kind: BlockText, Text: block.Text})
		case "mcp_tool_result", "tool_result":
			if text := toolResultText(block.Content); text != "" {
				result.Blocks = append(result.Blocks, Block{Kind: BlockToolResult, Text: text})
			}
		}
	}
	return result
}

// toolResultText accepts either a bare string or a list of content items.
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if it.Text != "" {
			parts = append(parts, it.Text)
		}
	}
	return strings.Join(parts, "\n")
}
