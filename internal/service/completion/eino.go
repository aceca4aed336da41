package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/internal/mcp"
	"github.com/zhouzirui/commerce-router/internal/model/service"
	"github.com/zhouzirui/commerce-router/internal/model/session"
)

const defaultToolIterations = 5

// ToolSession is an open connection to a service's tool provider.
type ToolSession interface {
	ListTools(ctx context.Context) ([]mcp.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// ToolDialer opens a ToolSession for a tool provider.
type ToolDialer func(ctx context.Context, tp *service.ToolProvider) (ToolSession, error)

// DialMCP connects to a streamable-HTTP MCP server and completes the handshake.
func DialMCP(version string) ToolDialer {
	return func(ctx context.Context, tp *service.ToolProvider) (ToolSession, error) {
		headers := map[string]string{}
		if tp.AuthorizationToken != "" {
			headers["Authorization"] = "Bearer " + tp.AuthorizationToken
		}
		client := mcp.NewClient(tp.Name, version, mcp.NewHTTPTransport(mcp.HTTPConfig{URL: tp.URL, Headers: headers}))
		if err := client.Initialize(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to %s: %w", tp.Name, err)
		}
		return client, nil
	}
}

// EinoCompleter runs an eino chat model. Plain calls go through the
// system+history chain; tool-enabled calls bind the provider's MCP tools and
// execute tool calls locally until the model answers.
type EinoCompleter struct {
	chatModel     model.BaseChatModel
	chain         compose.Runnable[map[string]any, *schema.Message]
	dial          ToolDialer
	maxIterations int
	logger        *logrus.Entry
}

// EinoOption configures an EinoCompleter.
type EinoOption func(*EinoCompleter)

// WithToolDialer sets how tool providers are reached.
func WithToolDialer(d ToolDialer) EinoOption {
	return func(c *EinoCompleter) { c.dial = d }
}

// WithMaxToolIterations bounds the model/tool round trips per call.
func WithMaxToolIterations(n int) EinoOption {
	return func(c *EinoCompleter) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// NewEino compiles the prompt chain around chatModel.
func NewEino(ctx context.Context, chatModel model.BaseChatModel, opts ...EinoOption) (*EinoCompleter, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	c := &EinoCompleter{
		chatModel:     chatModel,
		chain:         runnable,
		maxIterations: defaultToolIterations,
		logger:        logging.For("eino"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate runs one completion.
func (c *EinoCompleter) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.ToolProvider != nil && req.ToolProvider.URL != "" {
		return c.generateWithTools(ctx, req)
	}

	msg, err := c.chain.Invoke(ctx, map[string]any{
		"system":  req.SystemPrompt,
		"history": toSchemaMessages(req.History),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run chat chain: %w", err)
	}
	return &Result{Blocks: []Block{{Kind: BlockText, Text: msg.Content}}}, nil
}

func (c *EinoCompleter) generateWithTools(ctx context.Context, req Request) (*Result, error) {
	tcm, ok := c.chatModel.(model.ToolCallingChatModel)
	if !ok || c.dial == nil {
		return nil, ErrToolsUnsupported
	}

	toolSession, err := c.dial(ctx, req.ToolProvider)
	if err != nil {
		return nil, err
	}
	defer toolSession.Close()

	defs, err := toolSession.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools of %s: %w", req.ToolProvider.Name, err)
	}
	infos := make([]*schema.ToolInfo, 0, len(defs))
	for _, d := range defs {
		infos = append(infos, toolInfo(d))
	}

	bound, err := tcm.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("bind tools of %s: %w", req.ToolProvider.Name, err)
	}

	messages := append([]*schema.Message{schema.SystemMessage(req.SystemPrompt)}, toSchemaMessages(req.History)...)
	result := &Result{}

	for i := 0; i < c.maxIterations; i++ {
		out, err := bound.Generate(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("tool-enabled generate: %w", err)
		}
		if strings.TrimSpace(out.Content) != "" {
			result.Blocks = append(result.Blocks, Block{Kind: BlockText, Text: out.Content})
		}
		if len(out.ToolCalls) == 0 {
			return result, nil
		}

		messages = append(messages, out)
		for _, call := range out.ToolCalls {
			text := c.callTool(ctx, toolSession, req.Service, call)
			messages = append(messages, schema.ToolMessage(text, call.ID))
			result.Blocks = append(result.Blocks, Block{Kind: BlockToolResult, Text: text})
		}
	}
	return nil, fmt.Errorf("tool loop for %s did not finish within %d iterations", req.Service, c.maxIterations)
}

// callTool never fails the loop; errors are handed back to the model as text.
func (c *EinoCompleter) callTool(ctx context.Context, ts ToolSession, svc string, call schema.ToolCall) string {
	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return fmt.Sprintf("error: invalid arguments for %s: %v", call.Function.Name, err)
		}
	}

	out, err := ts.CallTool(ctx, call.Function.Name, args)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{"service": svc, "tool": call.Function.Name}).Warn("tool call failed")
		return "error: " + err.Error()
	}
	return out
}

func toSchemaMessages(history []session.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case session.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case session.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}
