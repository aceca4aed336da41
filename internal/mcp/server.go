package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/commerce-router/internal/logging"
)

// ErrInvalidParams marks tool errors caused by bad arguments. They are
// reported as JSON-RPC -32602 instead of a tool-level error result.
var ErrInvalidParams = errors.New("invalid params")

// ToolHandler executes one tool call and returns its text content.
type ToolHandler func(ctx context.Context, args map[string]any) (string, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition ToolDefinition
	Handler    ToolHandler
}

// Server exposes a fixed tool set over streamable HTTP (JSON responses only).
type Server struct {
	name    string
	version string
	tools   []Tool
	index   map[string]int
	logger  *logrus.Entry
}

// NewServer builds a server. Tool names must be unique.
func NewServer(name, version string, tools ...Tool) (*Server, error) {
	s := &Server{
		name:    name,
		version: version,
		index:   make(map[string]int, len(tools)),
		logger:  logging.For("mcp-server"),
	}
	for _, t := range tools {
		if t.Definition.Name == "" || t.Handler == nil {
			return nil, fmt.Errorf("mcp tool requires a name and a handler")
		}
		if _, dup := s.index[t.Definition.Name]; dup {
			return nil, fmt.Errorf("mcp tool %q registered twice", t.Definition.Name)
		}
		s.index[t.Definition.Name] = len(s.tools)
		s.tools = append(s.tools, t)
	}
	return s, nil
}

// ServeHTTP handles one JSON-RPC message per POST.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeRPC(w, errorResponse(nil, CodeParseError, "read body: "+err.Error()))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPC(w, errorResponse(nil, CodeParseError, "parse error"))
		return
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		writeRPC(w, errorResponse(req.ID, CodeInvalidRequest, "invalid request"))
		return
	}

	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if req.Method == "initialize" {
		w.Header().Set(sessionHeader, uuid.NewString())
	}
	writeRPC(w, s.Handle(r.Context(), &req))
}

// Handle dispatches a request and builds its response.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, initializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      implementationInfo{Name: s.name, Version: s.version},
			Capabilities:    serverCapabilities{Tools: &struct{}{}},
		})
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		defs := make([]ToolDefinition, len(s.tools))
		for i, t := range s.tools {
			defs[i] = t.Definition
		}
		return resultResponse(req.ID, toolsListResult{Tools: defs})
	case "tools/call":
		return s.callTool(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params callToolParams
	if len(req.Params) == 0 {
		return errorResponse(req.ID, CodeInvalidParams, "params are required")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
	}

	idx, ok := s.index[params.Name]
	if !ok {
		return errorResponse(req.ID, CodeInvalidParams, "unknown tool: "+params.Name)
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	text, err := s.tools[idx].Handler(ctx, params.Arguments)
	if errors.Is(err, ErrInvalidParams) {
		return errorResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err != nil {
		s.logger.WithError(err).WithField("tool", params.Name).Warn("tool call failed")
		return resultResponse(req.ID, CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
	}
	return resultResponse(req.ID, CallToolResult{Content: []ContentBlock{{Type: "text", Text: text}}})
}

func writeRPC(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// StringArg reads an optional string argument. Non-string values are an error.
func StringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidParams, key)
	}
	return strings.TrimSpace(s), nil
}

// BoolArg reads an optional boolean argument.
func BoolArg(args map[string]any, key string) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidParams, key)
	}
	return b, nil
}
