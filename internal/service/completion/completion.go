// Package completion adapts language-model providers to the single call the
// conversation engine needs: history + system prompt + optional tool provider
// in, ordered text and tool-result blocks out.
package completion

import (
	"context"
	"errors"

	"github.com/zhouzirui/commerce-router/internal/model/service"
	"github.com/zhouzirui/commerce-router/internal/model/session"
)

// ErrToolsUnsupported is returned when a provider cannot attach the requested
// tool provider. Callers treat it like any other tool-enabled failure.
var ErrToolsUnsupported = errors.New("completion provider does not support tool providers")

// BlockKind tells text apart from tool output.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolResult BlockKind = "tool_result"
)

// Block is one segment of a model response, in emission order.
type Block struct {
	Kind BlockKind
	Text string
}

// Result is a parsed model response.
type Result struct {
	Blocks []Block
}

// TextSegments returns the plain-text blocks in order.
func (r *Result) TextSegments() []string {
	return r.segments(BlockText)
}

// ToolResultSegments returns the tool-result blocks in order.
func (r *Result) ToolResultSegments() []string {
	return r.segments(BlockToolResult)
}

func (r *Result) segments(kind BlockKind) []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, b := range r.Blocks {
		if b.Kind == kind {
			out = append(out, b.Text)
		}
	}
	return out
}

// Request is one completion call. A nil ToolProvider means a plain call.
type Request struct {
	Service      string
	History      []session.Message
	SystemPrompt string
	ToolProvider *service.ToolProvider
}

// Completer generates a model response.
type Completer interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}
