// Package toolkit provides typed tool construction, the tool registry, and
// the safety-tier policy filter applied to it.
package toolkit

import (
	"context"
	"fmt"

	"github.com/notekit/notemcp/mcp"
)

// Handler executes one tool invocation with the raw argument payload.
type Handler func(ctx context.Context, args []byte) (*mcp.CallToolResult, error)

// Tool pairs a descriptor with its handler.
type Tool struct {
	Descriptor mcp.Tool
	Handler    Handler
}

// Provider contributes a set of tools at registry load time.
type Provider interface {
	GetTools(ctx context.Context) ([]Tool, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) ([]Tool, error)

func (f ProviderFunc) GetTools(ctx context.Context) ([]Tool, error) {
	return f(ctx)
}

// TextResult builds a successful result with a single text block.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(s)}}
}

// Errorf builds a protocol-level tool error result. Tool failures surface to
// the caller this way, never as transport errors.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{mcp.TextContent(fmt.Sprintf(format, a...))},
		IsError: true,
	}
}
