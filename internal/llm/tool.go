package llm

import "context"

// ToolResult is what executing a tool call against real arguments produces.
type ToolResult struct {
	Content string
	IsError bool
}

// Tool is the capability interface a tool-provider plugin implements for
// one callable tool. The orchestrator normalizes a ToolCall's Arguments to
// a map[string]any before calling Execute, whether the provider sent JSON
// text or an already-decoded object.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args map[string]any) (*ToolResult, error)
}

// ToolProvider groups the tools one plugin contributes, looked up through
// the "tool" extension point — a plugin may supply any number of tools.
type ToolProvider interface {
	Tools() []Tool
}
