package domain

import (
	"context"
)

// ToolHandler processes requests for one family of tools.
// The generated WAPI tools and the operator lookup tools each have their
// own handler, registered with the router by prefix.
type ToolHandler interface {
	// Handle processes an MCP tool call request.
	// Returns the tool response or an error if processing fails.
	Handle(ctx context.Context, req *ToolRequest) (*ToolResponse, error)

	// ListTools returns available tools for this handler.
	ListTools() []ToolDefinition

	// ToolName returns the tool-name prefix served by this handler
	// (e.g. "infoblox" for infoblox_list_network).
	ToolName() string
}
