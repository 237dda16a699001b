package application

import (
	"context"
	"fmt"
	"strings"

	"ddi-assistant/internal/domain"
)

// RequestRouter dispatches MCP tool requests to the appropriate ToolHandler.
// Handlers are registered by tool-name prefix ("infoblox", "ddi") and are
// kept in registration order so tools/list is stable.
type RequestRouter struct {
	handlers map[string]domain.ToolHandler
	order    []string
}

// NewRequestRouter creates a new RequestRouter with the provided handlers.
// Handlers are registered by their ToolName() identifier; a later handler
// with the same identifier replaces the earlier one.
func NewRequestRouter(handlers ...domain.ToolHandler) *RequestRouter {
	router := &RequestRouter{
		handlers: make(map[string]domain.ToolHandler),
	}

	for _, handler := range handlers {
		name := handler.ToolName()
		if _, exists := router.handlers[name]; !exists {
			router.order = append(router.order, name)
		}
		router.handlers[name] = handler
	}

	return router
}

// Route dispatches a tool request to the appropriate handler based on the tool name.
// Tool names follow the pattern: <handler>_<rest> (e.g., infoblox_list_network, ddi_ip_info).
func (r *RequestRouter) Route(ctx context.Context, req *domain.ToolRequest) (*domain.ToolResponse, error) {
	handlerName := r.extractHandlerName(req.Name)
	if handlerName == "" {
		return nil, &domain.Error{
			Code:    domain.InvalidParams,
			Message: fmt.Sprintf("invalid tool name format: %s (expected format: <handler>_<operation>)", req.Name),
		}
	}

	handler, exists := r.handlers[handlerName]
	if !exists {
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: fmt.Sprintf("unknown tool: %s (no handler registered for '%s')", req.Name, handlerName),
		}
	}

	return handler.Handle(ctx, req)
}

// ListAllTools aggregates tool definitions from all registered handlers,
// in registration order.
func (r *RequestRouter) ListAllTools() []domain.ToolDefinition {
	var allTools []domain.ToolDefinition
	for _, name := range r.order {
		allTools = append(allTools, r.handlers[name].ListTools()...)
	}
	return allTools
}

// extractHandlerName returns the part of a tool name before the first
// underscore: "infoblox_get_network" -> "infoblox".
func (r *RequestRouter) extractHandlerName(toolName string) string {
	idx := strings.Index(toolName, "_")
	if idx == -1 {
		return ""
	}
	return toolName[:idx]
}
