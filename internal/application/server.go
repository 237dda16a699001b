package application

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"ddi-assistant/internal/domain"
)

// ProtocolVersion is the MCP protocol revision the server speaks.
const ProtocolVersion = "2024-11-05"

// ServerInfo names the server in the initialize result.
type ServerInfo struct {
	Name    string
	Version string
}

// Server is the main MCP server implementation.
// It reads JSON-RPC requests from the transport, answers the protocol
// methods itself and hands tools/call to the router.
type Server struct {
	transport domain.Transport
	router    *RequestRouter
	mapper    domain.ResponseMapper
	info      ServerInfo
	logger    *StructuredLogger
	done      chan struct{}
}

// NewServer creates a new MCP server instance.
func NewServer(transport domain.Transport, router *RequestRouter, info ServerInfo, logger *zap.Logger) *Server {
	return &Server{
		transport: transport,
		router:    router,
		mapper:    domain.NewResponseMapper(),
		info:      info,
		logger:    NewStructuredLogger(logger),
		done:      make(chan struct{}),
	}
}

// Start begins the server operation.
// It starts the transport layer and begins processing incoming requests.
func (s *Server) Start(ctx context.Context) error {
	if err := s.transport.Start(ctx); err != nil {
		s.logger.LogError("failed to start transport", err, nil)
		return fmt.Errorf("failed to start transport: %w", err)
	}

	s.logger.LogInfo("server started", map[string]any{
		"tools": len(s.router.ListAllTools()),
	})

	go s.processRequests(ctx)

	return nil
}

// Done is closed once the request loop has stopped, either because ctx was
// cancelled or because the transport closed its channel (stdin EOF).
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// processRequests continuously processes incoming JSON-RPC requests.
func (s *Server) processRequests(ctx context.Context) {
	defer close(s.done)
	reqChan := s.transport.Receive()

	for {
		select {
		case <-ctx.Done():
			s.logger.LogInfo("server shutting down", nil)
			return
		case req, ok := <-reqChan:
			if !ok {
				return
			}
			s.handleRequest(ctx, req)
		}
	}
}

// handleRequest processes a single JSON-RPC request.
func (s *Server) handleRequest(ctx context.Context, req *domain.Request) {
	s.logger.LogDebug("received request", map[string]any{
		"method":     req.Method,
		"request_id": req.ID,
	})

	if err := s.validateRequest(req); err != nil {
		s.sendErrorResponse(req, domain.InvalidRequest, "Invalid Request", err.Error())
		return
	}

	if req.IsNotification() {
		if req.Method != "notifications/initialized" {
			s.logger.LogDebug("ignoring notification", map[string]any{"method": req.Method})
		}
		return
	}

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result = s.handleInitialize()
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = map[string]any{"tools": s.router.ListAllTools()}
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req)
	case "prompts/list":
		result = map[string]any{"prompts": ListPrompts()}
	case "prompts/get":
		result, err = s.handlePromptsGet(req)
	default:
		s.sendErrorResponse(req, domain.MethodNotFound, "Method not found", fmt.Sprintf("unknown method: %s", req.Method))
		return
	}

	if err != nil {
		s.logger.LogError("request processing failed", err, map[string]any{
			"method":     req.Method,
			"request_id": req.ID,
		})
		s.send(&domain.Response{JSONRPC: "2.0", ID: req.ID, Error: s.mapper.MapError(err), SessionID: req.SessionID})
		return
	}

	s.send(&domain.Response{JSONRPC: "2.0", ID: req.ID, Result: result, SessionID: req.SessionID})
}

// validateRequest validates the basic structure of a JSON-RPC request.
func (s *Server) validateRequest(req *domain.Request) error {
	if req.JSONRPC != "2.0" {
		return fmt.Errorf("invalid jsonrpc version: %s", req.JSONRPC)
	}

	if req.Method == "" {
		return fmt.Errorf("method is required")
	}

	return nil
}

// handleInitialize handles the MCP initialize method.
func (s *Server) handleInitialize() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools":   map[string]any{},
			"prompts": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.info.Name,
			"version": s.info.Version,
		},
	}
}

// handleToolsCall routes a tools/call to its handler.
func (s *Server) handleToolsCall(ctx context.Context, req *domain.Request) (*domain.ToolResponse, error) {
	var toolReq domain.ToolRequest
	if err := decodeParams(req.Params, &toolReq); err != nil {
		return nil, err
	}
	if toolReq.Name == "" {
		return nil, &domain.Error{Code: domain.InvalidParams, Message: "tool name is required"}
	}
	if toolReq.Arguments == nil {
		toolReq.Arguments = make(map[string]any)
	}

	return s.router.Route(ctx, &toolReq)
}

func (s *Server) handlePromptsGet(req *domain.Request) (*domain.PromptResult, error) {
	var params struct {
		Name string `json:"name"`
	}
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	return GetPrompt(params.Name)
}

// decodeParams converts the generic params value into v.
func decodeParams(params any, v any) error {
	if params == nil {
		return &domain.Error{Code: domain.InvalidParams, Message: "params is required"}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return &domain.Error{Code: domain.InvalidParams, Message: fmt.Sprintf("failed to marshal params: %v", err)}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &domain.Error{Code: domain.InvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// sendErrorResponse sends a JSON-RPC error response.
func (s *Server) sendErrorResponse(req *domain.Request, code int, message string, data any) {
	s.send(&domain.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error: &domain.Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		SessionID: req.SessionID,
	})
}

func (s *Server) send(response *domain.Response) {
	if err := s.transport.Send(response); err != nil {
		s.logger.LogError("failed to send response", err, map[string]any{
			"request_id": response.ID,
		})
	}
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	s.logger.LogInfo("closing server", nil)
	return s.transport.Close()
}

// StructuredLogger logs messages with a context map of fields.
type StructuredLogger struct {
	logger *zap.Logger
}

// NewStructuredLogger wraps logger; nil gives a no-op logger.
func NewStructuredLogger(logger *zap.Logger) *StructuredLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StructuredLogger{logger: logger.Named("server")}
}

// LogDebug logs a debug message with context.
func (l *StructuredLogger) LogDebug(message string, context map[string]any) {
	l.logger.Debug(message, fields(nil, context)...)
}

// LogInfo logs an informational message with context.
func (l *StructuredLogger) LogInfo(message string, context map[string]any) {
	l.logger.Info(message, fields(nil, context)...)
}

// LogError logs an error message with context.
func (l *StructuredLogger) LogError(message string, err error, context map[string]any) {
	l.logger.Error(message, fields(err, context)...)
}

func fields(err error, context map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(context)+1)
	if err != nil {
		out = append(out, zap.Error(err))
	}
	for k, v := range context {
		out = append(out, zap.Any(k, v))
	}
	return out
}
