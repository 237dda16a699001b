package domain

// Request represents a JSON-RPC 2.0 request message.
type Request struct {
	JSONRPC string `json:"jsonrpc"` // Must be "2.0"
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`

	// SessionID is set by the HTTP transport to the SSE session the
	// request arrived on.
	SessionID string `json:"-"`
}

// IsNotification reports whether the request carries no id and therefore
// expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response represents a JSON-RPC 2.0 response message.
type Response struct {
	JSONRPC string `json:"jsonrpc"` // Must be "2.0"
	ID      any    `json:"id,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`

	// SessionID routes the response back to the originating SSE session.
	SessionID string `json:"-"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	return e.Message
}

// JSON-RPC 2.0 error codes
const (
	// Standard JSON-RPC 2.0 error codes
	ParseError     = -32700 // Invalid JSON received
	InvalidRequest = -32600 // Invalid JSON-RPC request structure
	MethodNotFound = -32601 // Unknown MCP method
	InvalidParams  = -32602 // Invalid method parameters
	InternalError  = -32603 // Server internal error

	// Application-specific error codes
	ConfigurationError  = -32001 // Settings failed validation
	AuthenticationError = -32002 // WAPI rejected the credentials
	APIError            = -32003 // WAPI returned an error
	NetworkError        = -32004 // Appliance unreachable
	RateLimitError      = -32005 // Rate limit exceeded
	ValidationFailed    = -32006 // Tool input rejected before any request was made
)
