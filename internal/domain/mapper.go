package domain

// ResponseMapper converts WAPI responses to MCP tool responses.
type ResponseMapper interface {
	// MapToToolResponse converts a decoded WAPI response to MCP format.
	// Returns an error if transformation fails.
	MapToToolResponse(apiResponse any) (*ToolResponse, error)

	// MapError converts an error to a JSON-RPC error, mapping HTTP status
	// codes from the appliance and validation failures to their codes.
	MapError(err error) *Error
}
