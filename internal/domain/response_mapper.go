package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// DefaultResponseMapper is the default implementation of ResponseMapper.
// It renders WAPI responses as indented JSON text blocks.
type DefaultResponseMapper struct{}

// NewResponseMapper creates a new instance of DefaultResponseMapper.
func NewResponseMapper() ResponseMapper {
	return &DefaultResponseMapper{}
}

// MapToToolResponse converts a decoded WAPI response to MCP format.
// Paged responses (requested with _paging=1&_return_as_object=1) get an
// extra block carrying the next page id.
func (m *DefaultResponseMapper) MapToToolResponse(apiResponse any) (*ToolResponse, error) {
	if apiResponse == nil {
		return TextResponse("{}"), nil
	}

	jsonBytes, err := json.MarshalIndent(apiResponse, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal API response: %w", err)
	}

	resp := TextResponse(string(jsonBytes))
	if info := extractPaginationInfo(apiResponse); info != "" {
		resp.Content = append(resp.Content, ContentBlock{Type: "text", Text: info})
	}
	return resp, nil
}

// extractPaginationInfo describes WAPI paging metadata, or returns "" when
// the response is not a paged result object.
func extractPaginationInfo(apiResponse any) string {
	obj, ok := apiResponse.(map[string]any)
	if !ok {
		return ""
	}
	result, hasResult := obj["result"].([]any)
	if !hasResult {
		return ""
	}
	next, _ := obj["next_page_id"].(string)
	if next == "" {
		return fmt.Sprintf("\nPagination: %d results, last page", len(result))
	}
	return fmt.Sprintf("\nPagination: %d results, next_page_id=%s", len(result), next)
}

// MapError converts an error to a JSON-RPC error.
func (m *DefaultResponseMapper) MapError(err error) *Error {
	if err == nil {
		return nil
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return mapHTTPError(httpErr)
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return &Error{
			Code:    ValidationFailed,
			Message: validationErr.Error(),
			Data:    map[string]any{"field": validationErr.Field},
		}
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr
	}

	return &Error{
		Code:    InternalError,
		Message: err.Error(),
	}
}

// HTTPError represents a non-2xx answer from the appliance.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

// Error implements the error interface for HTTPError.
func (e HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.Message, e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTPError with the given status code and message.
func NewHTTPError(statusCode int, message string, body string) HTTPError {
	return HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Body:       body,
	}
}

// mapHTTPError maps HTTP status codes to JSON-RPC error codes.
func mapHTTPError(httpErr HTTPError) *Error {
	var code int
	var message string

	switch httpErr.StatusCode {
	case http.StatusUnauthorized:
		code = AuthenticationError
		message = "Authentication failed"
	case http.StatusForbidden:
		code = AuthenticationError
		message = "Access forbidden - insufficient permissions"
	case http.StatusNotFound:
		code = APIError
		message = "Object not found"
	case http.StatusBadRequest:
		code = InvalidParams
		message = "Bad request - WAPI rejected the arguments"
	case http.StatusConflict:
		code = APIError
		message = "Conflict - object already exists"
	case http.StatusTooManyRequests:
		code = RateLimitError
		message = "Rate limit exceeded"
	case http.StatusServiceUnavailable:
		code = NetworkError
		message = "Service unavailable"
	case http.StatusGatewayTimeout:
		code = NetworkError
		message = "Gateway timeout"
	default:
		switch {
		case httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
			code = APIError
			message = fmt.Sprintf("Client error: %s", httpErr.Message)
		case httpErr.StatusCode >= 500:
			code = APIError
			message = fmt.Sprintf("Server error: %s", httpErr.Message)
		default:
			code = InternalError
			message = httpErr.Message
		}
	}

	errorData := map[string]any{
		"statusCode": httpErr.StatusCode,
		"message":    httpErr.Message,
	}
	if httpErr.Body != "" {
		errorData["body"] = httpErr.Body
	}

	return &Error{
		Code:    code,
		Message: message,
		Data:    errorData,
	}
}
