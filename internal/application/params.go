package application

import (
	"encoding/json"
	"errors"
	"fmt"

	"ddi-assistant/internal/domain"
)

// getStringParam extracts a string parameter from the arguments map.
// Returns an error if the parameter is required but missing or not a string.
func getStringParam(args map[string]any, name string, required bool) (string, error) {
	value, exists := args[name]
	if !exists || value == nil {
		if required {
			return "", &domain.Error{
				Code:    domain.InvalidParams,
				Message: fmt.Sprintf("missing required parameter: %s", name),
			}
		}
		return "", nil
	}

	strValue, ok := value.(string)
	if !ok {
		return "", &domain.Error{
			Code:    domain.InvalidParams,
			Message: fmt.Sprintf("parameter %s must be a string", name),
		}
	}

	return strValue, nil
}

// getIntParam extracts an integer parameter, returning def when absent.
// JSON numbers arrive as float64; fractional values are rejected.
func getIntParam(args map[string]any, name string, def int) (int, error) {
	value, exists := args[name]
	if !exists || value == nil {
		return def, nil
	}

	switch v := value.(type) {
	case float64:
		if v != float64(int(v)) {
			break
		}
		return int(v), nil
	case int:
		return v, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), nil
		}
	}
	return 0, &domain.Error{
		Code:    domain.InvalidParams,
		Message: fmt.Sprintf("parameter %s must be an integer", name),
	}
}

// getObjectParam extracts a JSON object parameter.
func getObjectParam(args map[string]any, name string, required bool) (map[string]any, error) {
	value, exists := args[name]
	if !exists || value == nil {
		if required {
			return nil, &domain.Error{
				Code:    domain.InvalidParams,
				Message: fmt.Sprintf("missing required parameter: %s", name),
			}
		}
		return nil, nil
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return nil, &domain.Error{
			Code:    domain.InvalidParams,
			Message: fmt.Sprintf("parameter %s must be an object", name),
		}
	}
	return obj, nil
}

// toolError builds an isError tool result whose text is a JSON object with
// an "error" message plus any extra fields.
func toolError(message string, extra map[string]any) *domain.ToolResponse {
	payload := map[string]any{"error": message}
	for k, v := range extra {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error":%q}`, message))
	}
	resp := domain.TextResponse(string(data))
	resp.IsError = true
	return resp
}

// errorMessage returns the user-facing text of an error.
func errorMessage(err error) string {
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) && httpErr.Body != "" {
		return httpErr.Body
	}
	return err.Error()
}
