package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func TestRequestIsNotification(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), &req); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !req.IsNotification() {
		t.Error("request without id should be a notification")
	}

	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":0,"method":"ping"}`), &req); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if req.IsNotification() {
		t.Error("id 0 is a valid request id")
	}
}

func TestResponseWireFormat(t *testing.T) {
	resp := &Response{
		JSONRPC:   "2.0",
		ID:        "abc",
		Error:     &Error{Code: ValidationFailed, Message: "network: invalid"},
		SessionID: "session-1",
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	got := string(data)
	if strings.Contains(got, "session") {
		t.Errorf("session id must not be serialized: %s", got)
	}
	if strings.Contains(got, `"result"`) {
		t.Errorf("error responses must omit result: %s", got)
	}
	if !strings.Contains(got, `"code":-32006`) {
		t.Errorf("unexpected error encoding: %s", got)
	}

	var asErr error = resp.Error
	var rpcErr *Error
	if !errors.As(asErr, &rpcErr) || rpcErr.Error() != "network: invalid" {
		t.Errorf("*Error does not behave as an error: %v", asErr)
	}
}

func TestToolDefinitionWireFormat(t *testing.T) {
	def := ToolDefinition{
		Name:        "infoblox_list_network",
		Description: "List network objects",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"max_results": {Type: "integer"},
			},
		},
	}
	data, err := json.Marshal(def)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	schema, ok := decoded["inputSchema"].(map[string]any)
	if !ok {
		t.Fatalf("expected inputSchema object, got %s", data)
	}
	if schema["type"] != "object" {
		t.Errorf("expected object schema, got %v", schema["type"])
	}

	resp := TextResponse("ok")
	data, _ = json.Marshal(resp)
	if string(data) != `{"content":[{"type":"text","text":"ok"}]}` {
		t.Errorf("unexpected tool response encoding: %s", data)
	}
}
