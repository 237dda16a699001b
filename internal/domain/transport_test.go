package domain

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// TestStdioTransport_ReadValidMessage tests reading a valid JSON-RPC message from stdin.
func TestStdioTransport_ReadValidMessage(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}` + "\n"
	transport := NewStdioTransportWithIO(strings.NewReader(input), &bytes.Buffer{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := transport.Start(ctx); err != nil {
		t.Fatalf("Failed to start transport: %v", err)
	}

	select {
	case req := <-transport.Receive():
		if req == nil {
			t.Fatal("Received nil request")
		}
		if req.Method != "initialize" {
			t.Errorf("Expected method 'initialize', got %s", req.Method)
		}
		if req.ID != float64(1) { // JSON unmarshals numbers as float64
			t.Errorf("Expected ID 1, got %v", req.ID)
		}
		if req.IsNotification() {
			t.Error("Request with an id must not be a notification")
		}
	case <-ctx.Done():
		t.Fatal("Timeout waiting for request")
	}
}

// TestStdioTransport_SkipsBadLines tests that malformed lines produce error
// responses and do not stop the read loop.
func TestStdioTransport_SkipsBadLines(t *testing.T) {
	input := "\n" +
		`{not json}` + "\n" +
		`{"jsonrpc":"1.0","id":7,"method":"ping"}` + "\n" +
		`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`
	writer := &bytes.Buffer{}
	transport := NewStdioTransportWithIO(strings.NewReader(input), writer, nil)

	if err := transport.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start transport: %v", err)
	}

	var methods []string
	for req := range transport.Receive() {
		methods = append(methods, req.Method)
	}
	if got := strings.Join(methods, ","); got != "notifications/initialized,tools/list" {
		t.Errorf("Unexpected requests: %s", got)
	}

	lines := strings.Split(strings.TrimSpace(writer.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 error responses, got %d: %q", len(lines), writer.String())
	}
	codes := make([]int, 0, len(lines))
	for _, line := range lines {
		var resp Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("Response is not JSON: %v", err)
		}
		if resp.Error == nil {
			t.Fatalf("Expected error response, got %s", line)
		}
		codes = append(codes, resp.Error.Code)
	}
	if codes[0] != ParseError || codes[1] != InvalidRequest {
		t.Errorf("Expected codes [%d %d], got %v", ParseError, InvalidRequest, codes)
	}
}

// TestStdioTransport_SendResponse tests that responses are written as one
// line each with the version filled in.
func TestStdioTransport_SendResponse(t *testing.T) {
	writer := &bytes.Buffer{}
	transport := NewStdioTransportWithIO(strings.NewReader(""), writer, nil)

	err := transport.Send(&Response{ID: 1, Result: map[string]any{"text": "line one\nline two"}})
	if err != nil {
		t.Fatalf("Failed to send response: %v", err)
	}

	out := writer.String()
	if strings.Count(out, "\n") != 1 || !strings.HasSuffix(out, "\n") {
		t.Errorf("Expected exactly one newline-terminated line, got %q", out)
	}
	if !strings.Contains(out, `"jsonrpc":"2.0"`) {
		t.Errorf("Expected jsonrpc version in %s", out)
	}
}

// TestStdioTransport_Close tests that a closed transport refuses to start or send.
func TestStdioTransport_Close(t *testing.T) {
	transport := NewStdioTransportWithIO(strings.NewReader(""), &bytes.Buffer{}, nil)
	if err := transport.Close(); err != nil {
		t.Fatalf("Failed to close transport: %v", err)
	}
	if err := transport.Start(context.Background()); err == nil {
		t.Error("Expected Start to fail after Close")
	}
	if err := transport.Send(&Response{ID: 1}); err == nil {
		t.Error("Expected Send to fail after Close")
	}
}

// TestStdioTransport_ReadLoopExits tests that the read loop goroutine ends at EOF.
func TestStdioTransport_ReadLoopExits(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	input := `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n"
	transport := NewStdioTransportWithIO(strings.NewReader(input), &bytes.Buffer{}, nil)
	if err := transport.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start transport: %v", err)
	}
	for range transport.Receive() {
	}
}

// sseClient reads events from an open SSE stream.
type sseClient struct {
	resp   *http.Response
	reader *bufio.Reader
}

func openSSE(t *testing.T, addr string) *sseClient {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/mcp")
	if err != nil {
		t.Fatalf("Failed to open SSE stream: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected text/event-stream, got %s", ct)
	}
	return &sseClient{resp: resp, reader: bufio.NewReader(resp.Body)}
}

// next returns the event name and data of the next event, skipping
// keep-alive comments.
func (c *sseClient) next(t *testing.T) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			t.Fatalf("SSE stream ended: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func startHTTPTransport(t *testing.T) *HTTPTransport {
	t.Helper()
	transport := NewHTTPTransport("127.0.0.1", 0, nil)
	transport.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ddi_up 1\n")
	}))
	if err := transport.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start HTTP transport: %v", err)
	}
	t.Cleanup(func() { transport.Close() })
	return transport
}

// TestHTTPTransport_SessionRoundTrip tests the SSE endpoint event, request
// delivery and response routing to the originating session.
func TestHTTPTransport_SessionRoundTrip(t *testing.T) {
	transport := startHTTPTransport(t)
	stream := openSSE(t, transport.Addr())

	event, endpoint := stream.next(t)
	if event != "endpoint" || !strings.HasPrefix(endpoint, "/mcp/message?sessionId=") {
		t.Fatalf("Expected endpoint event, got %s %s", event, endpoint)
	}
	sessionID := strings.TrimPrefix(endpoint, "/mcp/message?sessionId=")

	resp, err := http.Post("http://"+transport.Addr()+endpoint, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	if err != nil {
		t.Fatalf("Failed to post message: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	var req *Request
	select {
	case req = <-transport.Receive():
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for request")
	}
	if req.SessionID != sessionID {
		t.Errorf("Expected session %s, got %s", sessionID, req.SessionID)
	}

	if err := transport.Send(&Response{ID: req.ID, Result: map[string]any{"tools": []any{}}, SessionID: req.SessionID}); err != nil {
		t.Fatalf("Failed to send response: %v", err)
	}
	event, data := stream.next(t)
	if event != "message" {
		t.Fatalf("Expected message event, got %s", event)
	}
	var got Response
	if err := json.Unmarshal([]byte(data), &got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.ID != float64(1) || got.JSONRPC != "2.0" {
		t.Errorf("Unexpected response %+v", got)
	}

	if err := transport.Send(&Response{ID: 2, SessionID: "gone"}); err == nil {
		t.Error("Expected an error for an unknown session")
	}
}

// TestHTTPTransport_MessageErrors tests rejected posts to the message endpoint.
func TestHTTPTransport_MessageErrors(t *testing.T) {
	transport := startHTTPTransport(t)
	stream := openSSE(t, transport.Addr())
	_, endpoint := stream.next(t)
	base := "http://" + transport.Addr()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "/mcp/message?sessionId=x", "", http.StatusMethodNotAllowed},
		{"missing session", http.MethodPost, "/mcp/message", "{}", http.StatusBadRequest},
		{"unknown session", http.MethodPost, "/mcp/message?sessionId=nope", "{}", http.StatusBadRequest},
		{"malformed json", http.MethodPost, endpoint, "{oops", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, base+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("Failed to build request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}

	// The malformed post is answered on the stream with a parse error.
	event, data := stream.next(t)
	if event != "message" || !strings.Contains(data, fmt.Sprint(ParseError)) {
		t.Errorf("Expected parse error event, got %s %s", event, data)
	}
}

// TestHTTPTransport_ExtraHandlers tests that mounted handlers are served.
func TestHTTPTransport_ExtraHandlers(t *testing.T) {
	transport := startHTTPTransport(t)

	resp, err := http.Get("http://" + transport.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("Failed to get /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

// TestHTTPTransport_Close tests shutdown: the request channel closes, open
// streams end and later sends fail.
func TestHTTPTransport_Close(t *testing.T) {
	transport := startHTTPTransport(t)
	stream := openSSE(t, transport.Addr())
	stream.next(t)

	if err := transport.Close(); err != nil {
		t.Fatalf("Failed to close transport: %v", err)
	}
	if _, ok := <-transport.Receive(); ok {
		t.Error("Expected request channel to be closed")
	}
	if err := transport.Send(&Response{ID: 1}); err == nil {
		t.Error("Expected Send to fail after Close")
	}
	if err := transport.Start(context.Background()); err == nil {
		t.Error("Expected Start to fail after Close")
	}
	if err := transport.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

// TestHTTPTransport_PortAlreadyInUse tests that a bind failure is reported.
func TestHTTPTransport_PortAlreadyInUse(t *testing.T) {
	first := startHTTPTransport(t)
	_, port, _ := strings.Cut(first.Addr(), ":")

	var portNum int
	fmt.Sscan(port, &portNum)
	second := NewHTTPTransport("127.0.0.1", portNum, nil)
	err := second.Start(context.Background())
	if err == nil {
		second.Close()
		t.Fatal("Expected an error when the port is in use")
	}
	if !strings.Contains(err.Error(), "failed to listen") {
		t.Errorf("Unexpected error: %v", err)
	}
}
