package application

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"ddi-assistant/internal/domain"
)

type recordedCall struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// fakeWAPIClient is an in-memory domain.WAPIClient. GET answers come from
// respond; schemas backs ObjectSchema and ObjectExists.
type fakeWAPIClient struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond func(path string, query url.Values) (any, error)
	schemas map[string]map[string]any
	err     error
}

func newFakeClient() *fakeWAPIClient {
	return &fakeWAPIClient{schemas: map[string]map[string]any{}}
}

func (f *fakeWAPIClient) record(method, path string, query url.Values, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{Method: method, Path: path, Query: query, Body: body})
}

func (f *fakeWAPIClient) Calls() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeWAPIClient) BaseURL() string {
	return "https://gm.example.com/wapi/v2.13.1"
}

func (f *fakeWAPIClient) Get(ctx context.Context, path string, query url.Values) (any, error) {
	f.record(http.MethodGet, path, query, nil)
	if f.err != nil {
		return nil, f.err
	}
	if f.respond != nil {
		return f.respond(path, query)
	}
	return []any{}, nil
}

func (f *fakeWAPIClient) Post(ctx context.Context, path string, body any) (any, error) {
	f.record(http.MethodPost, path, nil, body)
	if f.err != nil {
		return nil, f.err
	}
	return path + "/ZG5zLm5ldHdvcmskMTAuMC4wLjAvMjQvMA:10.0.0.0/24/default", nil
}

func (f *fakeWAPIClient) Put(ctx context.Context, path string, body any) (any, error) {
	f.record(http.MethodPut, path, nil, body)
	if f.err != nil {
		return nil, f.err
	}
	return path, nil
}

func (f *fakeWAPIClient) Delete(ctx context.Context, path string) (any, error) {
	f.record(http.MethodDelete, path, nil, nil)
	if f.err != nil {
		return nil, f.err
	}
	return path, nil
}

func (f *fakeWAPIClient) ObjectSchema(ctx context.Context, objectType string) (map[string]any, error) {
	f.record(http.MethodGet, objectType, url.Values{"_schema": {""}}, nil)
	f.mu.Lock()
	defer f.mu.Unlock()
	schema, ok := f.schemas[objectType]
	if !ok {
		return nil, domain.NewHTTPError(http.StatusBadRequest, "Bad Request", fmt.Sprintf("Unknown object type (%s)", objectType))
	}
	return schema, nil
}

func (f *fakeWAPIClient) ObjectExists(ctx context.Context, objectType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.schemas[objectType]
	return ok
}

// testSchema builds a minimal _schema answer with the given field names;
// the first one is searchable.
func testSchema(fields ...string) map[string]any {
	list := make([]any, 0, len(fields))
	for i, name := range fields {
		field := map[string]any{"name": name, "type": []any{"string"}, "supports": "rwus"}
		if i == 0 {
			field["searchable_by"] = "=~"
		}
		list = append(list, field)
	}
	return map[string]any{"fields": list, "requested_version": "2.13.1"}
}
