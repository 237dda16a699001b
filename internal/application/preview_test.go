package application

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddi-assistant/internal/domain"
)

const baseURL = "https://gm.example.com/wapi/v2.13.1"

func TestAPICall_CurlGet(t *testing.T) {
	call := &APICall{
		Method: http.MethodGet,
		Path:   "network",
		Query:  url.Values{"_max_results": {"10"}, "*Site": {"HQ"}},
	}

	want := "curl -X GET \\\n" +
		"  -u admin:$INFOBLOX_PASSWORD \\\n" +
		"  'https://gm.example.com/wapi/v2.13.1/network?*Site=HQ&_max_results=10'"
	assert.Equal(t, want, call.Curl(baseURL, "admin"))
}

func TestAPICall_CurlPost(t *testing.T) {
	call := &APICall{
		Method: http.MethodPost,
		Path:   "network",
		Body:   map[string]any{"network": "10.0.0.0/24"},
	}

	want := "curl -X POST \\\n" +
		"  -u admin:$INFOBLOX_PASSWORD \\\n" +
		"  -H 'Content-Type: application/json' \\\n" +
		"  -d '{\n  \"network\": \"10.0.0.0/24\"\n}' \\\n" +
		"  'https://gm.example.com/wapi/v2.13.1/network'"
	assert.Equal(t, want, call.Curl(baseURL+"/", "admin"))
}

func TestAPICall_Summary(t *testing.T) {
	h, client := newTestHandler(t, HandlerOptions{})
	call, err := h.Preview("infoblox_delete_network", map[string]any{"ref": networkRef})
	require.NoError(t, err)
	assert.Empty(t, client.Calls(), "preview must not send anything")

	assert.True(t, call.IsWrite())
	assert.Equal(t, domain.OpDelete, call.Operation)
	assert.Equal(t, networkRef, call.Endpoint())

	summary := call.Summary("v2.13.1", "admin")
	assert.Contains(t, summary, "Delete network object (cannot be undone)")
	assert.Contains(t, summary, "Method:    DELETE")
	assert.Contains(t, summary, "Endpoint:  /wapi/v2.13.1/"+networkRef)
	assert.Contains(t, summary, "Username:  admin")
}

func TestAPICall_EndpointWithQuery(t *testing.T) {
	h, _ := newTestHandler(t, HandlerOptions{})
	call, err := h.Preview("infoblox_list_network", map[string]any{"return_fields": "network,comment"})
	require.NoError(t, err)

	assert.False(t, call.IsWrite())
	assert.Equal(t, "network?_max_results=100&_return_fields=network,comment", call.Endpoint())
}
