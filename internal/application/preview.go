package application

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"ddi-assistant/internal/domain"
)

// APICall is the WAPI request a tool call resolves to. It is built and
// validated before anything is sent, so it doubles as the dry-run preview.
type APICall struct {
	Tool        string           `json:"tool"`
	Operation   domain.Operation `json:"operation"`
	ObjectType  string           `json:"object_type"`
	Method      string           `json:"method"`
	Path        string           `json:"path"`
	Query       url.Values       `json:"query,omitempty"`
	Body        map[string]any   `json:"body,omitempty"`
	Description string           `json:"description"`
}

// IsWrite reports whether the call changes appliance state.
func (c *APICall) IsWrite() bool {
	return c.Method != http.MethodGet
}

// Endpoint returns the path with its query string, as shown in previews.
func (c *APICall) Endpoint() string {
	if q := queryString(c.Query); q != "" {
		return c.Path + "?" + q
	}
	return c.Path
}

// Curl renders an equivalent curl command. The password is left as the
// $INFOBLOX_PASSWORD shell variable.
func (c *APICall) Curl(baseURL, username string) string {
	target := strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimLeft(c.Path, "/")
	if q := queryString(c.Query); q != "" {
		target += "?" + q
	}

	parts := []string{
		"curl -X " + c.Method,
		fmt.Sprintf("-u %s:$INFOBLOX_PASSWORD", username),
	}
	if len(c.Body) > 0 {
		data, err := json.MarshalIndent(c.Body, "", "  ")
		if err == nil {
			parts = append(parts, "-H 'Content-Type: application/json'", fmt.Sprintf("-d '%s'", data))
		}
	}
	parts = append(parts, fmt.Sprintf("'%s'", target))
	return strings.Join(parts, " \\\n  ")
}

// Summary is a short multi-line preview for confirmation prompts.
func (c *APICall) Summary(wapiVersion, username string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", c.Description)
	fmt.Fprintf(&sb, "  Method:    %s\n", c.Method)
	fmt.Fprintf(&sb, "  Endpoint:  /wapi/%s/%s\n", wapiVersion, strings.TrimLeft(c.Path, "/"))
	fmt.Fprintf(&sb, "  Username:  %s\n", username)
	if q := queryString(c.Query); q != "" {
		fmt.Fprintf(&sb, "  Params:    %s\n", q)
	}
	if len(c.Body) > 0 {
		data, _ := json.Marshal(c.Body)
		fmt.Fprintf(&sb, "  Data:      %s\n", data)
	}
	return sb.String()
}

// queryString joins parameters in key order without percent-encoding, for
// display only.
func queryString(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		for _, v := range q[k] {
			if v == "" {
				pairs = append(pairs, k)
				continue
			}
			pairs = append(pairs, k+"="+v)
		}
	}
	return strings.Join(pairs, "&")
}

func describeCall(op domain.Operation, objectType string) string {
	switch op {
	case domain.OpList:
		return fmt.Sprintf("List %s objects", objectType)
	case domain.OpGet:
		return fmt.Sprintf("Get %s object", objectType)
	case domain.OpCreate:
		return fmt.Sprintf("Create %s object", objectType)
	case domain.OpUpdate:
		return fmt.Sprintf("Update %s object", objectType)
	case domain.OpDelete:
		return fmt.Sprintf("Delete %s object (cannot be undone)", objectType)
	case domain.OpSearch:
		return fmt.Sprintf("Search %s objects", objectType)
	default:
		return fmt.Sprintf("Query %s objects", objectType)
	}
}
