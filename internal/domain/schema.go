package domain

import (
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// CommonObjectTypes are the WAPI object types probed during schema
// discovery (WAPI 2.13.x).
var CommonObjectTypes = []string{
	"network", "networkcontainer", "networkview", "ipv6network", "ipv6networkcontainer",
	"range", "ipv6range", "fixedaddress", "ipv6fixedaddress",
	"record:a", "record:aaaa", "record:ptr", "record:cname", "record:mx",
	"record:txt", "record:srv", "record:host", "record:ns",
	"zone_auth", "zone_forward", "zone_delegated", "zone_stub",
	"view", "member", "grid", "dhcpfailover",
	"adminuser", "admingroup", "permission",
	"lease", "roaminghost", "sharednetwork", "ipv6sharednetwork",
	"dhcpoptiondefinition", "ipv6dhcpoptiondefinition",
	"extensibleattributedef", "vlanview", "vlan",
	"discovery:device", "discovery:deviceinterface",
	"networkuser", "macfilteraddress",
	"threatprotection:profile", "threatprotection:rule",
}

// ObjectSchema is the decoded body of GET <objtype>?_schema. It is kept as
// a raw map so the cache round-trips every field the appliance returns.
type ObjectSchema map[string]any

// Field is one entry of an object schema's "fields" list.
type Field struct {
	Name          string
	Type          []string
	Searchable    bool
	Supports      string
	StandardField bool
}

// Fields decodes the "fields" list, skipping malformed entries.
func (s ObjectSchema) Fields() []Field {
	raw, _ := s["fields"].([]any)
	fields := make([]Field, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		f := Field{Name: name}
		f.Supports, _ = m["supports"].(string)
		f.StandardField, _ = m["standard_field"].(bool)
		switch searchable := m["searchable_by"].(type) {
		case string:
			f.Searchable = searchable != ""
		case bool:
			f.Searchable = searchable
		}
		switch t := m["type"].(type) {
		case []any:
			for _, v := range t {
				if s, ok := v.(string); ok {
					f.Type = append(f.Type, s)
				}
			}
		case string:
			f.Type = []string{t}
		}
		fields = append(fields, f)
	}
	return fields
}

// Operation is one of the six generated CRUD verbs.
type Operation string

const (
	OpList   Operation = "list"
	OpGet    Operation = "get"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpSearch Operation = "search"
)

// Operations lists the generated operations in tool order.
var Operations = []Operation{OpList, OpGet, OpCreate, OpUpdate, OpDelete, OpSearch}

// IsWrite reports whether the operation changes appliance state.
func (o Operation) IsWrite() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

// ParseOperation converts a tool-name segment to an Operation.
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation: %s", s)
}

// ToolPrefix is the name prefix of every generated WAPI tool.
const ToolPrefix = "infoblox"

// CleanObjectType turns an object type into a tool-name segment.
func CleanObjectType(objectType string) string {
	return strings.NewReplacer(":", "_", "-", "_").Replace(objectType)
}

// ToolNameFor builds infoblox_<op>_<clean object type>.
func ToolNameFor(op Operation, objectType string) string {
	return fmt.Sprintf("%s_%s_%s", ToolPrefix, op, CleanObjectType(objectType))
}

// ToolBinding is the dispatch target of a tool name.
type ToolBinding struct {
	Operation  Operation      `json:"operation"`
	ObjectType string         `json:"object_type"`
	Params     map[string]any `json:"params,omitempty"`
}

// CustomTool is a user-defined tool from custom_tools.json. It carries its
// own binding instead of relying on the generated naming scheme.
type CustomTool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
	ToolBinding
}

// Definition returns the descriptor advertised in tools/list.
func (c CustomTool) Definition() ToolDefinition {
	return ToolDefinition{Name: c.Name, Description: c.Description, InputSchema: c.InputSchema}
}
