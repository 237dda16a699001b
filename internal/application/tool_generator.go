package application

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"ddi-assistant/internal/domain"
)

// Default and maximum page sizes for list and search tools.
const (
	DefaultMaxResults = 100
	MaxResultsCap     = 1000
)

// ToolSet is the generated tool catalog together with its routing table.
type ToolSet struct {
	Tools  []domain.ToolDefinition
	Routes map[string]domain.ToolBinding
}

// Lookup returns the binding registered for a tool name.
func (t *ToolSet) Lookup(name string) (domain.ToolBinding, bool) {
	b, ok := t.Routes[name]
	return b, ok
}

// ToolGenerator turns discovered object schemas into CRUD tool
// definitions.
type ToolGenerator struct {
	readOnly bool
}

// NewToolGenerator creates a generator. In read-only mode the create,
// update and delete tools are not generated.
func NewToolGenerator(readOnly bool) *ToolGenerator {
	return &ToolGenerator{readOnly: readOnly}
}

// Generate builds the tool set for all schemas, ordered by object type and
// then by operation.
func (g *ToolGenerator) Generate(schemas map[string]domain.ObjectSchema) *ToolSet {
	objectTypes := make([]string, 0, len(schemas))
	for objectType := range schemas {
		objectTypes = append(objectTypes, objectType)
	}
	sort.Strings(objectTypes)

	set := &ToolSet{Routes: make(map[string]domain.ToolBinding, len(objectTypes)*len(domain.Operations))}
	for _, objectType := range objectTypes {
		for _, op := range domain.Operations {
			if g.readOnly && op.IsWrite() {
				continue
			}
			tool := buildTool(op, objectType, schemas[objectType])
			set.Tools = append(set.Tools, tool)
			set.Routes[tool.Name] = domain.ToolBinding{Operation: op, ObjectType: objectType}
		}
	}
	return set
}

func buildTool(op domain.Operation, objectType string, schema domain.ObjectSchema) domain.ToolDefinition {
	name := domain.ToolNameFor(op, objectType)
	switch op {
	case domain.OpList:
		return domain.ToolDefinition{
			Name:        name,
			Description: fmt.Sprintf("List %s objects from InfoBlox. Returns a list of %s records with their references and basic fields.", objectType, objectType),
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"max_results":   maxResultsProperty(),
				"return_fields": returnFieldsProperty(),
				"search_fields": {
					Type:        "object",
					Description: "Search filters as key-value pairs (e.g., {\"name\": \"example.com\"})",
				},
			}),
		}
	case domain.OpGet:
		return domain.ToolDefinition{
			Name:        name,
			Description: fmt.Sprintf("Get a specific %s object by reference. Returns detailed information about a single %s record.", objectType, objectType),
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"ref":           refProperty(objectType),
				"return_fields": returnFieldsProperty(),
			}, "ref"),
		}
	case domain.OpCreate:
		dataDesc := fmt.Sprintf("Object data for the new %s", objectType)
		if names := fieldNames(schema.Fields(), 10); len(names) > 0 {
			dataDesc += ". Common fields: " + strings.Join(names, ", ")
		}
		return domain.ToolDefinition{
			Name:        name,
			Description: fmt.Sprintf("Create a new %s object in InfoBlox. Returns the reference of the created object.", objectType),
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"data": {Type: "object", Description: dataDesc},
			}, "data"),
		}
	case domain.OpUpdate:
		return domain.ToolDefinition{
			Name:        name,
			Description: fmt.Sprintf("Update an existing %s object. Requires the object reference (_ref).", objectType),
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"ref":  refProperty(objectType),
				"data": {Type: "object", Description: "Fields to update"},
			}, "ref", "data"),
		}
	case domain.OpDelete:
		return domain.ToolDefinition{
			Name:        name,
			Description: fmt.Sprintf("Delete a %s object by reference. This operation cannot be undone.", objectType),
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"ref": refProperty(objectType),
			}, "ref"),
		}
	default:
		searchable := ExtractSearchableFields(schema.Fields())
		filterDesc := "Search filters (field: value pairs). Prefix a field with * to filter on an extensible attribute"
		if len(searchable) > 0 {
			filterDesc += ". Searchable fields: " + strings.Join(firstN(searchable, 15), ", ")
		}
		return domain.ToolDefinition{
			Name:        name,
			Description: fmt.Sprintf("Advanced search for %s objects with filters and pagination. Returns matching records.", objectType),
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"filters":       {Type: "object", Description: filterDesc},
				"max_results":   maxResultsProperty(),
				"return_fields": returnFieldsProperty(),
				"paging": {
					Type:        "integer",
					Description: "Enable paging with this page size; the response carries next_page_id",
					Minimum:     jsonschema.Ptr(1.0),
				},
				"page_id": {
					Type:        "string",
					Description: "Page id returned by a previous paged search",
				},
			}),
		}
	}
}

func objectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func maxResultsProperty() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "integer",
		Description: fmt.Sprintf("Maximum number of results to return (default: %d)", DefaultMaxResults),
		Default:     json.RawMessage(fmt.Sprint(DefaultMaxResults)),
		Minimum:     jsonschema.Ptr(1.0),
	}
}

func returnFieldsProperty() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: "Comma-separated list of fields to return",
	}
}

func refProperty(objectType string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: fmt.Sprintf("Object reference (_ref) of the %s", objectType),
	}
}

func fieldNames(fields []domain.Field, limit int) []string {
	names := make([]string, 0, limit)
	for _, f := range fields {
		if len(names) == limit {
			break
		}
		names = append(names, f.Name)
	}
	return names
}

// ExtractSearchableFields returns field names, searchable ones first. Fields
// without a searchable_by entry are still included since WAPI accepts many
// of them as filters anyway.
func ExtractSearchableFields(fields []domain.Field) []string {
	var searchable, rest []string
	for _, f := range fields {
		if f.Searchable {
			searchable = append(searchable, f.Name)
		} else {
			rest = append(rest, f.Name)
		}
	}
	return append(searchable, rest...)
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
