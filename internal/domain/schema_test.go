package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestObjectSchemaFields(t *testing.T) {
	schema := ObjectSchema{
		"fields": []any{
			map[string]any{"name": "network", "type": []any{"string"}, "searchable_by": "=~", "supports": "rwus", "standard_field": true},
			map[string]any{"name": "extattrs", "type": "extattr", "searchable_by": false, "supports": "rwu"},
			map[string]any{"name": "disable", "searchable_by": true},
			map[string]any{"type": []any{"string"}},
			"not a field",
		},
	}

	want := []Field{
		{Name: "network", Type: []string{"string"}, Searchable: true, Supports: "rwus", StandardField: true},
		{Name: "extattrs", Type: []string{"extattr"}, Supports: "rwu"},
		{Name: "disable", Searchable: true},
	}
	if diff := cmp.Diff(want, schema.Fields()); diff != "" {
		t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
	}

	if got := (ObjectSchema{"requested_version": "2.13.1"}).Fields(); len(got) != 0 {
		t.Errorf("expected no fields, got %v", got)
	}
}

func TestToolNameFor(t *testing.T) {
	tests := []struct {
		op         Operation
		objectType string
		want       string
	}{
		{OpList, "network", "infoblox_list_network"},
		{OpSearch, "record:a", "infoblox_search_record_a"},
		{OpDelete, "discovery:device", "infoblox_delete_discovery_device"},
		{OpGet, "zone_auth", "infoblox_get_zone_auth"},
	}
	for _, tt := range tests {
		if got := ToolNameFor(tt.op, tt.objectType); got != tt.want {
			t.Errorf("ToolNameFor(%s, %s) = %s, want %s", tt.op, tt.objectType, got, tt.want)
		}
	}
}

func TestOperation(t *testing.T) {
	for _, op := range Operations {
		want := op == OpCreate || op == OpUpdate || op == OpDelete
		if op.IsWrite() != want {
			t.Errorf("%s.IsWrite() = %v, want %v", op, op.IsWrite(), want)
		}
	}
	if _, err := ParseOperation("purge"); err == nil {
		t.Error("ParseOperation(purge) = nil error, want error")
	}
}

func TestCustomToolDefinition(t *testing.T) {
	tool := CustomTool{
		Name:        "infoblox_lab_hosts",
		Description: "Lab hosts",
		ToolBinding: ToolBinding{Operation: OpSearch, ObjectType: "record:host"},
	}
	def := tool.Definition()
	if def.Name != tool.Name || def.Description != tool.Description || def.InputSchema != nil {
		t.Errorf("unexpected definition %+v", def)
	}
}
