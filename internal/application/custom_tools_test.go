package application

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddi-assistant/internal/domain"
	"ddi-assistant/internal/infrastructure"
)

const customToolsJSON = `[
  {
    "name": "infoblox_hq_networks",
    "description": "Networks at HQ",
    "operation": "search",
    "object_type": "network",
    "params": {"filters": {"*Site": "HQ"}}
  },
  {
    "name": "hq_networks",
    "description": "missing prefix",
    "operation": "search",
    "object_type": "network"
  },
  {
    "name": "infoblox_bad_op",
    "description": "unknown operation",
    "operation": "purge",
    "object_type": "network"
  },
  {
    "name": "infoblox_list_network",
    "description": "collides with a generated tool",
    "operation": "list",
    "object_type": "network"
  },
  {
    "name": "infoblox_hq_networks",
    "description": "duplicate",
    "operation": "list",
    "object_type": "network"
  },
  "not an object"
]`

func newTestCustomTools(t *testing.T) (*CustomToolManager, *infrastructure.CacheStore) {
	t.Helper()
	store, err := infrastructure.NewCacheStore(t.TempDir())
	require.NoError(t, err)
	return NewCustomToolManager(store, nil), store
}

func generatedNames(name string) bool {
	return name == "infoblox_list_network"
}

func TestCustomToolManager_LoadSkipsInvalidEntries(t *testing.T) {
	m, store := newTestCustomTools(t)
	require.NoError(t, os.WriteFile(store.Path(infrastructure.CustomToolsFile), []byte(customToolsJSON), 0o600))

	tools, err := m.Load(generatedNames)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "infoblox_hq_networks", tools[0].Name)
	assert.Equal(t, domain.OpSearch, tools[0].Operation)
	assert.Equal(t, map[string]any{"*Site": "HQ"}, tools[0].Params["filters"])
}

func TestCustomToolManager_LoadMissingFile(t *testing.T) {
	m, _ := newTestCustomTools(t)
	tools, err := m.Load(nil)
	require.NoError(t, err)
	assert.Empty(t, tools)
}

func TestCustomToolManager_AddAndRemove(t *testing.T) {
	m, store := newTestCustomTools(t)

	tool := domain.CustomTool{
		Name:        "infoblox_lab_hosts",
		Description: "Host records in the lab zone",
		ToolBinding: domain.ToolBinding{Operation: domain.OpSearch, ObjectType: "record:host", Params: map[string]any{"filters": map[string]any{"zone": "lab.example.com"}}},
	}
	require.NoError(t, m.Add(tool, generatedNames))
	assert.Error(t, m.Add(tool, generatedNames), "duplicate name")

	reloaded := NewCustomToolManager(store, nil)
	tools, err := reloaded.Load(generatedNames)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, tool.Name, tools[0].Name)
	assert.Equal(t, "record:host", tools[0].ObjectType)

	require.NoError(t, m.Remove(tool.Name))
	assert.Empty(t, m.Tools())
	assert.ErrorIs(t, m.Remove(tool.Name), ErrNotFound)
}

func TestValidateCustomTool(t *testing.T) {
	valid := domain.CustomTool{
		Name:        "infoblox_lab_networks",
		Description: "Lab networks",
		ToolBinding: domain.ToolBinding{Operation: domain.OpList, ObjectType: "network"},
	}
	require.NoError(t, ValidateCustomTool(valid))

	txt := domain.CustomTool{
		Name:        "infoblox_add_spf",
		Description: "Publish the SPF record",
		ToolBinding: domain.ToolBinding{Operation: domain.OpCreate, ObjectType: "record:txt", Params: map[string]any{
			"data": map[string]any{"name": "example.com", "text": "v=spf1 ip4:192.0.2.0/24 include:_spf.example.net -all; (ops)"},
		}},
	}
	require.NoError(t, ValidateCustomTool(txt), "fixed data may carry shell characters")

	tests := []struct {
		name   string
		mutate func(*domain.CustomTool)
	}{
		{"no prefix", func(c *domain.CustomTool) { c.Name = "lab_networks" }},
		{"uppercase", func(c *domain.CustomTool) { c.Name = "infoblox_Lab" }},
		{"reserved query name", func(c *domain.CustomTool) { c.Name = QueryToolName }},
		{"no description", func(c *domain.CustomTool) { c.Description = "" }},
		{"bad operation", func(c *domain.CustomTool) { c.Operation = "purge" }},
		{"bad object type", func(c *domain.CustomTool) { c.ObjectType = "network; drop" }},
		{"injection in params", func(c *domain.CustomTool) { c.Params = map[string]any{"filters": map[string]any{"name": "`id`"}} }},
		{"script in fixed data", func(c *domain.CustomTool) { c.Params = map[string]any{"data": map[string]any{"comment": "<script>"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := valid
			tt.mutate(&tool)
			assert.Error(t, ValidateCustomTool(tool))
		})
	}
}
