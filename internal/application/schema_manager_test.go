package application

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddi-assistant/internal/domain"
	"ddi-assistant/internal/infrastructure"
)

func newTestSchemaManager(t *testing.T) (*SchemaManager, *fakeWAPIClient, *infrastructure.CacheStore) {
	t.Helper()
	client := newFakeClient()
	client.schemas = map[string]map[string]any{
		"network":  testSchema("network", "comment"),
		"record:a": testSchema("name", "ipv4addr"),
	}
	store, err := infrastructure.NewCacheStore(t.TempDir())
	require.NoError(t, err)

	m := NewSchemaManager(client, store, nil, nil)
	m.candidates = []string{"network", "networkview", "record:a", "zone_auth"}
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return m, client, store
}

func TestSchemaManager_Discover(t *testing.T) {
	m, _, _ := newTestSchemaManager(t)

	schemas, err := m.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, schemas, 2)
	assert.Contains(t, schemas, "network")
	assert.Contains(t, schemas, "record:a")
	assert.NotContains(t, schemas, "zone_auth")
}

func TestSchemaManager_DiscoverCancelled(t *testing.T) {
	m, _, _ := newTestSchemaManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSchemaManager_LoadUsesCache(t *testing.T) {
	m, client, store := newTestSchemaManager(t)
	ctx := context.Background()

	first, err := m.Load(ctx, false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.True(t, first.Changed)

	hash, err := store.LoadHash()
	require.NoError(t, err)
	want, err := SchemaHash(first.Schemas)
	require.NoError(t, err)
	assert.Equal(t, want, hash)

	probes := len(client.Calls())
	second, err := m.Load(ctx, false)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.False(t, second.Changed)
	assert.Len(t, client.Calls(), probes, "cached load must not touch the appliance")

	third, err := m.Load(ctx, true)
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	assert.False(t, third.Changed)
	assert.Greater(t, len(client.Calls()), probes)
}

func TestSchemaManager_LoadRediscoversOnHashMismatch(t *testing.T) {
	m, client, store := newTestSchemaManager(t)
	ctx := context.Background()

	_, err := m.Load(ctx, false)
	require.NoError(t, err)
	require.NoError(t, store.SaveHash("stale"))

	probes := len(client.Calls())
	result, err := m.Load(ctx, false)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Greater(t, len(client.Calls()), probes)
}

func TestSchemaManager_LoadNothingDiscovered(t *testing.T) {
	m, client, _ := newTestSchemaManager(t)
	client.schemas = map[string]map[string]any{}

	_, err := m.Load(context.Background(), false)
	assert.Error(t, err)
}

func TestSchemaManager_Export(t *testing.T) {
	m, _, _ := newTestSchemaManager(t)
	dir := t.TempDir()
	t.Chdir(dir)

	schemas := map[string]domain.ObjectSchema{
		"network":     testSchema("network"),
		"grid":        {"requested_version": "2.13.1"},
		"networkview": testSchema("name"),
	}
	summary, err := m.Export("out/schemas.json", schemas)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalObjects)
	assert.Equal(t, 2, summary.ObjectsWithSchema)

	data, err := os.ReadFile(filepath.Join(dir, "out", "schemas.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "https://gm.example.com/wapi/v2.13.1", doc["wapi_url"])
	assert.Equal(t, "2026-01-02T03:04:05Z", doc["discovered_at"])

	_, err = m.Export("/etc/ddi-export.json", schemas)
	assert.Error(t, err)
}

// The hash depends only on content, never on how the map was built.
func TestProperty_SchemaHashStable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genFields := gen.SliceOfN(4, gen.Identifier())

	properties.Property("same content hashes equal, changed content differs", prop.ForAll(
		func(fields []string) bool {
			a := map[string]domain.ObjectSchema{}
			b := map[string]domain.ObjectSchema{}
			for i := range fields {
				a[fields[i]] = testSchema(fields[i])
			}
			for i := len(fields) - 1; i >= 0; i-- {
				b[fields[i]] = testSchema(fields[i])
			}
			ha, errA := SchemaHash(a)
			hb, errB := SchemaHash(b)
			if errA != nil || errB != nil || ha != hb {
				return false
			}
			b["zz_extra"] = testSchema("extra")
			hc, err := SchemaHash(b)
			return err == nil && hc != ha
		},
		genFields,
	))

	properties.TestingRun(t)
}
