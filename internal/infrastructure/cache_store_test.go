package infrastructure

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ddi-assistant/internal/domain"
)

func TestCacheStore_MissingFiles(t *testing.T) {
	store, err := NewCacheStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	_, err = store.LoadSchemas()
	assert.True(t, errors.Is(err, ErrNotCached))
	_, err = store.LoadTools()
	assert.True(t, errors.Is(err, ErrNotCached))
	_, err = store.LoadCustomTools()
	assert.True(t, errors.Is(err, ErrNotCached))
	_, err = store.LoadHash()
	assert.True(t, errors.Is(err, ErrNotCached))
}

func TestCacheStore_SchemasRoundTrip(t *testing.T) {
	store, err := NewCacheStore(t.TempDir())
	require.NoError(t, err)

	schemas := map[string]domain.ObjectSchema{
		"network": {
			"type":   "network",
			"fields": []any{map[string]any{"name": "network", "searchable_by": "=~"}},
		},
	}
	require.NoError(t, store.SaveSchemas(schemas))

	got, err := store.LoadSchemas()
	require.NoError(t, err)
	if diff := cmp.Diff(schemas, got); diff != "" {
		t.Errorf("schemas mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(store.Path(SchemasFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCacheStore_ToolsAndHash(t *testing.T) {
	store, err := NewCacheStore(t.TempDir())
	require.NoError(t, err)

	tools := []domain.ToolDefinition{{
		Name:        "infoblox_list_network",
		Description: "List network objects from InfoBlox.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}}
	require.NoError(t, store.SaveTools(tools))
	got, err := store.LoadTools()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "infoblox_list_network", got[0].Name)
	assert.Equal(t, "object", got[0].InputSchema.Type)

	require.NoError(t, store.SaveHash("abc123\n"))
	hash, err := store.LoadHash()
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)
}

func TestCacheStore_CorruptFile(t *testing.T) {
	store, err := NewCacheStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(SchemasFile), []byte("{not json"), 0o600))

	_, err = store.LoadSchemas()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotCached))
	assert.Contains(t, err.Error(), "failed to parse schemas.json")
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	path := filepath.Join(dir, CustomToolsFile)

	var calls atomic.Int32
	changed := make(chan struct{}, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func() {
		calls.Add(1)
		changed <- struct{}{}
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.json"), []byte("[]"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"x"}]`), 0o600))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("onChange was not called")
	}

	require.NoError(t, w.Close())
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestWatcher_CloseAfterFailedStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "missing", CustomToolsFile)
	w, err := NewWatcher(path, 20*time.Millisecond, func() {}, nil)
	require.NoError(t, err)
	require.Error(t, w.Start(context.Background()))

	closed := make(chan error, 1)
	go func() { closed <- w.Close() }()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked after a failed Start")
	}
}
