package infrastructure

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ddi-assistant/internal/domain"
)

// Cache file names inside the cache directory.
const (
	SchemasFile     = "schemas.json"
	ToolsFile       = "tools.json"
	CustomToolsFile = "custom_tools.json"
	SchemaHashFile  = "schema_hash.txt"
)

// ErrNotCached is returned when a cache file does not exist yet.
var ErrNotCached = errors.New("not cached")

// CacheStore persists discovered schemas, generated tools, custom tools and
// the schema hash as flat files in one directory.
type CacheStore struct {
	dir string
	mu  sync.RWMutex
}

// NewCacheStore creates the directory if needed.
func NewCacheStore(dir string) (*CacheStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &CacheStore{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *CacheStore) Dir() string {
	return s.dir
}

// Path returns the absolute path of a cache file.
func (s *CacheStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// LoadSchemas reads schemas.json.
func (s *CacheStore) LoadSchemas() (map[string]domain.ObjectSchema, error) {
	var schemas map[string]domain.ObjectSchema
	if err := s.readJSON(SchemasFile, &schemas); err != nil {
		return nil, err
	}
	return schemas, nil
}

// SaveSchemas writes schemas.json.
func (s *CacheStore) SaveSchemas(schemas map[string]domain.ObjectSchema) error {
	return s.writeJSON(SchemasFile, schemas)
}

// LoadTools reads tools.json.
func (s *CacheStore) LoadTools() ([]domain.ToolDefinition, error) {
	var tools []domain.ToolDefinition
	if err := s.readJSON(ToolsFile, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// SaveTools writes tools.json.
func (s *CacheStore) SaveTools(tools []domain.ToolDefinition) error {
	return s.writeJSON(ToolsFile, tools)
}

// LoadCustomTools reads custom_tools.json as raw entries so that one
// malformed tool does not hide the others.
func (s *CacheStore) LoadCustomTools() ([]json.RawMessage, error) {
	var raw []json.RawMessage
	if err := s.readJSON(CustomToolsFile, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// SaveCustomTools writes custom_tools.json.
func (s *CacheStore) SaveCustomTools(tools []domain.CustomTool) error {
	return s.writeJSON(CustomToolsFile, tools)
}

// LoadHash reads schema_hash.txt.
func (s *CacheStore) LoadHash() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path(SchemaHashFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotCached
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", SchemaHashFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveHash writes schema_hash.txt.
func (s *CacheStore) SaveHash(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.Path(SchemaHashFile), []byte(hash))
}

func (s *CacheStore) readJSON(name string, v any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotCached
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func (s *CacheStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.Path(name), data)
}

// writeFileAtomic replaces path through a temp file in the same directory.
// The temp file is created 0600.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
