package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"ddi-assistant/internal/domain"
	"ddi-assistant/internal/infrastructure"
	"ddi-assistant/internal/logging"
)

// discoveryConcurrency bounds the number of object types probed at once.
const discoveryConcurrency = 4

// SchemaStore persists discovered schemas and their hash.
type SchemaStore interface {
	LoadSchemas() (map[string]domain.ObjectSchema, error)
	SaveSchemas(schemas map[string]domain.ObjectSchema) error
	LoadHash() (string, error)
	SaveHash(hash string) error
}

// LoadResult reports where a schema set came from.
type LoadResult struct {
	Schemas   map[string]domain.ObjectSchema
	FromCache bool
	Changed   bool
}

// ExportSummary describes a written explorer export.
type ExportSummary struct {
	Path              string `json:"path"`
	TotalObjects      int    `json:"total_objects"`
	ObjectsWithSchema int    `json:"objects_with_schema"`
}

// SchemaManager discovers the object types the appliance supports and keeps
// the schema cache current.
type SchemaManager struct {
	client     domain.WAPIClient
	store      SchemaStore
	candidates []string
	logger     *zap.Logger
	audit      *logging.AuditLogger
	now        func() time.Time
}

// NewSchemaManager creates a SchemaManager probing domain.CommonObjectTypes.
func NewSchemaManager(client domain.WAPIClient, store SchemaStore, logger *zap.Logger, audit *logging.AuditLogger) *SchemaManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = logging.NewAuditLogger(nil)
	}
	return &SchemaManager{
		client:     client,
		store:      store,
		candidates: domain.CommonObjectTypes,
		logger:     logger.Named("schema"),
		audit:      audit,
		now:        time.Now,
	}
}

// Discover probes every candidate object type and fetches the schema of
// those the appliance answers for. Candidates whose probe or schema request
// fails are skipped.
func (m *SchemaManager) Discover(ctx context.Context) (map[string]domain.ObjectSchema, error) {
	m.logger.Info("discovering object schemas", zap.Int("candidates", len(m.candidates)))

	results := make([]domain.ObjectSchema, len(m.candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoveryConcurrency)
	for i, objectType := range m.candidates {
		g.Go(func() error {
			if !m.client.ObjectExists(gctx, objectType) {
				m.logger.Debug("object type not available", zap.String("object_type", objectType))
				return nil
			}
			schema, err := m.client.ObjectSchema(gctx, objectType)
			if err != nil {
				m.logger.Warn("schema fetch failed", zap.String("object_type", objectType), zap.Error(err))
				return nil
			}
			results[i] = schema
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("schema discovery interrupted: %w", err)
	}

	schemas := make(map[string]domain.ObjectSchema, len(results))
	for i, schema := range results {
		if schema != nil {
			schemas[m.candidates[i]] = schema
		}
	}
	m.logger.Info("schema discovery complete", zap.Int("object_types", len(schemas)))
	return schemas, nil
}

// SchemaHash returns the SHA-256 hex digest of the schema set's JSON
// encoding. encoding/json sorts map keys, so equal sets hash equally.
func SchemaHash(schemas map[string]domain.ObjectSchema) (string, error) {
	data, err := json.Marshal(schemas)
	if err != nil {
		return "", fmt.Errorf("failed to encode schemas: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HasSchemaChanged compares the set's hash with the stored one and stores
// the new hash when they differ. A missing stored hash counts as a change.
func (m *SchemaManager) HasSchemaChanged(schemas map[string]domain.ObjectSchema) (bool, error) {
	hash, err := SchemaHash(schemas)
	if err != nil {
		return false, err
	}
	stored, err := m.store.LoadHash()
	if err != nil && !errors.Is(err, infrastructure.ErrNotCached) {
		return false, err
	}
	if stored == hash {
		return false, nil
	}
	if err := m.store.SaveHash(hash); err != nil {
		return true, fmt.Errorf("failed to save schema hash: %w", err)
	}
	if stored != "" {
		m.audit.SecurityEvent(logging.EventSchemaChange, map[string]any{
			"old_hash": stored,
			"new_hash": hash,
		}, zapcore.InfoLevel)
	}
	return true, nil
}

// Load returns the schema set. The cache is used unless it is missing or
// refresh is set. A cached set whose hash no longer matches the stored hash
// is re-discovered once.
func (m *SchemaManager) Load(ctx context.Context, refresh bool) (*LoadResult, error) {
	if !refresh {
		cached, err := m.store.LoadSchemas()
		switch {
		case err == nil && len(cached) > 0:
			stored, _ := m.store.LoadHash()
			changed, err := m.HasSchemaChanged(cached)
			if err != nil {
				return nil, err
			}
			if !changed || stored == "" {
				m.logger.Info("using cached schemas", zap.Int("object_types", len(cached)))
				return &LoadResult{Schemas: cached, FromCache: true}, nil
			}
			m.logger.Info("cached schemas changed since last run, re-discovering")
		case err != nil && !errors.Is(err, infrastructure.ErrNotCached):
			m.logger.Warn("schema cache unreadable, re-discovering", zap.Error(err))
		}
	}

	schemas, err := m.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, errors.New("no object types discovered; check the WAPI version and credentials")
	}
	if err := m.store.SaveSchemas(schemas); err != nil {
		return nil, fmt.Errorf("failed to save schemas: %w", err)
	}
	changed, err := m.HasSchemaChanged(schemas)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Schemas: schemas, Changed: changed}, nil
}

type exportDocument struct {
	WAPIURL           string                         `json:"wapi_url"`
	DiscoveredAt      time.Time                      `json:"discovered_at"`
	TotalObjects      int                            `json:"total_objects"`
	ObjectsWithSchema int                            `json:"objects_with_schema"`
	Schemas           map[string]domain.ObjectSchema `json:"schemas"`
}

// Export writes the schema set to path as an explorer document. The path
// must stay inside the current directory or the user's home.
func (m *SchemaManager) Export(path string, schemas map[string]domain.ObjectSchema) (*ExportSummary, error) {
	clean, err := exportPath(path)
	if err != nil {
		return nil, err
	}

	doc := exportDocument{
		WAPIURL:      m.client.BaseURL(),
		DiscoveredAt: m.now().UTC(),
		TotalObjects: len(schemas),
		Schemas:      schemas,
	}
	for _, schema := range schemas {
		if len(schema.Fields()) > 0 {
			doc.ObjectsWithSchema++
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(clean, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}

	m.logger.Info("schemas exported", zap.String("path", clean), zap.Int("object_types", doc.TotalObjects))
	return &ExportSummary{Path: clean, TotalObjects: doc.TotalObjects, ObjectsWithSchema: doc.ObjectsWithSchema}, nil
}

func exportPath(path string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	clean, err := domain.ValidateFilePath(path, cwd)
	if err == nil {
		return clean, nil
	}
	home, herr := os.UserHomeDir()
	if herr != nil {
		return "", err
	}
	return domain.ValidateFilePath(path, home)
}
