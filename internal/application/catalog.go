package application

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"ddi-assistant/internal/domain"
)

// ToolStore persists the generated tool definitions for inspection.
type ToolStore interface {
	SaveTools(tools []domain.ToolDefinition) error
}

// Catalog assembles the tool catalog at startup: schemas from the cache or
// discovery, generated tools, then custom tools.
type Catalog struct {
	schemas   *SchemaManager
	custom    *CustomToolManager
	store     ToolStore
	generator *ToolGenerator
	logger    *zap.Logger

	mu    sync.RWMutex
	tools *ToolSet
}

// NewCatalog wires the catalog parts together.
func NewCatalog(schemas *SchemaManager, custom *CustomToolManager, store ToolStore, generator *ToolGenerator, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		schemas:   schemas,
		custom:    custom,
		store:     store,
		generator: generator,
		logger:    logger.Named("catalog"),
	}
}

// Build loads the schemas and generates the tool set. It returns the load
// result so callers can report whether discovery ran.
func (c *Catalog) Build(ctx context.Context, refresh bool) (*ToolSet, *LoadResult, error) {
	loaded, err := c.schemas.Load(ctx, refresh)
	if err != nil {
		return nil, nil, err
	}

	tools := c.generator.Generate(loaded.Schemas)
	if err := c.store.SaveTools(tools.Tools); err != nil {
		c.logger.Warn("failed to cache tool definitions", zap.Error(err))
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()

	if _, err := c.custom.Load(c.isGenerated); err != nil {
		c.logger.Warn("custom tools not loaded", zap.Error(err))
	}

	c.logger.Info("tool catalog ready",
		zap.Int("object_types", len(loaded.Schemas)),
		zap.Int("tools", len(tools.Tools)),
		zap.Int("custom_tools", len(c.custom.Tools())),
		zap.Bool("from_cache", loaded.FromCache),
	)
	return tools, loaded, nil
}

// ReloadCustom re-reads custom_tools.json and hands the result to h.
func (c *Catalog) ReloadCustom(h *WAPIHandler) {
	tools, err := c.custom.Load(c.isGenerated)
	if err != nil {
		c.logger.Warn("custom tool reload failed", zap.Error(err))
		return
	}
	h.SetCustomTools(tools)
	c.logger.Info("custom tools reloaded", zap.Int("count", len(tools)))
}

// CustomTools returns the custom tools currently loaded.
func (c *Catalog) CustomTools() []domain.CustomTool {
	return c.custom.Tools()
}

// AddCustomTool validates and persists a new custom tool.
func (c *Catalog) AddCustomTool(tool domain.CustomTool) error {
	return c.custom.Add(tool, c.isGenerated)
}

// RemoveCustomTool re-reads custom_tools.json and deletes the named tool.
// It works without a built catalog.
func (c *Catalog) RemoveCustomTool(name string) error {
	if _, err := c.custom.Load(nil); err != nil {
		return err
	}
	return c.custom.Remove(name)
}

func (c *Catalog) isGenerated(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name == QueryToolName {
		return true
	}
	if c.tools == nil {
		return false
	}
	_, ok := c.tools.Lookup(name)
	return ok
}
