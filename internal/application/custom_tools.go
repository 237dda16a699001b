package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"ddi-assistant/internal/domain"
	"ddi-assistant/internal/infrastructure"
)

// CustomToolStore persists the custom tool list.
type CustomToolStore interface {
	LoadCustomTools() ([]json.RawMessage, error)
	SaveCustomTools(tools []domain.CustomTool) error
}

// CustomToolManager loads and edits custom_tools.json. Entries that fail
// validation are skipped with a warning instead of failing the whole file.
type CustomToolManager struct {
	store  CustomToolStore
	logger *zap.Logger

	mu    sync.Mutex
	tools []domain.CustomTool
}

// NewCustomToolManager creates a manager backed by store.
func NewCustomToolManager(store CustomToolStore, logger *zap.Logger) *CustomToolManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomToolManager{store: store, logger: logger.Named("custom_tools")}
}

// Load reads the custom tools. reserved reports names that are already
// taken by generated tools; those entries are skipped. A missing file is
// not an error.
func (m *CustomToolManager) Load(reserved func(string) bool) ([]domain.CustomTool, error) {
	raw, err := m.store.LoadCustomTools()
	if errors.Is(err, infrastructure.ErrNotCached) {
		raw, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load custom tools: %w", err)
	}

	seen := make(map[string]bool, len(raw))
	tools := make([]domain.CustomTool, 0, len(raw))
	for i, entry := range raw {
		var tool domain.CustomTool
		if err := json.Unmarshal(entry, &tool); err != nil {
			m.logger.Warn("skipping malformed custom tool", zap.Int("index", i), zap.Error(err))
			continue
		}
		if err := ValidateCustomTool(tool); err != nil {
			m.logger.Warn("skipping invalid custom tool", zap.String("tool", tool.Name), zap.Error(err))
			continue
		}
		if seen[tool.Name] || (reserved != nil && reserved(tool.Name)) {
			m.logger.Warn("skipping custom tool with a name already in use", zap.String("tool", tool.Name))
			continue
		}
		seen[tool.Name] = true
		tools = append(tools, tool)
	}

	m.mu.Lock()
	m.tools = tools
	m.mu.Unlock()
	m.logger.Info("custom tools loaded", zap.Int("count", len(tools)))
	return tools, nil
}

// Tools returns the tools from the last Load, Add or Remove.
func (m *CustomToolManager) Tools() []domain.CustomTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CustomTool(nil), m.tools...)
}

// Add validates tool, appends it and saves the file.
func (m *CustomToolManager) Add(tool domain.CustomTool, reserved func(string) bool) error {
	if err := ValidateCustomTool(tool); err != nil {
		return err
	}
	if reserved != nil && reserved(tool.Name) {
		return &domain.ValidationError{Field: "name", Message: fmt.Sprintf("tool name %s is already in use", tool.Name)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tools {
		if existing.Name == tool.Name {
			return &domain.ValidationError{Field: "name", Message: fmt.Sprintf("custom tool %s already exists", tool.Name)}
		}
	}
	tools := append(append([]domain.CustomTool(nil), m.tools...), tool)
	if err := m.store.SaveCustomTools(tools); err != nil {
		return fmt.Errorf("failed to save custom tools: %w", err)
	}
	m.tools = tools
	return nil
}

// Remove deletes the named tool and saves the file.
func (m *CustomToolManager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tools := make([]domain.CustomTool, 0, len(m.tools))
	for _, t := range m.tools {
		if t.Name != name {
			tools = append(tools, t)
		}
	}
	if len(tools) == len(m.tools) {
		return fmt.Errorf("custom tool %s: %w", name, ErrNotFound)
	}
	if err := m.store.SaveCustomTools(tools); err != nil {
		return fmt.Errorf("failed to save custom tools: %w", err)
	}
	m.tools = tools
	return nil
}

// ValidateCustomTool checks a custom tool definition on its own, without
// looking at other tools.
func ValidateCustomTool(tool domain.CustomTool) error {
	if !strings.HasPrefix(tool.Name, domain.ToolPrefix+"_") {
		return &domain.ValidationError{Field: "name", Message: fmt.Sprintf("custom tool name %q must start with %s_", tool.Name, domain.ToolPrefix)}
	}
	if err := domain.ValidateObjectType(tool.Name); err != nil {
		return &domain.ValidationError{Field: "name", Message: fmt.Sprintf("invalid custom tool name %q", tool.Name)}
	}
	if tool.Name == QueryToolName {
		return &domain.ValidationError{Field: "name", Message: fmt.Sprintf("%s is reserved", QueryToolName)}
	}
	if tool.Description == "" {
		return &domain.ValidationError{Field: "description", Message: "description is required"}
	}
	if _, err := domain.ParseOperation(string(tool.Operation)); err != nil {
		return &domain.ValidationError{Field: "operation", Message: err.Error()}
	}
	if err := domain.ValidateObjectType(tool.ObjectType); err != nil {
		return err
	}
	if err := domain.ValidateToolInput(tool.Name, tool.Params); err != nil {
		return err
	}
	if tool.InputSchema != nil {
		if _, err := tool.InputSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true}); err != nil {
			return &domain.ValidationError{Field: "inputSchema", Message: err.Error()}
		}
	}
	return nil
}
