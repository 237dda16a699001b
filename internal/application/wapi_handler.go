package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"ddi-assistant/internal/domain"
	"ddi-assistant/internal/infrastructure"
	"ddi-assistant/internal/logging"
)

// QueryToolName is the generic query tool served next to the generated ones.
const QueryToolName = "infoblox_query"

// ErrReadOnly is returned for write operations while read-only mode is on.
var ErrReadOnly = errors.New("server is in read-only mode; create, update and delete are disabled")

// HandlerOptions carries the ambient dependencies shared by tool handlers.
type HandlerOptions struct {
	Logger   *zap.Logger
	Audit    *logging.AuditLogger
	Metrics  *infrastructure.Metrics
	ReadOnly bool
}

func (o HandlerOptions) withDefaults() HandlerOptions {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Audit == nil {
		o.Audit = logging.NewAuditLogger(nil)
	}
	return o
}

// WAPIHandler implements ToolHandler for the generated infoblox_* tools,
// the custom tools and infoblox_query. Every call is validated and turned
// into an APICall before the client is touched.
type WAPIHandler struct {
	client domain.WAPIClient
	mapper domain.ResponseMapper
	opts   HandlerOptions

	mu       sync.RWMutex
	tools    *ToolSet
	custom   []domain.CustomTool
	bindings map[string]domain.ToolBinding
	defs     map[string]domain.ToolDefinition
	resolved map[string]*jsonschema.Resolved
}

// NewWAPIHandler creates a handler serving the given tool set.
func NewWAPIHandler(client domain.WAPIClient, mapper domain.ResponseMapper, tools *ToolSet, opts HandlerOptions) *WAPIHandler {
	h := &WAPIHandler{client: client, mapper: mapper, opts: opts.withDefaults()}
	if tools == nil {
		tools = &ToolSet{Routes: map[string]domain.ToolBinding{}}
	}
	h.tools = tools
	h.reindex()
	return h
}

// ToolName returns the identifier for this handler.
func (h *WAPIHandler) ToolName() string {
	return domain.ToolPrefix
}

// SetTools replaces the generated tools.
func (h *WAPIHandler) SetTools(tools *ToolSet) {
	h.mu.Lock()
	h.tools = tools
	h.mu.Unlock()
	h.reindex()
}

// SetCustomTools replaces the custom tools. Custom tools whose names are
// taken by generated tools are ignored.
func (h *WAPIHandler) SetCustomTools(custom []domain.CustomTool) {
	h.mu.Lock()
	h.custom = custom
	h.mu.Unlock()
	h.reindex()
}

func (h *WAPIHandler) reindex() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.bindings = make(map[string]domain.ToolBinding, len(h.tools.Routes)+len(h.custom))
	h.defs = make(map[string]domain.ToolDefinition, len(h.tools.Tools)+len(h.custom)+1)
	h.resolved = make(map[string]*jsonschema.Resolved)

	for _, tool := range h.tools.Tools {
		h.defs[tool.Name] = tool
		h.bindings[tool.Name] = h.tools.Routes[tool.Name]
	}
	for _, c := range h.custom {
		if _, taken := h.defs[c.Name]; taken || c.Name == QueryToolName {
			h.opts.Logger.Warn("custom tool shadows a generated tool, ignoring", zap.String("tool", c.Name))
			continue
		}
		h.defs[c.Name] = c.Definition()
		h.bindings[c.Name] = c.ToolBinding
	}
	h.defs[QueryToolName] = queryToolDefinition()
}

// ListTools returns the generated tools, then the custom tools, then
// infoblox_query.
func (h *WAPIHandler) ListTools() []domain.ToolDefinition {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tools := make([]domain.ToolDefinition, 0, len(h.defs))
	tools = append(tools, h.tools.Tools...)
	for _, c := range h.custom {
		if _, generated := h.tools.Routes[c.Name]; generated || c.Name == QueryToolName {
			continue
		}
		tools = append(tools, h.defs[c.Name])
	}
	return append(tools, h.defs[QueryToolName])
}

// Handle validates and executes a tool call. Validation and WAPI failures
// are reported as isError tool results; the returned error is reserved for
// failures to build a response at all.
func (h *WAPIHandler) Handle(ctx context.Context, req *domain.ToolRequest) (*domain.ToolResponse, error) {
	logger := h.opts.Logger.With(zap.String("tool", req.Name))
	logger.Info("tool called")

	call, err := h.Preview(req.Name, req.Arguments)
	if err != nil {
		logger.Warn("tool call rejected", zap.Error(err))
		h.opts.Audit.ValidationBlocked(req.Name, req.Arguments, err)
		h.opts.Metrics.ObserveToolCall(req.Name, "blocked")
		return toolError(errorMessage(err), nil), nil
	}

	h.opts.Audit.ToolStart(req.Name, req.Arguments)
	result, err := h.Execute(ctx, call)
	if err != nil {
		logger.Error("tool execution failed", zap.Error(err))
		h.opts.Audit.ToolExecution(req.Name, req.Arguments, 0, err)
		h.opts.Metrics.ObserveToolCall(req.Name, "error")

		var extra map[string]any
		var httpErr domain.HTTPError
		if errors.As(err, &httpErr) {
			extra = map[string]any{"status_code": httpErr.StatusCode}
		}
		return toolError(errorMessage(err), extra), nil
	}

	resp, err := h.mapper.MapToToolResponse(result)
	if err != nil {
		return nil, err
	}
	size := 0
	for _, block := range resp.Content {
		size += len(block.Text)
	}
	h.opts.Audit.ToolExecution(req.Name, req.Arguments, size, nil)
	h.opts.Metrics.ObserveToolCall(req.Name, "success")
	logger.Info("tool completed", zap.Int("result_size", size))
	return resp, nil
}

// Execute sends a previously built call.
func (h *WAPIHandler) Execute(ctx context.Context, call *APICall) (any, error) {
	switch call.Method {
	case http.MethodGet:
		return h.client.Get(ctx, call.Path, call.Query)
	case http.MethodPost:
		return h.client.Post(ctx, call.Path, call.Body)
	case http.MethodPut:
		return h.client.Put(ctx, call.Path, call.Body)
	case http.MethodDelete:
		return h.client.Delete(ctx, call.Path)
	default:
		return nil, fmt.Errorf("unsupported method %s", call.Method)
	}
}

// Preview validates a tool call and returns the request it would make,
// without sending it.
func (h *WAPIHandler) Preview(name string, args map[string]any) (*APICall, error) {
	if err := domain.ValidateObjectType(name); err != nil {
		return nil, &domain.ValidationError{Field: "tool", Message: fmt.Sprintf("Invalid tool name: %s", name)}
	}
	args = mergeArgs(nil, args)

	if name == QueryToolName {
		if err := h.validateSchema(name, args); err != nil {
			return nil, err
		}
		if err := domain.ValidateToolInput(name, args); err != nil {
			return nil, err
		}
		return h.buildQueryCall(args)
	}

	binding, err := h.binding(name)
	if err != nil {
		return nil, err
	}
	if h.opts.ReadOnly && binding.Operation.IsWrite() {
		return nil, ErrReadOnly
	}
	if err := domain.ValidateObjectType(binding.ObjectType); err != nil {
		return nil, err
	}

	args = mergeArgs(binding.Params, args)
	if err := h.validateSchema(name, args); err != nil {
		return nil, err
	}
	return h.buildCall(name, binding, args)
}

// binding finds the dispatch target of a tool name, falling back to
// parsing names that are not in the catalog.
func (h *WAPIHandler) binding(name string) (domain.ToolBinding, error) {
	h.mu.RLock()
	b, ok := h.bindings[name]
	h.mu.RUnlock()
	if ok {
		return b, nil
	}
	return ParseToolName(name)
}

// ParseToolName splits infoblox_<operation>_<object type>. The object type
// is recovered by turning every remaining underscore into a colon, which is
// only right for names that are not in the routing table
// (infoblox_list_record_a -> record:a).
func ParseToolName(name string) (domain.ToolBinding, error) {
	parts := strings.SplitN(name, "_", 3)
	if len(parts) < 3 || parts[0] != domain.ToolPrefix || parts[2] == "" {
		return domain.ToolBinding{}, &domain.ValidationError{Field: "tool", Message: "Invalid tool name format"}
	}
	op, err := domain.ParseOperation(parts[1])
	if err != nil {
		return domain.ToolBinding{}, &domain.ValidationError{Field: "tool", Message: fmt.Sprintf("Unknown operation: %s", parts[1])}
	}
	return domain.ToolBinding{Operation: op, ObjectType: strings.ReplaceAll(parts[2], "_", ":")}, nil
}

// validateSchema checks args against the tool's input schema and fills in
// schema defaults. Tools without a definition are not checked here.
func (h *WAPIHandler) validateSchema(name string, args map[string]any) error {
	rs, err := h.resolvedSchema(name)
	if err != nil || rs == nil {
		return err
	}
	if err := rs.ApplyDefaults(&args); err != nil {
		return &domain.ValidationError{Field: "arguments", Message: err.Error()}
	}
	if err := rs.Validate(args); err != nil {
		return &domain.ValidationError{Field: "arguments", Message: fmt.Sprintf("invalid arguments for %s: %v", name, err)}
	}
	return nil
}

func (h *WAPIHandler) resolvedSchema(name string) (*jsonschema.Resolved, error) {
	h.mu.RLock()
	rs, ok := h.resolved[name]
	def, hasDef := h.defs[name]
	h.mu.RUnlock()
	if ok {
		return rs, nil
	}
	if !hasDef || def.InputSchema == nil {
		return nil, nil
	}

	rs, err := def.InputSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return nil, fmt.Errorf("tool %s has an unusable input schema: %w", name, err)
	}
	h.mu.Lock()
	h.resolved[name] = rs
	h.mu.Unlock()
	return rs, nil
}

func (h *WAPIHandler) buildCall(name string, b domain.ToolBinding, args map[string]any) (*APICall, error) {
	call := &APICall{
		Tool:        name,
		Operation:   b.Operation,
		ObjectType:  b.ObjectType,
		Description: describeCall(b.Operation, b.ObjectType),
		Query:       url.Values{},
	}

	switch b.Operation {
	case domain.OpList:
		call.Method, call.Path = http.MethodGet, b.ObjectType
		if err := h.setPageSize(call.Query, args); err != nil {
			return nil, err
		}
		if err := setReturnFields(call.Query, args); err != nil {
			return nil, err
		}
		filters, err := getObjectParam(args, "search_fields", false)
		if err != nil {
			return nil, err
		}
		if err := addFilters(call.Query, filters); err != nil {
			return nil, err
		}

	case domain.OpGet:
		ref, err := refParam(args, b.ObjectType)
		if err != nil {
			return nil, err
		}
		call.Method, call.Path = http.MethodGet, ref
		if err := setReturnFields(call.Query, args); err != nil {
			return nil, err
		}

	case domain.OpCreate:
		data, err := dataParam(args)
		if err != nil {
			return nil, err
		}
		call.Method, call.Path, call.Body = http.MethodPost, b.ObjectType, data

	case domain.OpUpdate:
		ref, err := refParam(args, b.ObjectType)
		if err != nil {
			return nil, err
		}
		data, err := dataParam(args)
		if err != nil {
			return nil, err
		}
		call.Method, call.Path, call.Body = http.MethodPut, ref, data

	case domain.OpDelete:
		ref, err := refParam(args, b.ObjectType)
		if err != nil {
			return nil, err
		}
		call.Method, call.Path = http.MethodDelete, ref

	case domain.OpSearch:
		call.Method, call.Path = http.MethodGet, b.ObjectType
		filters, err := getObjectParam(args, "filters", false)
		if err != nil {
			return nil, err
		}
		if err := addFilters(call.Query, filters); err != nil {
			return nil, err
		}
		if err := h.setPageSize(call.Query, args); err != nil {
			return nil, err
		}
		if err := setReturnFields(call.Query, args); err != nil {
			return nil, err
		}
		if err := setPaging(call.Query, args); err != nil {
			return nil, err
		}

	default:
		return nil, &domain.ValidationError{Field: "tool", Message: fmt.Sprintf("Unknown operation: %s", b.Operation)}
	}

	if len(call.Query) == 0 {
		call.Query = nil
	}
	return call, nil
}

func (h *WAPIHandler) buildQueryCall(args map[string]any) (*APICall, error) {
	objectType, err := getStringParam(args, "object_type", true)
	if err != nil {
		return nil, err
	}
	call := &APICall{
		Tool:        QueryToolName,
		Operation:   domain.OpSearch,
		ObjectType:  objectType,
		Method:      http.MethodGet,
		Path:        objectType,
		Query:       url.Values{},
		Description: "Generic InfoBlox query",
	}
	filters, err := getObjectParam(args, "filters", false)
	if err != nil {
		return nil, err
	}
	if err := addFilters(call.Query, filters); err != nil {
		return nil, err
	}
	if err := h.setPageSize(call.Query, args); err != nil {
		return nil, err
	}
	if err := setReturnFields(call.Query, args); err != nil {
		return nil, err
	}
	return call, nil
}

// setPageSize sets _max_results from max_results, capped at MaxResultsCap.
func (h *WAPIHandler) setPageSize(q url.Values, args map[string]any) error {
	n, err := getIntParam(args, "max_results", DefaultMaxResults)
	if err != nil {
		return err
	}
	if n < 1 {
		return &domain.ValidationError{Field: "max_results", Message: "max_results must be at least 1"}
	}
	if n > MaxResultsCap {
		h.opts.Logger.Warn("max_results capped", zap.Int("requested", n), zap.Int("cap", MaxResultsCap))
		n = MaxResultsCap
	}
	q.Set("_max_results", strconv.Itoa(n))
	return nil
}

func setReturnFields(q url.Values, args map[string]any) error {
	fields, err := getStringParam(args, "return_fields", false)
	if err != nil || fields == "" {
		return err
	}
	if err := domain.ValidateReturnFields(fields); err != nil {
		return err
	}
	q.Set("_return_fields", fields)
	return nil
}

// setPaging turns paging=<n> into WAPI's paged result object request.
func setPaging(q url.Values, args map[string]any) error {
	size, err := getIntParam(args, "paging", 0)
	if err != nil || size <= 0 {
		return err
	}
	if size > MaxResultsCap {
		size = MaxResultsCap
	}
	q.Set("_paging", "1")
	q.Set("_max_results", strconv.Itoa(size))
	q.Set("_return_as_object", "1")

	pageID, err := getStringParam(args, "page_id", false)
	if err != nil || pageID == "" {
		return err
	}
	if err := domain.ValidateFilterValue(pageID); err != nil {
		return err
	}
	q.Set("_page_id", pageID)
	return nil
}

func refParam(args map[string]any, objectType string) (string, error) {
	ref, err := getStringParam(args, "ref", true)
	if err != nil {
		return "", err
	}
	if err := domain.ValidateRef(ref); err != nil {
		return "", err
	}
	if refType, _, _ := strings.Cut(ref, "/"); refType != objectType {
		return "", &domain.ValidationError{Field: "ref", Message: fmt.Sprintf("reference %q is not a %s object", ref, objectType)}
	}
	return ref, nil
}

// dataParam returns the object body of create and update calls.
func dataParam(args map[string]any) (map[string]any, error) {
	data, err := getObjectParam(args, "data", true)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateObjectData(data); err != nil {
		return nil, err
	}
	return data, nil
}

// addFilters validates filters and adds them as query parameters. List
// values become repeated parameters.
func addFilters(q url.Values, filters map[string]any) error {
	if len(filters) == 0 {
		return nil
	}
	if err := domain.ValidateFilters(filters); err != nil {
		return err
	}
	for key, value := range filters {
		for _, v := range filterValues(value) {
			q.Add(key, v)
		}
	}
	return nil
}

func filterValues(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case bool:
		return []string{strconv.FormatBool(v)}
	case float64:
		return []string{strconv.FormatFloat(v, 'f', -1, 64)}
	case int:
		return []string{strconv.Itoa(v)}
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, filterValues(item)...)
		}
		return out
	case []string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return []string{string(data)}
	}
}

// mergeArgs copies base and then args into a fresh map; args win.
func mergeArgs(base, args map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(args))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range args {
		merged[k] = v
	}
	return merged
}

func queryToolDefinition() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        QueryToolName,
		Description: "Generic InfoBlox WAPI query for any object type. Use for advanced queries of any InfoBlox object (zone_auth, fixedaddress, range, etc.).",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"object_type": {
				Type:        "string",
				Description: "InfoBlox object type (e.g., zone_auth, fixedaddress, range)",
			},
			"filters": {
				Type:        "object",
				Description: "Filter criteria as key-value pairs",
			},
			"max_results":   maxResultsProperty(),
			"return_fields": returnFieldsProperty(),
		}, "object_type"),
	}
}
