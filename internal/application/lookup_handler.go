package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"ddi-assistant/internal/domain"
)

// LookupToolPrefix is the name prefix of the operator lookup tools.
const LookupToolPrefix = "ddi"

// Lookup tool names.
const (
	NetworkInfoTool = "ddi_network_info"
	IPInfoTool      = "ddi_ip_info"
	ZoneInfoTool    = "ddi_zone_info"
)

// LookupHandler exposes the operator lookups as MCP tools.
type LookupHandler struct {
	service *LookupService
	mapper  domain.ResponseMapper
	opts    HandlerOptions
}

// NewLookupHandler creates a new lookup tool handler.
func NewLookupHandler(service *LookupService, mapper domain.ResponseMapper, opts HandlerOptions) *LookupHandler {
	return &LookupHandler{service: service, mapper: mapper, opts: opts.withDefaults()}
}

// ToolName returns the identifier for this handler.
func (h *LookupHandler) ToolName() string {
	return LookupToolPrefix
}

// ListTools returns the lookup tools.
func (h *LookupHandler) ListTools() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        NetworkInfoTool,
			Description: "Get a complete report for an IPv4 network: container, comment, extensible attributes, IP utilization, gateway and DHCP ranges.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"network": {Type: "string", Description: "Network in CIDR notation (e.g., 10.0.0.0/24)"},
			}, "network"),
		},
		{
			Name:        IPInfoTool,
			Description: "Get everything known about an IPv4 address: allocation type, fixed address, DHCP lease, host record, DNS records and enclosing network.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"ip_address": {Type: "string", Description: "IPv4 address (e.g., 10.0.0.5)"},
			}, "ip_address"),
		},
		{
			Name:        ZoneInfoTool,
			Description: "Get a report for an authoritative DNS zone: type, NS group, subzones, SOA timers and record counts.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"zone": {Type: "string", Description: "Zone FQDN (e.g., example.com)"},
			}, "zone"),
		},
	}
}

// Handle runs one lookup and returns its report as JSON text.
func (h *LookupHandler) Handle(ctx context.Context, req *domain.ToolRequest) (*domain.ToolResponse, error) {
	logger := h.opts.Logger.With(zap.String("tool", req.Name))

	if err := domain.ValidateToolInput(req.Name, req.Arguments); err != nil {
		logger.Warn("lookup rejected", zap.Error(err))
		h.opts.Audit.ValidationBlocked(req.Name, req.Arguments, err)
		h.opts.Metrics.ObserveToolCall(req.Name, "blocked")
		return toolError(errorMessage(err), nil), nil
	}

	h.opts.Audit.ToolStart(req.Name, req.Arguments)
	report, err := h.lookup(ctx, req)
	if err != nil {
		logger.Error("lookup failed", zap.Error(err))
		h.opts.Audit.ToolExecution(req.Name, req.Arguments, 0, err)
		h.opts.Metrics.ObserveToolCall(req.Name, "error")
		if errors.Is(err, ErrNotFound) {
			return toolError(err.Error(), map[string]any{"not_found": true}), nil
		}
		return toolError(errorMessage(err), nil), nil
	}

	resp, err := h.mapper.MapToToolResponse(report)
	if err != nil {
		return nil, err
	}
	h.opts.Audit.ToolExecution(req.Name, req.Arguments, len(resp.Content[0].Text), nil)
	h.opts.Metrics.ObserveToolCall(req.Name, "success")
	return resp, nil
}

func (h *LookupHandler) lookup(ctx context.Context, req *domain.ToolRequest) (any, error) {
	switch req.Name {
	case NetworkInfoTool:
		network, err := getStringParam(req.Arguments, "network", true)
		if err != nil {
			return nil, err
		}
		return h.service.NetworkInfo(ctx, network)
	case IPInfoTool:
		ip, err := getStringParam(req.Arguments, "ip_address", true)
		if err != nil {
			return nil, err
		}
		return h.service.IPInfo(ctx, ip)
	case ZoneInfoTool:
		zone, err := getStringParam(req.Arguments, "zone", true)
		if err != nil {
			return nil, err
		}
		return h.service.ZoneInfo(ctx, zone)
	default:
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: fmt.Sprintf("unknown tool: %s", req.Name),
		}
	}
}
