package application

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ddi-assistant/internal/domain"
)

// ErrNotFound is wrapped by lookups whose primary object does not exist.
var ErrNotFound = errors.New("not found")

// Attribute is one extensible attribute, flattened to its string value.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ContainerInfo summarizes a parent network container.
type ContainerInfo struct {
	Network string `json:"network"`
	Comment string `json:"comment"`
}

// IPStatistics describes address usage inside a network.
type IPStatistics struct {
	TotalUsable        int     `json:"total_usable"`
	IPsUsed            int     `json:"ips_used"`
	IPsFree            int     `json:"ips_free"`
	UtilizationPercent float64 `json:"utilization_percent"`
	NetworkAddress     string  `json:"network_address"`
	BroadcastAddress   string  `json:"broadcast_address"`
	Netmask            string  `json:"netmask"`
	PrefixLength       int     `json:"prefix_length"`
}

// DHCPInfo reports whether a network is served and its ranges.
type DHCPInfo struct {
	Enabled bool     `json:"enabled"`
	Ranges  []string `json:"ranges"`
}

// NetworkReport is the result of a network lookup.
type NetworkReport struct {
	Network              string         `json:"network"`
	Container            *ContainerInfo `json:"network_container"`
	Comment              string         `json:"comment"`
	ExtensibleAttributes []Attribute    `json:"extensible_attributes"`
	IPStatistics         IPStatistics   `json:"ip_statistics"`
	Gateway              string         `json:"gateway,omitempty"`
	DHCP                 DHCPInfo       `json:"dhcp"`
	LastModified         string         `json:"last_modified,omitempty"`
	Reference            string         `json:"reference"`
	Raw                  map[string]any `json:"raw_data,omitempty"`
}

// DNSRecords holds the A and PTR records pointing at an address.
type DNSRecords struct {
	ARecords   []any `json:"a_records"`
	PTRRecords []any `json:"ptr_records"`
}

// IPNetworkInfo summarizes the network enclosing an address.
type IPNetworkInfo struct {
	Network     string         `json:"network"`
	Comment     string         `json:"comment"`
	Container   *ContainerInfo `json:"container"`
	Gateway     string         `json:"gateway,omitempty"`
	DHCPEnabled bool           `json:"dhcp_enabled"`
}

// IPReport is the result of an IP address lookup.
type IPReport struct {
	IPAddress      string         `json:"ip_address"`
	Status         string         `json:"status"`
	AllocationType string         `json:"allocation_type"`
	FixedAddress   map[string]any `json:"fixed_address"`
	DHCPLease      map[string]any `json:"dhcp_lease"`
	HostRecord     map[string]any `json:"host_record"`
	DNSRecords     DNSRecords     `json:"dns_records"`
	Network        *IPNetworkInfo `json:"network_info"`
	IPStatus       map[string]any `json:"ip_status"`
}

// NameServer is one member of an NS group.
type NameServer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Type    string `json:"type"`
}

// NSGroupInfo lists the servers of a zone's NS group.
type NSGroupInfo struct {
	Name    string       `json:"name"`
	Servers []NameServer `json:"servers"`
}

// Subzone is a zone delegated below the looked-up zone.
type Subzone struct {
	FQDN       string `json:"fqdn"`
	NSGroup    string `json:"ns_group"`
	ZoneFormat string `json:"zone_format"`
}

// SOAInfo carries the zone's SOA timers as returned by WAPI.
type SOAInfo struct {
	Serial  any `json:"serial"`
	Refresh any `json:"refresh"`
	Retry   any `json:"retry"`
	Expire  any `json:"expire"`
	TTL     any `json:"ttl"`
}

// RecordStatistics counts records per type. Counts stop at MaxResultsCap;
// Capped reports that at least one type reached it.
type RecordStatistics struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
	Capped bool           `json:"capped,omitempty"`
}

// ZoneReport is the result of a DNS zone lookup.
type ZoneReport struct {
	ZoneName             string           `json:"zone_name"`
	ZoneType             string           `json:"zone_type"`
	View                 string           `json:"view"`
	NSGroup              *NSGroupInfo     `json:"ns_group"`
	Subzones             []Subzone        `json:"subzones"`
	SOA                  SOAInfo          `json:"soa"`
	RecordStatistics     RecordStatistics `json:"record_statistics"`
	ExtensibleAttributes []Attribute      `json:"extensible_attributes"`
	Reference            string           `json:"reference"`
	Raw                  map[string]any   `json:"raw_data,omitempty"`
}

// RecordCountTypes lists the record types counted for a zone, in report
// order.
var RecordCountTypes = []struct {
	Key        string
	ObjectType string
}{
	{"a_records", "record:a"},
	{"cname_records", "record:cname"},
	{"mx_records", "record:mx"},
	{"txt_records", "record:txt"},
	{"srv_records", "record:srv"},
	{"ptr_records", "record:ptr"},
}

// LookupService answers the operator questions about one network, address
// or zone by combining several WAPI queries.
type LookupService struct {
	client domain.WAPIClient
	logger *zap.Logger
}

// NewLookupService creates a LookupService.
func NewLookupService(client domain.WAPIClient, logger *zap.Logger) *LookupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LookupService{client: client, logger: logger.Named("lookup")}
}

// NetworkInfo looks up an IPv4 network in CIDR notation.
func (s *LookupService) NetworkInfo(ctx context.Context, cidr string) (*NetworkReport, error) {
	if err := domain.ValidateNetwork(cidr); err != nil {
		return nil, err
	}
	prefix := netip.MustParsePrefix(cidr).Masked()
	network := prefix.String()

	obj, err := s.first(ctx, "network", url.Values{
		"network":         {network},
		"_return_fields+": {"network,comment,extattrs,network_container,options,members,dhcp_utilization,usage"},
	})
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: network %s", ErrNotFound, cidr)
	}

	report := &NetworkReport{
		Network:              network,
		Comment:              stringField(obj, "comment"),
		ExtensibleAttributes: formatExtAttrs(obj["extattrs"]),
		IPStatistics:         ipStatistics(prefix, obj),
		Gateway:              extractGateway(obj, prefix),
		DHCP:                 DHCPInfo{Enabled: hasMembers(obj), Ranges: []string{}},
		Reference:            stringField(obj, "_ref"),
		Raw:                  obj,
	}
	if ref := report.Reference; ref != "" {
		report.LastModified = ref[strings.LastIndex(ref, ":")+1:]
	}

	g, gctx := errgroup.WithContext(ctx)
	if containerRef := stringField(obj, "network_container"); containerRef != "" && containerRef != "/" {
		g.Go(func() error {
			report.Container = s.container(gctx, containerRef)
			return nil
		})
	}
	g.Go(func() error {
		report.DHCP.Ranges = s.dhcpRanges(gctx, network)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// IPInfo looks up a single IPv4 address.
func (s *LookupService) IPInfo(ctx context.Context, ip string) (*IPReport, error) {
	if err := domain.ValidateIPv4(ip); err != nil {
		return nil, err
	}
	addr := netip.MustParseAddr(ip).String()
	report := &IPReport{IPAddress: addr, DNSRecords: DNSRecords{ARecords: []any{}, PTRRecords: []any{}}}

	queries := []struct {
		objectType string
		query      url.Values
		dst        *map[string]any
	}{
		{"ipv4address", url.Values{"ip_address": {addr}, "_return_fields+": {"ip_address,status,types,objects,network,usage"}}, &report.IPStatus},
		{"fixedaddress", url.Values{"ipv4addr": {addr}, "_return_fields+": {"ipv4addr,mac,name,comment,extattrs,network"}}, &report.FixedAddress},
		{"lease", url.Values{"address": {addr}, "_return_fields+": {"address,binding_state,client_hostname,ends,hardware,network"}}, &report.DHCPLease},
		{"record:host", url.Values{"ipv4addr": {addr}, "_return_fields+": {"name,ipv4addrs,comment,extattrs"}}, &report.HostRecord},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		g.Go(func() error {
			*q.dst = s.optionalFirst(gctx, q.objectType, q.query)
			return nil
		})
	}
	g.Go(func() error {
		report.DNSRecords.ARecords = s.optionalList(gctx, "record:a", url.Values{
			"ipv4addr": {addr}, "_return_fields+": {"name,ipv4addr,zone,view,ttl"},
		})
		return nil
	})
	g.Go(func() error {
		report.DNSRecords.PTRRecords = s.optionalList(gctx, "record:ptr", url.Values{
			"ipv4addr": {addr}, "_return_fields+": {"ptrdname,ipv4addr,zone,view"},
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if network := stringField(report.IPStatus, "network"); network != "" {
		report.Network = s.enclosingNetwork(ctx, network)
	}
	report.AllocationType, report.Status = allocationType(report)
	return report, nil
}

// ZoneInfo looks up an authoritative zone by FQDN.
func (s *LookupService) ZoneInfo(ctx context.Context, fqdn string) (*ZoneReport, error) {
	if err := domain.ValidateHostname(fqdn); err != nil {
		return nil, err
	}

	obj, err := s.first(ctx, "zone_auth", url.Values{
		"fqdn":            {fqdn},
		"_return_fields+": {"fqdn,view,ns_group,soa_serial,soa_refresh,soa_retry,soa_expire,soa_default_ttl,zone_format,extattrs"},
	})
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: zone %s", ErrNotFound, fqdn)
	}

	view := stringField(obj, "view")
	if view == "" {
		view = "default"
	}
	report := &ZoneReport{
		ZoneName: fqdn,
		ZoneType: zoneType(stringField(obj, "zone_format")),
		View:     view,
		Subzones: []Subzone{},
		SOA: SOAInfo{
			Serial:  obj["soa_serial"],
			Refresh: obj["soa_refresh"],
			Retry:   obj["soa_retry"],
			Expire:  obj["soa_expire"],
			TTL:     obj["soa_default_ttl"],
		},
		ExtensibleAttributes: formatExtAttrs(obj["extattrs"]),
		Reference:            stringField(obj, "_ref"),
		Raw:                  obj,
	}

	counts := make([]int, len(RecordCountTypes))
	g, gctx := errgroup.WithContext(ctx)
	if group := stringField(obj, "ns_group"); group != "" {
		g.Go(func() error {
			report.NSGroup = s.nsGroup(gctx, group)
			return nil
		})
	}
	g.Go(func() error {
		report.Subzones = s.subzones(gctx, fqdn)
		return nil
	})
	for i, rt := range RecordCountTypes {
		g.Go(func() error {
			counts[i] = len(s.optionalList(gctx, rt.ObjectType, url.Values{
				"zone":           {fqdn},
				"_max_results":   {fmt.Sprint(MaxResultsCap)},
				"_return_fields": {""},
			}))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := RecordStatistics{Counts: make(map[string]int, len(RecordCountTypes))}
	for i, rt := range RecordCountTypes {
		stats.Counts[rt.Key] = counts[i]
		stats.Total += counts[i]
		if counts[i] >= MaxResultsCap {
			stats.Capped = true
		}
	}
	report.RecordStatistics = stats
	return report, nil
}

// first returns the first object of a collection query, nil when empty.
func (s *LookupService) first(ctx context.Context, objectType string, query url.Values) (map[string]any, error) {
	result, err := s.client.Get(ctx, objectType, query)
	if err != nil {
		return nil, err
	}
	list, _ := result.([]any)
	if len(list) == 0 {
		return nil, nil
	}
	obj, _ := list[0].(map[string]any)
	return obj, nil
}

// optionalFirst is first for supplementary data: failures are logged and
// treated as absent.
func (s *LookupService) optionalFirst(ctx context.Context, objectType string, query url.Values) map[string]any {
	obj, err := s.first(ctx, objectType, query)
	if err != nil {
		s.logger.Debug("supplementary query failed", zap.String("object_type", objectType), zap.Error(err))
		return nil
	}
	return obj
}

func (s *LookupService) optionalList(ctx context.Context, objectType string, query url.Values) []any {
	result, err := s.client.Get(ctx, objectType, query)
	if err != nil {
		s.logger.Debug("supplementary query failed", zap.String("object_type", objectType), zap.Error(err))
		return []any{}
	}
	list, _ := result.([]any)
	if list == nil {
		return []any{}
	}
	return list
}

func (s *LookupService) container(ctx context.Context, ref string) *ContainerInfo {
	if domain.ValidateRef(ref) != nil {
		return nil
	}
	result, err := s.client.Get(ctx, ref, url.Values{"_return_fields+": {"network,comment"}})
	if err != nil {
		s.logger.Debug("container lookup failed", zap.String("ref", ref), zap.Error(err))
		return nil
	}
	obj, ok := result.(map[string]any)
	if !ok {
		return nil
	}
	return &ContainerInfo{Network: stringField(obj, "network"), Comment: stringField(obj, "comment")}
}

func (s *LookupService) dhcpRanges(ctx context.Context, network string) []string {
	ranges := []string{}
	for _, item := range s.optionalList(ctx, "range", url.Values{
		"network":        {network},
		"_return_fields": {"start_addr,end_addr"},
	}) {
		obj, _ := item.(map[string]any)
		start, end := stringField(obj, "start_addr"), stringField(obj, "end_addr")
		if start != "" && end != "" {
			ranges = append(ranges, start+" - "+end)
		}
	}
	return ranges
}

func (s *LookupService) enclosingNetwork(ctx context.Context, network string) *IPNetworkInfo {
	obj := s.optionalFirst(ctx, "network", url.Values{
		"network":         {network},
		"_return_fields+": {"network,comment,network_container,extattrs,options,members"},
	})
	if obj == nil {
		return nil
	}
	info := &IPNetworkInfo{
		Network:     network,
		Comment:     stringField(obj, "comment"),
		DHCPEnabled: hasMembers(obj),
	}
	if prefix, err := netip.ParsePrefix(network); err == nil && prefix.Addr().Is4() {
		info.Gateway = extractGateway(obj, prefix.Masked())
	}
	if ref := stringField(obj, "network_container"); ref != "" && ref != "/" {
		info.Container = s.container(ctx, ref)
	}
	return info
}

func (s *LookupService) nsGroup(ctx context.Context, name string) *NSGroupInfo {
	obj := s.optionalFirst(ctx, "nsgroup", url.Values{
		"name":            {name},
		"_return_fields+": {"name,primary_secondaries"},
	})
	if obj == nil {
		return nil
	}
	info := &NSGroupInfo{Name: name, Servers: []NameServer{}}
	servers, _ := obj["primary_secondaries"].([]any)
	for _, item := range servers {
		server, _ := item.(map[string]any)
		if server == nil {
			continue
		}
		serverType := "Authoritative"
		if stealth, _ := server["stealth"].(bool); stealth {
			serverType = "Stealth"
		}
		info.Servers = append(info.Servers, NameServer{
			Name:    stringField(server, "name"),
			Address: stringField(server, "address"),
			Type:    serverType,
		})
	}
	return info
}

func (s *LookupService) subzones(ctx context.Context, parent string) []Subzone {
	subzones := []Subzone{}
	for _, item := range s.optionalList(ctx, "zone_auth", url.Values{
		"parent":          {parent},
		"_return_fields+": {"fqdn,ns_group,zone_format"},
	}) {
		zone, _ := item.(map[string]any)
		if zone == nil {
			continue
		}
		subzones = append(subzones, Subzone{
			FQDN:       stringField(zone, "fqdn"),
			NSGroup:    stringField(zone, "ns_group"),
			ZoneFormat: stringField(zone, "zone_format"),
		})
	}
	return subzones
}

func ipStatistics(prefix netip.Prefix, obj map[string]any) IPStatistics {
	bits := prefix.Bits()
	size := uint64(1) << (32 - bits)
	network := binary.BigEndian.Uint32(prefix.Addr().AsSlice())
	mask := uint32(0)
	if bits > 0 {
		mask = ^uint32(0) << (32 - bits)
	}
	broadcast := network | ^mask

	total := 0
	if size > 2 {
		total = int(size - 2)
	}

	used := 0
	if v, ok := obj["dhcp_utilization"]; ok {
		used = intValue(v)
	} else if usage, ok := obj["usage"].([]any); ok {
		used = len(usage)
	}

	percent := 0.0
	if total > 0 {
		percent = math.Round(float64(used)/float64(total)*1000) / 10
	}

	return IPStatistics{
		TotalUsable:        total,
		IPsUsed:            used,
		IPsFree:            total - used,
		UtilizationPercent: percent,
		NetworkAddress:     prefix.Addr().String(),
		BroadcastAddress:   uint32ToAddr(broadcast).String(),
		Netmask:            uint32ToAddr(mask).String(),
		PrefixLength:       bits,
	}
}

// extractGateway returns the DHCP routers option, or the first host address
// when the network has one.
func extractGateway(obj map[string]any, prefix netip.Prefix) string {
	options, _ := obj["options"].([]any)
	for _, item := range options {
		option, _ := item.(map[string]any)
		if option == nil {
			continue
		}
		if stringField(option, "name") == "routers" || intValue(option["num"]) == 3 {
			return stringField(option, "value")
		}
	}
	if prefix.Bits() >= 31 {
		return ""
	}
	return prefix.Addr().Next().String()
}

// allocationType ranks the objects found for an address: fixed address,
// then lease, then host record, then whatever ipv4address reports.
func allocationType(r *IPReport) (allocation, status string) {
	switch {
	case r.FixedAddress != nil:
		return "Fixed Address", "IN USE"
	case r.DHCPLease != nil:
		state := stringField(r.DHCPLease, "binding_state")
		if state == "ACTIVE" {
			return "DHCP Lease (Active)", "IN USE"
		}
		return fmt.Sprintf("DHCP Lease (%s)", state), "IN USE"
	case r.HostRecord != nil:
		return "Host Record", "IN USE"
	case r.IPStatus != nil && !isEmpty(r.IPStatus["usage"]):
		if types := stringList(r.IPStatus["types"]); len(types) > 0 {
			return strings.Join(types, ", "), "IN USE"
		}
		return "Unknown Allocation", "IN USE"
	default:
		return "Not Allocated", "AVAILABLE"
	}
}

func zoneType(format string) string {
	switch format {
	case "FORWARD", "":
		return "Authoritative (Forward)"
	case "IPV4":
		return "Authoritative (Reverse - IPv4)"
	case "IPV6":
		return "Authoritative (Reverse - IPv6)"
	default:
		return fmt.Sprintf("Authoritative (%s)", format)
	}
}

// formatExtAttrs flattens WAPI extattrs ({"Site": {"value": "HQ"}}) into
// name-sorted attributes.
func formatExtAttrs(raw any) []Attribute {
	extattrs, _ := raw.(map[string]any)
	names := make([]string, 0, len(extattrs))
	for name := range extattrs {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := make([]Attribute, 0, len(names))
	for _, name := range names {
		value := extattrs[name]
		if m, ok := value.(map[string]any); ok {
			if v, ok := m["value"]; ok {
				value = v
			}
		}
		attrs = append(attrs, Attribute{Name: name, Value: fmt.Sprint(value)})
	}
	return attrs
}

func hasMembers(obj map[string]any) bool {
	return !isEmpty(obj["members"])
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func stringList(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case string:
		return val == ""
	default:
		return false
	}
}

func uint32ToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
