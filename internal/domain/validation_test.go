package domain

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateObjectType(t *testing.T) {
	valid := []string{"network", "record:a", "zone_auth", "discovery:deviceinterface", "ipv6network"}
	for _, objectType := range valid {
		if err := ValidateObjectType(objectType); err != nil {
			t.Errorf("ValidateObjectType(%q) = %v, want nil", objectType, err)
		}
	}

	invalid := []string{"", "Network", "record a", "network;ls", "../grid", "record/a", strings.Repeat("a", 101)}
	for _, objectType := range invalid {
		if err := ValidateObjectType(objectType); err == nil {
			t.Errorf("ValidateObjectType(%q) = nil, want error", objectType)
		}
	}
}

func TestValidateEAName(t *testing.T) {
	clean, err := ValidateEAName("*Site")
	if err != nil || clean != "Site" {
		t.Errorf("ValidateEAName(*Site) = %q, %v", clean, err)
	}
	for _, name := range []string{"*", "Site Name", "Site$", strings.Repeat("x", 51)} {
		if _, err := ValidateEAName(name); err == nil {
			t.Errorf("ValidateEAName(%q) = nil, want error", name)
		}
	}
}

func TestValidateFilterValue(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{"plain", "web.example.com", false},
		{"regex", "^web.*", false},
		{"number", float64(24), false},
		{"bool", true, false},
		{"nil", nil, false},
		{"semicolon", "a; rm -rf /", true},
		{"command substitution", "$(reboot)", true},
		{"backtick", "`id`", true},
		{"pipe", "a|b", true},
		{"traversal", "../../etc/passwd", true},
		{"script tag", "<SCRIPT>alert(1)</script>", true},
		{"javascript scheme", "javascript:alert(1)", true},
		{"event handler", "x onload = y", true},
		{"too long", strings.Repeat("a", 1001), true},
		{"bad list element", []any{"ok", "a&b"}, true},
		{"nested map", map[string]any{"name": map[string]any{"value": "$x"}}, true},
		{"good list", []string{"10.0.0.1", "10.0.0.2"}, false},
		{"unsupported type", struct{}{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilterValue(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilterValue(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			var vErr *ValidationError
			if err != nil && !errors.As(err, &vErr) {
				t.Errorf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestValidateFilters(t *testing.T) {
	ok := map[string]any{"name~": "web", "*Site": "HQ", "network_view": "default", "comment:": "lab"}
	if err := ValidateFilters(ok); err != nil {
		t.Errorf("ValidateFilters(%v) = %v", ok, err)
	}
	for _, filters := range []map[string]any{
		{"name;": "x"},
		{"~": "x"},
		{"*Bad Name": "x"},
		{"name": "a&&b"},
	} {
		if err := ValidateFilters(filters); err == nil {
			t.Errorf("ValidateFilters(%v) = nil, want error", filters)
		}
	}
}

func TestValidateObjectData(t *testing.T) {
	for _, data := range []map[string]any{
		{"name": "_dmarc.example.com", "text": "v=DMARC1; p=reject; rua=mailto:dmarc@example.com"},
		{"name": "example.com", "text": "v=spf1 ip4:192.0.2.0/24 include:_spf.example.net -all"},
		{"network": "10.0.0.0/24", "comment": "Lab (bldg 4) & test | $owner `temp`"},
		{"extattrs": map[string]any{"Cost Center": map[string]any{"value": "R&D"}}, "options": []any{map[string]any{"num": float64(3), "value": "10.0.0.1"}}},
		{"disable": true, "ttl": 3600, "aliases": []string{"www", "www2"}},
	} {
		if err := ValidateObjectData(data); err != nil {
			t.Errorf("ValidateObjectData(%v) = %v", data, err)
		}
	}

	for _, data := range []map[string]any{
		{"comment": "<script>alert(1)</script>"},
		{"comment": "JavaScript:alert(1)"},
		{"name;": "x"},
		{"": "x"},
		{"extattrs": map[string]any{"": "x"}},
		{"comment": struct{}{}},
		{"text": strings.Repeat("a", maxDataValueLen+1)},
	} {
		if err := ValidateObjectData(data); err == nil {
			t.Errorf("ValidateObjectData(%v) = nil, want error", data)
		}
	}
}

func TestValidateNetworkAndIPv4(t *testing.T) {
	for _, network := range []string{"10.0.0.0/24", "10.0.0.5/24", "0.0.0.0/0", "192.168.1.1/32"} {
		if err := ValidateNetwork(network); err != nil {
			t.Errorf("ValidateNetwork(%q) = %v", network, err)
		}
	}
	for _, network := range []string{"", "10.0.0.0", "10.0.0.0/33", "2001:db8::/32", "10.0.0.0/24; ls"} {
		if err := ValidateNetwork(network); err == nil {
			t.Errorf("ValidateNetwork(%q) = nil, want error", network)
		}
	}

	for _, ip := range []string{"10.0.0.1", "255.255.255.255"} {
		if err := ValidateIPv4(ip); err != nil {
			t.Errorf("ValidateIPv4(%q) = %v", ip, err)
		}
	}
	for _, ip := range []string{"", "10.0.0.256", "10.0.0", "::1", "::ffff:10.0.0.1"} {
		if err := ValidateIPv4(ip); err == nil {
			t.Errorf("ValidateIPv4(%q) = nil, want error", ip)
		}
	}
}

func TestValidateHostname(t *testing.T) {
	for _, name := range []string{"example.com", "a-b.example.com", "localhost", "10.in-addr.arpa"} {
		if err := ValidateHostname(name); err != nil {
			t.Errorf("ValidateHostname(%q) = %v", name, err)
		}
	}
	for _, name := range []string{"", "bad zone", "-lead.example.com", "trail-.example.com", "a_b;c", strings.Repeat("a.", 127) + "com"} {
		if err := ValidateHostname(name); err == nil {
			t.Errorf("ValidateHostname(%q) = nil, want error", name)
		}
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("https://gm.example.com/wapi/v2.13.1"); err != nil {
		t.Errorf("ValidateURL() = %v", err)
	}
	for _, raw := range []string{"ftp://gm.example.com", "https://", "https://x.com/?next=javascript:alert(1)", "file:///etc/passwd"} {
		if err := ValidateURL(raw); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", raw)
		}
	}
}

func TestValidateFilePath(t *testing.T) {
	base := t.TempDir()

	got, err := ValidateFilePath(filepath.Join(base, "out", "schemas.json"), base)
	if err != nil {
		t.Fatalf("ValidateFilePath() error = %v", err)
	}
	if got != filepath.Join(base, "out", "schemas.json") {
		t.Errorf("ValidateFilePath() = %s", got)
	}

	if _, err := ValidateFilePath(filepath.Join(base, "..", "escape.json"), base); err == nil {
		t.Error("expected an error for a path outside base")
	}

	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err = ValidateFilePath("~/export.json", "~")
	if err != nil {
		t.Fatalf("ValidateFilePath(~) error = %v", err)
	}
	if got != filepath.Join(home, "export.json") {
		t.Errorf("ValidateFilePath(~) = %s", got)
	}

	t.Chdir(base)
	if _, err := ValidateFilePath("relative.json", ""); err != nil {
		t.Errorf("relative path inside cwd rejected: %v", err)
	}
	if _, err := ValidateFilePath(os.TempDir()+"/../etc/passwd", ""); err == nil {
		t.Error("expected an error for a path outside the working directory")
	}
}

func TestValidateRef(t *testing.T) {
	valid := []string{
		"network/ZG5zLm5ldHdvcmskMTAuMC4wLjAvMjQvMA:10.0.0.0/24/default",
		"record:a/ZG5zLmJpbmRfYSQuX2RlZmF1bHQ:web.example.com/default",
	}
	for _, ref := range valid {
		if err := ValidateRef(ref); err != nil {
			t.Errorf("ValidateRef(%q) = %v", ref, err)
		}
	}
	invalid := []string{"", "network", "network/", "Network/abc", "network/../grid", "network/abc?_schema", "network/a b", `network/a\b`}
	for _, ref := range invalid {
		if err := ValidateRef(ref); err == nil {
			t.Errorf("ValidateRef(%q) = nil, want error", ref)
		}
	}
}

func TestValidateReturnFields(t *testing.T) {
	if err := ValidateReturnFields("network, comment,extattrs"); err != nil {
		t.Errorf("ValidateReturnFields() = %v", err)
	}
	for _, fields := range []string{"", "network,,comment", "name;ls", "a b"} {
		if err := ValidateReturnFields(fields); err == nil {
			t.Errorf("ValidateReturnFields(%q) = nil, want error", fields)
		}
	}
}

func TestValidateToolInput(t *testing.T) {
	tests := []struct {
		tool    string
		args    map[string]any
		wantErr bool
	}{
		{"ddi_network_info", map[string]any{"network": "10.0.0.0/24"}, false},
		{"ddi_network_info", map[string]any{}, true},
		{"ddi_ip_info", map[string]any{"ip_address": "10.0.0.5"}, false},
		{"ddi_ip_info", map[string]any{"ip_address": 5}, true},
		{"ddi_zone_info", map[string]any{"zone": "example.com"}, false},
		{"ddi_zone_info", map[string]any{"zone": "example.com;"}, true},
		{"infoblox_query", map[string]any{"object_type": "zone_auth", "filters": map[string]any{"fqdn~": "example"}}, false},
		{"infoblox_query", map[string]any{"object_type": "zone auth"}, true},
		{"infoblox_query", map[string]any{"filters": map[string]any{"fqdn": "`x`"}}, true},
		{"infoblox_list_network", map[string]any{"max_results": float64(10)}, false},
		{"infoblox_list_network", map[string]any{"return_fields": "a|b"}, true},
		{"infoblox_create_record_txt", map[string]any{"data": map[string]any{"text": "v=DKIM1; k=rsa; p=MIGf"}}, false},
		{"infoblox_create_network", map[string]any{"data": map[string]any{"comment": "<script>"}}, true},
	}

	for _, tt := range tests {
		err := ValidateToolInput(tt.tool, tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateToolInput(%s, %v) error = %v, wantErr %v", tt.tool, tt.args, err, tt.wantErr)
		}
	}
}
