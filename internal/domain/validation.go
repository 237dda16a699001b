package domain

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError reports tool input that was rejected before any request
// reached the appliance.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

const (
	maxObjectTypeLen  = 100
	maxEANameLen      = 50
	maxFilterValueLen = 1000
	maxHostnameLen    = 253
	maxDataValueLen   = 64 * 1024
)

var (
	validate = validator.New(validator.WithRequiredStructEnabled())

	objectTypePattern  = regexp.MustCompile(`^[a-z0-9_:]+$`)
	eaNamePattern      = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	fieldNamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)
	forbiddenInFilters = []*regexp.Regexp{
		regexp.MustCompile("[;|&$()`]"),
		regexp.MustCompile(`\.\./\.\.`),
		regexp.MustCompile(`(?i)<script`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
	}

	forbiddenInData = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script`),
		regexp.MustCompile(`(?i)javascript:`),
	}

	suspiciousURLSchemes = []string{"javascript:", "data:", "file:"}
)

// ValidateObjectType checks a WAPI object type such as "network" or "record:a".
func ValidateObjectType(objectType string) error {
	if objectType == "" {
		return invalid("object_type", "object type cannot be empty")
	}
	if len(objectType) > maxObjectTypeLen {
		return invalid("object_type", "object type too long: %d chars (max %d)", len(objectType), maxObjectTypeLen)
	}
	if !objectTypePattern.MatchString(objectType) {
		return invalid("object_type", "invalid object type %q: only lowercase letters, digits, underscore and colon are allowed", objectType)
	}
	return nil
}

// ValidateEAName checks an extensible attribute name and returns it without
// the leading '*' WAPI uses to mark EA filters.
func ValidateEAName(name string) (string, error) {
	clean := strings.TrimLeft(name, "*")
	if clean == "" {
		return "", invalid("extattr", "EA name cannot be empty")
	}
	if len(clean) > maxEANameLen {
		return "", invalid("extattr", "EA name too long: %d chars (max %d)", len(clean), maxEANameLen)
	}
	if !eaNamePattern.MatchString(clean) {
		return "", invalid("extattr", "invalid EA name %q: only letters, digits, underscore and dash are allowed", clean)
	}
	return clean, nil
}

// ValidateFilterValue rejects strings carrying shell metacharacters, path
// traversal or script injection. Lists and maps are checked element-wise.
func ValidateFilterValue(value any) error {
	switch v := value.(type) {
	case nil, bool, int, int32, int64, float32, float64:
		return nil
	case string:
		for _, pattern := range forbiddenInFilters {
			if pattern.MatchString(v) {
				return invalid("filter", "invalid characters detected in filter value, potential injection attempt blocked")
			}
		}
		if len(v) > maxFilterValueLen {
			return invalid("filter", "filter value too long: %d chars (max %d)", len(v), maxFilterValueLen)
		}
		return nil
	case []any:
		for _, item := range v {
			if err := ValidateFilterValue(item); err != nil {
				return err
			}
		}
		return nil
	case []string:
		for _, item := range v {
			if err := ValidateFilterValue(item); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, item := range v {
			if err := ValidateFilterValue(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return invalid("filter", "unsupported filter value type: %T", value)
	}
}

// ValidateFilters checks a field -> value map used as WAPI query filters.
// Keys starting with '*' are extensible attribute filters and must carry a
// valid EA name; the rest must be plain field names, optionally with a WAPI
// search modifier suffix (name~, comment:).
func ValidateFilters(filters map[string]any) error {
	for key, value := range filters {
		if strings.HasPrefix(key, "*") {
			if _, err := ValidateEAName(key); err != nil {
				return err
			}
		} else {
			field := strings.TrimRight(key, "~:<>=!")
			if field == "" || !fieldNamePattern.MatchString(field) {
				return invalid("filter", "invalid filter field %q", key)
			}
		}
		if err := ValidateFilterValue(value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateObjectData checks the body of a create or update call. Top-level
// keys must be WAPI field names and values must be plain JSON. Strings are
// stored data (TXT records, comments), so shell metacharacters are allowed
// and only script injection is refused.
func ValidateObjectData(data map[string]any) error {
	for key, value := range data {
		if !fieldNamePattern.MatchString(key) {
			return invalid("data", "invalid field name %q", key)
		}
		if err := validateDataValue(key, value); err != nil {
			return err
		}
	}
	return nil
}

func validateDataValue(field string, value any) error {
	switch v := value.(type) {
	case nil, bool, int, int32, int64, float32, float64:
		return nil
	case string:
		for _, pattern := range forbiddenInData {
			if pattern.MatchString(v) {
				return invalid("data", "script content is not allowed in field %q", field)
			}
		}
		if len(v) > maxDataValueLen {
			return invalid("data", "value of field %q too long: %d chars (max %d)", field, len(v), maxDataValueLen)
		}
		return nil
	case []any:
		for _, item := range v {
			if err := validateDataValue(field, item); err != nil {
				return err
			}
		}
		return nil
	case []string:
		for _, item := range v {
			if err := validateDataValue(field, item); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for key, item := range v {
			if key == "" {
				return invalid("data", "empty key inside field %q", field)
			}
			if err := validateDataValue(field, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return invalid("data", "unsupported value type %T in field %q", value, field)
	}
}

// ValidateNetwork checks an IPv4 network in CIDR notation. Host bits may
// be set; 10.0.0.5/24 is accepted the same way WAPI accepts it.
func ValidateNetwork(network string) error {
	prefix, err := netip.ParsePrefix(network)
	if err != nil || !prefix.Addr().Is4() {
		return invalid("network", "invalid network format %q: must be CIDR notation (e.g. 10.0.0.0/24)", network)
	}
	if bits := prefix.Bits(); bits < 0 || bits > 32 {
		return invalid("network", "invalid CIDR prefix: %d (must be 0-32)", bits)
	}
	return nil
}

// ValidateIPv4 checks a dotted-quad IPv4 address.
func ValidateIPv4(ip string) error {
	if strings.Contains(ip, ":") || validate.Var(ip, "required,ipv4") != nil {
		return invalid("ip_address", "invalid IPv4 address %q", ip)
	}
	return nil
}

// ValidateHostname checks a hostname or DNS zone name.
func ValidateHostname(hostname string) error {
	if hostname == "" {
		return invalid("hostname", "hostname cannot be empty")
	}
	if len(hostname) > maxHostnameLen {
		return invalid("hostname", "hostname too long: %d chars (max %d)", len(hostname), maxHostnameLen)
	}
	if validate.Var(hostname, "hostname_rfc1123") != nil {
		return invalid("hostname", "invalid hostname %q", hostname)
	}
	for _, label := range strings.Split(hostname, ".") {
		if strings.HasSuffix(label, "-") {
			return invalid("hostname", "invalid hostname %q", hostname)
		}
	}
	return nil
}

// ValidateURL accepts http and https URLs with a host.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return invalid("url", "invalid URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return invalid("url", "URL must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return invalid("url", "URL must have a valid domain")
	}
	lower := strings.ToLower(raw)
	for _, scheme := range suspiciousURLSchemes {
		if strings.Contains(lower, scheme) {
			return invalid("url", "suspicious URL scheme detected")
		}
	}
	return nil
}

// ValidateFilePath resolves path (expanding ~) and returns it when it lies
// inside base. An empty base means the working directory.
func ValidateFilePath(path, base string) (string, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return "", invalid("file_path", "invalid path: %v", err)
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", invalid("file_path", "invalid path: %v", err)
	}

	if base == "" {
		if base, err = os.Getwd(); err != nil {
			return "", invalid("file_path", "cannot determine working directory: %v", err)
		}
	} else {
		if base, err = expandHome(base); err != nil {
			return "", invalid("file_path", "invalid base directory: %v", err)
		}
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", invalid("file_path", "invalid base directory: %v", err)
	}

	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", invalid("file_path", "path %q is outside allowed directory %q", path, absBase)
	}
	return absPath, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ValidateRef checks a WAPI object reference of the form
// <objtype>/<opaque id>[:<name>...]. References are used as request paths,
// so anything that could escape the object path is rejected.
func ValidateRef(ref string) error {
	if ref == "" {
		return invalid("ref", "object reference cannot be empty")
	}
	objectType, rest, found := strings.Cut(ref, "/")
	if !found || rest == "" {
		return invalid("ref", "invalid object reference %q: expected <object_type>/<id>", ref)
	}
	if err := ValidateObjectType(objectType); err != nil {
		return invalid("ref", "invalid object reference %q: %s", ref, err.(*ValidationError).Message)
	}
	if strings.Contains(ref, "..") || strings.ContainsAny(ref, "?# \t\r\n\\") {
		return invalid("ref", "invalid characters in object reference %q", ref)
	}
	return nil
}

// ValidateReturnFields checks a comma-separated _return_fields list.
func ValidateReturnFields(fields string) error {
	for _, field := range strings.Split(fields, ",") {
		field = strings.TrimSpace(field)
		if field == "" || !fieldNamePattern.MatchString(field) {
			return invalid("return_fields", "invalid return field %q", field)
		}
	}
	return nil
}

// ValidateToolInput checks the arguments of the fixed-shape tools. Tools
// without a dedicated rule get every argument checked as a filter value.
func ValidateToolInput(toolName string, args map[string]any) error {
	switch toolName {
	case "ddi_network_info":
		network, _ := args["network"].(string)
		return ValidateNetwork(network)
	case "ddi_ip_info":
		ip, _ := args["ip_address"].(string)
		return ValidateIPv4(ip)
	case "ddi_zone_info":
		zone, _ := args["zone"].(string)
		return ValidateHostname(zone)
	case "infoblox_query":
		if objectType, ok := args["object_type"]; ok {
			s, _ := objectType.(string)
			if err := ValidateObjectType(s); err != nil {
				return err
			}
		}
		if filters, ok := args["filters"].(map[string]any); ok {
			return ValidateFilters(filters)
		}
		return nil
	default:
		for key, value := range args {
			if data, ok := value.(map[string]any); ok && key == "data" {
				if err := ValidateObjectData(data); err != nil {
					return err
				}
				continue
			}
			if err := ValidateFilterValue(value); err != nil {
				return err
			}
		}
		return nil
	}
}
