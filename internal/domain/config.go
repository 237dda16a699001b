package domain

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Settings is the process-wide configuration. It is built once by
// LoadSettings and treated as read-only afterwards.
type Settings struct {
	Infoblox  InfobloxSettings `koanf:"infoblox" yaml:"infoblox"`
	Logging   LoggingSettings  `koanf:"logging" yaml:"logging"`
	Cache     CacheSettings    `koanf:"cache" yaml:"cache"`
	Transport TransportConfig  `koanf:"transport" yaml:"transport"`
}

// InfobloxSettings holds the appliance connection parameters.
type InfobloxSettings struct {
	Host        string        `koanf:"host" yaml:"host" validate:"required"`
	Username    string        `koanf:"username" yaml:"username" validate:"required"`
	Password    string        `koanf:"password" yaml:"password" validate:"required"`
	WAPIVersion string        `koanf:"wapi_version" yaml:"wapi_version" validate:"required,startswith=v"`
	VerifySSL   bool          `koanf:"verify_ssl" yaml:"verify_ssl"`
	CABundle    string        `koanf:"ca_bundle" yaml:"ca_bundle,omitempty"`
	Timeout     time.Duration `koanf:"timeout" yaml:"timeout" validate:"gt=0"`
	RateLimit   float64       `koanf:"rate_limit" yaml:"rate_limit" validate:"gt=0"`
	MaxRetries  int           `koanf:"max_retries" yaml:"max_retries" validate:"min=1,max=10"`
	ReadOnly    bool          `koanf:"read_only" yaml:"read_only"`
}

// LoggingSettings controls the application and security audit logs.
type LoggingSettings struct {
	Level         string `koanf:"level" yaml:"level" validate:"oneof=DEBUG INFO WARNING ERROR CRITICAL"`
	File          string `koanf:"file" yaml:"file" validate:"required"`
	Dir           string `koanf:"dir" yaml:"dir" validate:"required"`
	SecurityAudit bool   `koanf:"security_audit" yaml:"security_audit"`
}

// CacheSettings locates the flat-file schema and tool caches.
type CacheSettings struct {
	Dir string `koanf:"dir" yaml:"dir" validate:"required"`
}

// TransportConfig defines transport settings.
// Specifies whether to use stdio or HTTP transport.
type TransportConfig struct {
	Type string     `koanf:"type" yaml:"type"` // "stdio" or "http"
	HTTP HTTPConfig `koanf:"http" yaml:"http"`
}

// HTTPConfig defines HTTP transport settings.
// Only used when transport type is "http".
type HTTPConfig struct {
	Host string `koanf:"host" yaml:"host"`
	Port int    `koanf:"port" yaml:"port"`
}

// DefaultSettings returns the settings used when nothing overrides them.
func DefaultSettings() Settings {
	return Settings{
		Infoblox: InfobloxSettings{
			WAPIVersion: "v2.13.1",
			VerifySSL:   true,
			Timeout:     30 * time.Second,
			RateLimit:   3,
			MaxRetries:  3,
		},
		Logging: LoggingSettings{
			Level:         "INFO",
			File:          "ddi-assistant.log",
			Dir:           "~/.ddi-assistant/logs",
			SecurityAudit: true,
		},
		Cache: CacheSettings{
			Dir: "~/.infoblox-mcp",
		},
		Transport: TransportConfig{
			Type: "stdio",
			HTTP: HTTPConfig{Host: "127.0.0.1", Port: 8080},
		},
	}
}

// EnvKeys maps environment variables to settings keys.
var EnvKeys = map[string]string{
	"INFOBLOX_HOST":          "infoblox.host",
	"INFOBLOX_USER":          "infoblox.username",
	"INFOBLOX_PASSWORD":      "infoblox.password",
	"WAPI_VERSION":           "infoblox.wapi_version",
	"INFOBLOX_VERIFY_SSL":    "infoblox.verify_ssl",
	"INFOBLOX_CA_BUNDLE":     "infoblox.ca_bundle",
	"INFOBLOX_TIMEOUT":       "infoblox.timeout",
	"INFOBLOX_RATE_LIMIT":    "infoblox.rate_limit",
	"INFOBLOX_MAX_RETRIES":   "infoblox.max_retries",
	"INFOBLOX_READ_ONLY":     "infoblox.read_only",
	"LOG_LEVEL":              "logging.level",
	"LOG_FILE":               "logging.file",
	"LOG_DIR":                "logging.dir",
	"ENABLE_SECURITY_AUDIT":  "logging.security_audit",
	"INFOBLOX_MCP_CACHE_DIR": "cache.dir",
	"MCP_TRANSPORT":          "transport.type",
	"MCP_HTTP_HOST":          "transport.http.host",
	"MCP_HTTP_PORT":          "transport.http.port",
}

// FlagKeys maps CLI flag names to settings keys. Only flags the user set
// explicitly are applied.
var FlagKeys = map[string]string{
	"log-level": "logging.level",
	"transport": "transport.type",
	"host":      "transport.http.host",
	"port":      "transport.http.port",
	"read-only": "infoblox.read_only",
	"cache-dir": "cache.dir",
}

// envNameByField names the environment variable behind each validated field
// so errors point the operator at what to set.
var envNameByField = map[string]string{
	"Settings.Infoblox.Host":        "INFOBLOX_HOST",
	"Settings.Infoblox.Username":    "INFOBLOX_USER",
	"Settings.Infoblox.Password":    "INFOBLOX_PASSWORD",
	"Settings.Infoblox.WAPIVersion": "WAPI_VERSION",
	"Settings.Infoblox.Timeout":     "INFOBLOX_TIMEOUT",
	"Settings.Infoblox.RateLimit":   "INFOBLOX_RATE_LIMIT",
	"Settings.Infoblox.MaxRetries":  "INFOBLOX_MAX_RETRIES",
	"Settings.Logging.Level":        "LOG_LEVEL",
	"Settings.Logging.File":         "LOG_FILE",
	"Settings.Logging.Dir":          "LOG_DIR",
	"Settings.Cache.Dir":            "INFOBLOX_MCP_CACHE_DIR",
}

// LoadSettings builds Settings from defaults, an optional YAML file, the
// environment and explicitly-set flags, in increasing priority.
// path may be empty; flags may be nil.
func LoadSettings(path string, flags *pflag.FlagSet) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultSettings(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
			return nil, fmt.Errorf("invalid YAML in configuration file: %w", err)
		}
	}

	envProvider := env.ProviderWithValue("", ".", func(name, value string) (string, any) {
		key, ok := EnvKeys[name]
		if !ok || value == "" {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if flags != nil {
		var errs []error
		flags.Visit(func(f *pflag.Flag) {
			if key, ok := FlagKeys[f.Name]; ok {
				if err := k.Set(key, f.Value.String()); err != nil {
					errs = append(errs, fmt.Errorf("flag %s: %w", f.Name, err))
				}
			}
		})
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
	}

	var settings Settings
	if err := k.Unmarshal("", &settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	settings.normalize()

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &settings, nil
}

func (s *Settings) normalize() {
	s.Logging.Level = strings.ToUpper(strings.TrimSpace(s.Logging.Level))
	if s.Logging.Level == "WARN" {
		s.Logging.Level = "WARNING"
	}
	s.Transport.Type = strings.ToLower(strings.TrimSpace(s.Transport.Type))
	s.Infoblox.Host = strings.TrimSuffix(strings.TrimSpace(s.Infoblox.Host), "/")
	if dir, err := expandHome(s.Logging.Dir); err == nil {
		s.Logging.Dir = dir
	}
	if dir, err := expandHome(s.Cache.Dir); err == nil {
		s.Cache.Dir = dir
	}
}

// Validate checks the settings for completeness and correctness.
// Returns an error describing all validation failures.
func (s *Settings) Validate() error {
	var errs []string

	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, describeFieldError(fe))
		}
	}

	if strings.Contains(s.Infoblox.Host, "://") {
		errs = append(errs, "INFOBLOX_HOST must be a host name or address without a scheme")
	} else if s.Infoblox.Host != "" {
		if err := ValidateURL(s.BaseURL()); err != nil {
			errs = append(errs, fmt.Sprintf("INFOBLOX_HOST %q does not form a valid WAPI URL", s.Infoblox.Host))
		}
	}

	if s.Infoblox.CABundle != "" {
		if _, err := os.Stat(s.Infoblox.CABundle); err != nil {
			errs = append(errs, fmt.Sprintf("INFOBLOX_CA_BUNDLE %s is not readable", s.Infoblox.CABundle))
		}
	}

	if err := s.validateTransport(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	name, ok := envNameByField[fe.Namespace()]
	if !ok {
		name = fe.Namespace()
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s=%s)", name, fe.Tag(), fe.Param())
	}
}

// validateTransport validates the transport configuration.
func (s *Settings) validateTransport() error {
	var errs []string

	switch s.Transport.Type {
	case "stdio":
	case "http":
		if s.Transport.HTTP.Host == "" {
			errs = append(errs, "HTTP host is required when transport type is 'http'")
		}
		if s.Transport.HTTP.Port <= 0 || s.Transport.HTTP.Port > 65535 {
			errs = append(errs, fmt.Sprintf("invalid HTTP port %d: must be between 1 and 65535", s.Transport.HTTP.Port))
		}
	case "":
		errs = append(errs, "transport type is required")
	default:
		errs = append(errs, fmt.Sprintf("invalid transport type '%s': must be 'stdio' or 'http'", s.Transport.Type))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// BaseURL returns the WAPI root, https://<host>/wapi/<version>.
func (s *Settings) BaseURL() string {
	return fmt.Sprintf("https://%s/wapi/%s", s.Infoblox.Host, s.Infoblox.WAPIVersion)
}

// InsecureTLS reports whether certificate verification is off with no CA
// bundle to fall back on.
func (s *Settings) InsecureTLS() bool {
	return !s.Infoblox.VerifySSL && s.Infoblox.CABundle == ""
}

// Redacted returns a copy safe to print or log.
func (s *Settings) Redacted() Settings {
	c := *s
	if c.Infoblox.Password != "" {
		c.Infoblox.Password = "***REDACTED***"
	}
	return c
}

// String never includes the password.
func (s *Settings) String() string {
	return fmt.Sprintf("Settings{host=%s user=%s wapi=%s verify_ssl=%t transport=%s}",
		s.Infoblox.Host, s.Infoblox.Username, s.Infoblox.WAPIVersion, s.Infoblox.VerifySSL, s.Transport.Type)
}

// DumpYAML writes the effective settings, secrets redacted.
func (s *Settings) DumpYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	redacted := s.Redacted()
	if err := enc.Encode(&redacted); err != nil {
		return err
	}
	return enc.Close()
}
