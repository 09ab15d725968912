package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by Load.
// Nested keys are separated by a double underscore:
// SCAFFOLD_SERVER__GLOBAL_PREFIX maps to server.global_prefix.
const EnvPrefix = "SCAFFOLD_"

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Paths         PathsConfig          `koanf:"paths" validate:"required"`
	Messages      MessagesConfig       `koanf:"messages" validate:"required"`
	Docs          DocsConfig           `koanf:"docs"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	ShutdownTimeout    int      `koanf:"shutdown_timeout" validate:"required"`
	UpstreamTimeout    int      `koanf:"upstream_timeout" validate:"required"`
	GlobalPrefix       string   `koanf:"global_prefix"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
	// RateLimit is requests per second per client IP. Zero disables limiting.
	RateLimit      float64 `koanf:"rate_limit" validate:"gte=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"gte=0"`
}

type PathsConfig struct {
	LogsPath string `koanf:"logs_path" validate:"required"`
}

type MessagesConfig struct {
	IndexWelcome string `koanf:"index_welcome" validate:"required"`
}

// DocsConfig controls the generated OpenAPI document and where it is served.
type DocsConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Title       string `koanf:"title" validate:"required_if=Enabled true"`
	Description string `koanf:"description"`
	Version     string `koanf:"version" validate:"required_if=Enabled true"`
	Path        string `koanf:"path" validate:"required_if=Enabled true"`
	BasePath    string `koanf:"base_path"`
}

func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

func (s ServerConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// UpstreamTimeoutDuration bounds each call made by the outbound HTTP client.
func (s ServerConfig) UpstreamTimeoutDuration() time.Duration {
	return time.Duration(s.UpstreamTimeout) * time.Second
}

// defaults mirrors the values the service ships with; every key can be
// overridden from the environment.
func defaults(cwd string) map[string]any {
	return map[string]any{
		"primary.env": "development",

		"server.port":             "3000",
		"server.read_timeout":     10,
		"server.write_timeout":    30,
		"server.idle_timeout":     120,
		"server.shutdown_timeout": 30,
		"server.upstream_timeout": 10,
		"server.global_prefix":    "api",
		"server.rate_limit":       0,
		"server.rate_limit_burst": 0,

		"paths.logs_path": filepath.Join(cwd, "logs"),

		"messages.index_welcome": "Welcome to the API! The server is up and running.",

		"docs.enabled":     true,
		"docs.title":       "Scaffold API",
		"docs.description": "HTTP API documentation",
		"docs.version":     "1.0",
		"docs.path":        "docs",
		"docs.base_path":   "",

		"observability.service_name":                         "scaffold",
		"observability.logging.level":                        "info",
		"observability.logging.format":                       "console",
		"observability.new_relic.license_key":                "",
		"observability.new_relic.app_log_forwarding_enabled": false,
		"observability.metrics.enabled":                      true,
		"observability.metrics.path":                         "/metrics",
	}
}

// envKey turns SCAFFOLD_SERVER__GLOBAL_PREFIX into server.global_prefix.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// unmarshalConf extends the koanf defaults so a comma-separated env value
// such as SCAFFOLD_SERVER__CORS_ALLOWED_ORIGINS=a,b decodes into a list.
func unmarshalConf(out any) koanf.UnmarshalConf {
	return koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToSliceHookFunc(","),
				trimSliceHook(),
				mapstructure.StringToTimeDurationHookFunc(),
			),
			WeaklyTypedInput: true,
			Result:           out,
		},
	}
}

// trimSliceHook drops the blanks around list items and skips empty ones,
// so "a, b," decodes as [a b].
func trimSliceHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		items, ok := data.([]string)
		if !ok || t.Kind() != reflect.Slice {
			return data, nil
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	}
}

// LoadConfig loads the configuration from defaults overlaid with
// environment variables using koanf. cwd anchors the default logs path.
func LoadConfig(cwd string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(cwd), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env variables: %w", err)
	}

	mainConfig := &Config{}
	if err := k.UnmarshalWithConf("", mainConfig, unmarshalConf(mainConfig)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(mainConfig); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// Observability is a pointer so a config built by hand can leave it out.
	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}
	if mainConfig.Observability.ServiceName == "" {
		mainConfig.Observability.ServiceName = "scaffold"
	}
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	return mainConfig, nil
}

// Default returns the configuration LoadConfig would produce with an empty
// environment. Tests use it.
func Default(cwd string) *Config {
	d := defaults(cwd)
	return &Config{
		Primary: Primary{Env: d["primary.env"].(string)},
		Server: ServerConfig{
			Port:            d["server.port"].(string),
			ReadTimeout:     d["server.read_timeout"].(int),
			WriteTimeout:    d["server.write_timeout"].(int),
			IdleTimeout:     d["server.idle_timeout"].(int),
			ShutdownTimeout: d["server.shutdown_timeout"].(int),
			UpstreamTimeout: d["server.upstream_timeout"].(int),
			GlobalPrefix:    d["server.global_prefix"].(string),
		},
		Paths:    PathsConfig{LogsPath: d["paths.logs_path"].(string)},
		Messages: MessagesConfig{IndexWelcome: d["messages.index_welcome"].(string)},
		Docs: DocsConfig{
			Enabled:     true,
			Title:       d["docs.title"].(string),
			Description: d["docs.description"].(string),
			Version:     d["docs.version"].(string),
			Path:        d["docs.path"].(string),
		},
		Observability: DefaultObservabilityConfig(),
	}
}
