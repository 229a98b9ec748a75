// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Demo      DemoConfig      `mapstructure:"demo"`

	// Adapters maps a sub-domain name to the configured backend identifier.
	// Only sub-domains with an explicit setting appear.
	Adapters          map[string]string `mapstructure:"-"`
	// ShowMissingRoutes exposes route groups that have no configured backend.
	ShowMissingRoutes bool              `mapstructure:"-"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	BasePath        string        `mapstructure:"base_path"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TasksConfig governs the task engine.
type TasksConfig struct {
	Mode             string `mapstructure:"mode"`
	Workers          int    `mapstructure:"workers"`
	QueueDepth       int    `mapstructure:"queue_depth"`
	Store            string `mapstructure:"store"`
	ResultSpillBytes int    `mapstructure:"result_spill_bytes"`
}

// Task execution modes.
const (
	TaskModeAsync  = "async"
	TaskModeInline = "inline"
)

// StorageConfig selects the blob store used for spilled task results.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig configures the filesystem blob store.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls access to the task database.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for task event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the task lifecycle event hub.
type ProgressConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	LogEnabled     bool `mapstructure:"log_enabled"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// DemoConfig configures the reference backend.
type DemoConfig struct {
	SandboxDir   string   `mapstructure:"sandbox_dir"`
	APIKeys      []string `mapstructure:"api_keys"`
	Seed         int64    `mapstructure:"seed"`
	OpsSizeLimit int64    `mapstructure:"ops_size_limit"`
}

// SubDomainKeys lists the sub-domains that accept an adapter setting.
var SubDomainKeys = []string{"status", "account", "compute", "filesystem", "task", "facility"}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IRI_API")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Adapters = make(map[string]string)
	for _, sub := range SubDomainKeys {
		key := "adapter." + sub
		if v.IsSet(key) {
			if impl := strings.TrimSpace(v.GetString(key)); impl != "" {
				cfg.Adapters[sub] = impl
			}
		}
	}
	cfg.ShowMissingRoutes = Truthy(v.GetString("show_missing_routes"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_path", "/api/current")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("tasks.mode", TaskModeAsync)
	v.SetDefault("tasks.workers", 4)
	v.SetDefault("tasks.queue_depth", 128)
	v.SetDefault("tasks.store", "memory")
	v.SetDefault("tasks.result_spill_bytes", 1<<20)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "tasks")
	v.SetDefault("storage.local.base_dir", "./iri_results")
	v.SetDefault("database.table", "tasks")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.service_name", "iri-facility-api")
	v.SetDefault("demo.sandbox_dir", "./iri_sandbox")
	v.SetDefault("demo.seed", 42)
	v.SetDefault("demo.ops_size_limit", 5*1024*1024)
	v.SetDefault("show_missing_routes", "false")
}

// bindEnv registers environment names that AutomaticEnv cannot derive: the
// adapter keys (which have no default) and the legacy unprefixed names.
func bindEnv(v *viper.Viper) error {
	for _, sub := range SubDomainKeys {
		if err := v.BindEnv("adapter."+sub, "IRI_API_ADAPTER_"+strings.ToUpper(sub)); err != nil {
			return fmt.Errorf("bind adapter.%s: %w", sub, err)
		}
	}
	bindings := map[string][]string{
		"server.port":            {"IRI_API_SERVER_PORT", "PORT"},
		"show_missing_routes":    {"IRI_API_SHOW_MISSING_ROUTES", "IRI_SHOW_MISSING_ROUTES"},
		"demo.ops_size_limit":    {"IRI_API_DEMO_OPS_SIZE_LIMIT", "OPS_SIZE_LIMIT"},
		"demo.api_keys":          {"IRI_API_DEMO_API_KEYS"},
		"storage.local.base_dir": {"IRI_API_STORAGE_LOCAL_BASE_DIR"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Truthy interprets a flag value: true, 1, on and yes (any case) are true.
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "on", "yes":
		return true
	}
	return false
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with /")
	}
	switch c.Tasks.Mode {
	case TaskModeAsync:
		if c.Tasks.Workers <= 0 {
			return fmt.Errorf("tasks.workers must be > 0 in async mode")
		}
		if c.Tasks.QueueDepth <= 0 {
			return fmt.Errorf("tasks.queue_depth must be > 0 in async mode")
		}
	case TaskModeInline:
	default:
		return fmt.Errorf("tasks.mode must be %q or %q", TaskModeAsync, TaskModeInline)
	}
	if c.Tasks.ResultSpillBytes < 0 {
		return fmt.Errorf("tasks.result_spill_bytes must be >= 0")
	}
	switch c.Tasks.Store {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set when tasks.store is postgres")
		}
	default:
		return fmt.Errorf("tasks.store must be memory or postgres")
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, local or gcs")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Demo.SandboxDir == "" {
		return fmt.Errorf("demo.sandbox_dir must be set")
	}
	if c.Demo.OpsSizeLimit <= 0 {
		return fmt.Errorf("demo.ops_size_limit must be > 0")
	}
	return nil
}

// Adapter returns the configured implementation for a sub-domain.
func (c Config) Adapter(sub string) (string, bool) {
	impl, ok := c.Adapters[sub]
	return impl, ok
}
