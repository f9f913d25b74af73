package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	BackendPostgres = "postgres"
	BackendDuckDB   = "duckdb"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Backend       BackendConfig
	Schema        SchemaConfig
	AI            AIConfig
	Query         QueryConfig
	Session       SessionConfig
	ObjectStore   ObjectStoreConfig
	History       HistoryConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// BackendConfig selects and tunes the database the agent answers questions
// against. Kind is "postgres" (DSN required) or "duckdb" (Path optional;
// empty means in-memory). Datasets is a comma-separated list of
// view=objectkey pairs materialized from the object store at open time.
type BackendConfig struct {
	Kind            string
	DSN             string
	Path            string
	Datasets        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

type SchemaConfig struct {
	MaxTables          int
	MaxColumnsPerTable int
	SampleRows         int
}

type AIConfig struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	RetryDelay  time.Duration
}

type QueryConfig struct {
	MaxRows       int
	Timeout       time.Duration
	AllowMutation bool
}

type SessionConfig struct {
	TranslateRounds int
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type HistoryConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retention       time.Duration
	PruneInterval   time.Duration
	PruneLimit      int
	ArchiveEnabled  bool
	ArchivePrefix   string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SQLAGENT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLAGENT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "SQLAGENT_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_BACKEND_KIND", &cfg.Backend.Kind); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_BACKEND_DSN", &cfg.Backend.DSN); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_BACKEND_PATH", &cfg.Backend.Path); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_BACKEND_DATASETS", &cfg.Backend.Datasets); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLAGENT_BACKEND_MAX_OPEN_CONNS", &cfg.Backend.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLAGENT_BACKEND_MAX_IDLE_CONNS", &cfg.Backend.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_BACKEND_CONN_MAX_IDLE_TIME", &cfg.Backend.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_BACKEND_CONN_MAX_LIFETIME", &cfg.Backend.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_BACKEND_PING_TIMEOUT", &cfg.Backend.PingTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLAGENT_SCHEMA_MAX_TABLES", &cfg.Schema.MaxTables); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLAGENT_SCHEMA_MAX_COLUMNS", &cfg.Schema.MaxColumnsPerTable); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLAGENT_SCHEMA_SAMPLE_ROWS", &cfg.Schema.SampleRows); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLAGENT_AI_ENABLED", &cfg.AI.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_AI_MODEL", &cfg.AI.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "SQLAGENT_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_AI_RETRY_DELAY", &cfg.AI.RetryDelay); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLAGENT_QUERY_MAX_ROWS", &cfg.Query.MaxRows); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_QUERY_TIMEOUT", &cfg.Query.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLAGENT_QUERY_ALLOW_MUTATION", &cfg.Query.AllowMutation); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLAGENT_SESSION_TRANSLATE_ROUNDS", &cfg.Session.TranslateRounds); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLAGENT_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLAGENT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLAGENT_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_HISTORY_DSN", &cfg.History.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLAGENT_HISTORY_MAX_OPEN_CONNS", &cfg.History.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLAGENT_HISTORY_MAX_IDLE_CONNS", &cfg.History.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_HISTORY_CONN_MAX_LIFETIME", &cfg.History.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_HISTORY_RETENTION", &cfg.History.Retention); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLAGENT_HISTORY_PRUNE_INTERVAL", &cfg.History.PruneInterval); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLAGENT_HISTORY_PRUNE_LIMIT", &cfg.History.PruneLimit); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLAGENT_HISTORY_ARCHIVE_ENABLED", &cfg.History.ArchiveEnabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_HISTORY_ARCHIVE_PREFIX", &cfg.History.ArchivePrefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLAGENT_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "SQLAGENT_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLAGENT_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLAGENT_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Backend.Kind {
	case BackendPostgres:
		if cfg.Backend.DSN == "" {
			return fmt.Errorf("SQLAGENT_BACKEND_DSN is required when SQLAGENT_BACKEND_KIND is %q", BackendPostgres)
		}
	case BackendDuckDB:
	default:
		return fmt.Errorf("invalid SQLAGENT_BACKEND_KIND: %q", cfg.Backend.Kind)
	}
	if cfg.Backend.Datasets != "" && !cfg.ObjectStore.Enabled {
		return fmt.Errorf("SQLAGENT_BACKEND_DATASETS requires SQLAGENT_OBJECTSTORE_ENABLED")
	}
	if cfg.Schema.MaxTables <= 0 {
		return fmt.Errorf("SQLAGENT_SCHEMA_MAX_TABLES must be positive")
	}
	if cfg.Schema.MaxColumnsPerTable <= 0 {
		return fmt.Errorf("SQLAGENT_SCHEMA_MAX_COLUMNS must be positive")
	}
	if cfg.Schema.SampleRows < 0 {
		return fmt.Errorf("SQLAGENT_SCHEMA_SAMPLE_ROWS must not be negative")
	}
	if cfg.Query.MaxRows <= 0 {
		return fmt.Errorf("SQLAGENT_QUERY_MAX_ROWS must be positive")
	}
	if cfg.Session.TranslateRounds < 1 || cfg.Session.TranslateRounds > 3 {
		return fmt.Errorf("SQLAGENT_SESSION_TRANSLATE_ROUNDS must be between 1 and 3")
	}
	if cfg.ObjectStore.Enabled {
		if cfg.ObjectStore.Endpoint == "" {
			return fmt.Errorf("SQLAGENT_OBJECTSTORE_ENDPOINT is required when the object store is enabled")
		}
		if cfg.ObjectStore.Bucket == "" {
			return fmt.Errorf("SQLAGENT_OBJECTSTORE_BUCKET is required when the object store is enabled")
		}
	}
	if cfg.History.DSN != "" {
		if cfg.History.Retention <= 0 {
			return fmt.Errorf("SQLAGENT_HISTORY_RETENTION must be positive")
		}
		if cfg.History.PruneLimit <= 0 {
			return fmt.Errorf("SQLAGENT_HISTORY_PRUNE_LIMIT must be positive")
		}
	}
	if cfg.History.ArchiveEnabled && !cfg.ObjectStore.Enabled {
		return fmt.Errorf("SQLAGENT_HISTORY_ARCHIVE_ENABLED requires SQLAGENT_OBJECTSTORE_ENABLED")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlagent-api"},
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    90 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Backend: BackendConfig{
			Kind:            BackendDuckDB,
			DSN:             "",
			Path:            "",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Schema: SchemaConfig{
			MaxTables:          40,
			MaxColumnsPerTable: 64,
			SampleRows:         5,
		},
		AI: AIConfig{
			Enabled:     false,
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "openai/gpt-4o-mini",
			Temperature: 0,
			Timeout:     15 * time.Second,
			RetryDelay:  500 * time.Millisecond,
		},
		Query: QueryConfig{
			MaxRows:       500,
			Timeout:       30 * time.Second,
			AllowMutation: false,
		},
		Session: SessionConfig{
			TranslateRounds: 2,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sqlagent",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		History: HistoryConfig{
			DSN:             "",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			Retention:       720 * time.Hour,
			PruneInterval:   time.Hour,
			PruneLimit:      1000,
			ArchiveEnabled:  false,
			ArchivePrefix:   "history-archive",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.AI.Enabled = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
