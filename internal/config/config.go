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

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Warehouse     WarehouseConfig
	AI            AIConfig
	Selector      SelectorConfig
	Nouns         NounsConfig
	Snapshot      SnapshotConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WarehouseConfig points at the database questions are answered against.
// Driver is either "pgx" or "duckdb".
type WarehouseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	RowLimit        int
}

type AIConfig struct {
	BaseURL       string
	APIKey        string
	ChatModel     string
	EmbedModel    string
	Temperature   float64
	Timeout       time.Duration
	RepairEnabled bool
	AnswerEnabled bool
}

type SelectorConfig struct {
	// Catalogs at or below this size skip the model call and use every table.
	MaxTablesWithoutSelection int
	SampleRows                int
	Categories                map[string][]string
}

// NounsConfig drives the proper-noun index. Columns lists the
// high-cardinality text columns to extract, as "table.column" pairs.
type NounsConfig struct {
	IndexPath          string
	Collection         string
	Columns            []string
	MaxValuesPerColumn int
	TopK               int
}

type SnapshotConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
	MaxAge           time.Duration
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
	if raw, ok := lookup("SQLSCOUT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLSCOUT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "SQLSCOUT_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLSCOUT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLSCOUT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLSCOUT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_WAREHOUSE_DRIVER", &cfg.Warehouse.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_WAREHOUSE_DSN", &cfg.Warehouse.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLSCOUT_WAREHOUSE_MAX_OPEN_CONNS", &cfg.Warehouse.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLSCOUT_WAREHOUSE_MAX_IDLE_CONNS", &cfg.Warehouse.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLSCOUT_WAREHOUSE_CONN_MAX_IDLE_TIME", &cfg.Warehouse.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLSCOUT_WAREHOUSE_CONN_MAX_LIFETIME", &cfg.Warehouse.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLSCOUT_WAREHOUSE_ROW_LIMIT", &cfg.Warehouse.RowLimit); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_AI_CHAT_MODEL", &cfg.AI.ChatModel); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_AI_EMBED_MODEL", &cfg.AI.EmbedModel); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "SQLSCOUT_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLSCOUT_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLSCOUT_AI_REPAIR_ENABLED", &cfg.AI.RepairEnabled); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLSCOUT_AI_ANSWER_ENABLED", &cfg.AI.AnswerEnabled); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLSCOUT_SELECTOR_MAX_TABLES_WITHOUT_SELECTION", &cfg.Selector.MaxTablesWithoutSelection); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLSCOUT_SELECTOR_SAMPLE_ROWS", &cfg.Selector.SampleRows); err != nil {
		return Config{}, err
	}
	if err := applyCategories(lookup, "SQLSCOUT_SELECTOR_CATEGORIES", &cfg.Selector.Categories); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_NOUNS_INDEX_PATH", &cfg.Nouns.IndexPath); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_NOUNS_COLLECTION", &cfg.Nouns.Collection); err != nil {
		return Config{}, err
	}
	if err := applyStringList(lookup, "SQLSCOUT_NOUNS_COLUMNS", &cfg.Nouns.Columns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLSCOUT_NOUNS_MAX_VALUES_PER_COLUMN", &cfg.Nouns.MaxValuesPerColumn); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLSCOUT_NOUNS_TOP_K", &cfg.Nouns.TopK); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLSCOUT_SNAPSHOT_ENABLED", &cfg.Snapshot.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_SNAPSHOT_ENDPOINT", &cfg.Snapshot.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_SNAPSHOT_REGION", &cfg.Snapshot.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_SNAPSHOT_BUCKET", &cfg.Snapshot.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_SNAPSHOT_ACCESS_KEY", &cfg.Snapshot.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_SNAPSHOT_SECRET_KEY", &cfg.Snapshot.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLSCOUT_SNAPSHOT_USE_SSL", &cfg.Snapshot.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_SNAPSHOT_PREFIX", &cfg.Snapshot.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLSCOUT_SNAPSHOT_AUTO_CREATE_BUCKET", &cfg.Snapshot.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLSCOUT_SNAPSHOT_MAX_AGE", &cfg.Snapshot.MaxAge); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLSCOUT_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "SQLSCOUT_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLSCOUT_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLSCOUT_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if !isValidDriver(cfg.Warehouse.Driver) {
		return Config{}, fmt.Errorf("invalid SQLSCOUT_WAREHOUSE_DRIVER: %q", cfg.Warehouse.Driver)
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlscout-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Driver:          "duckdb",
			DSN:             "",
			MaxOpenConns:    8,
			MaxIdleConns:    8,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			RowLimit:        200,
		},
		AI: AIConfig{
			BaseURL:       "https://api.openai.com",
			ChatModel:     "gpt-5",
			EmbedModel:    "text-embedding-3-small",
			Temperature:   0.1,
			Timeout:       30 * time.Second,
			RepairEnabled: true,
			AnswerEnabled: true,
		},
		Selector: SelectorConfig{
			MaxTablesWithoutSelection: 10,
			SampleRows:                3,
		},
		Nouns: NounsConfig{
			IndexPath:          "sqlscout-nouns.db",
			Collection:         "nouns",
			MaxValuesPerColumn: 2000,
			TopK:               5,
		},
		Snapshot: SnapshotConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sqlscout",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
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
		cfg.Snapshot.UseSSL = true
		cfg.Snapshot.AutoCreateBucket = false
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

func isValidDriver(driver string) bool {
	switch driver {
	case "pgx", "duckdb":
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

// applyStringList parses a comma-separated list, dropping empty entries.
func applyStringList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		values = append(values, part)
	}
	*dst = values
	return nil
}

// applyCategories parses "Category:table|table;Category2:table" specs.
func applyCategories(lookup LookupFunc, key string, dst *map[string][]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*dst = nil
		return nil
	}
	categories := map[string][]string{}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, tables, found := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return fmt.Errorf("invalid %s entry %q: expected Category:table|table", key, entry)
		}
		for _, table := range strings.Split(tables, "|") {
			table = strings.TrimSpace(table)
			if table == "" {
				continue
			}
			categories[name] = append(categories[name], table)
		}
		if len(categories[name]) == 0 {
			return fmt.Errorf("invalid %s entry %q: at least one table is required", key, entry)
		}
	}
	*dst = categories
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
