package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Chat          ChatConfig
	AI            AIConfig
	Connector     ConnectorConfig
	SchemaCache   SchemaCacheConfig
	Transcript    TranscriptConfig
	Assistants    AssistantsConfig
	Export        ExportConfig
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

// ChatConfig drives the orchestrator's client side of the completion endpoint.
type ChatConfig struct {
	MaxTokens         int
	CompletionURL     string
	APIKey            string
	RequestTimeout    time.Duration
	StreamIdleTimeout time.Duration
	DefaultAssistant  string
}

type AIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Encoding    string
}

type ConnectorConfig struct {
	OpTimeout time.Duration
}

type SchemaCacheConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
	KeyPrefix     string
}

type TranscriptConfig struct {
	Backend    string
	SQLitePath string
}

type AssistantsConfig struct {
	CatalogPath string
}

type ExportConfig struct {
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

type ObservabilityConfig struct {
	LogLevel zapcore.Level
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
	if raw, ok := lookup("SQLCHAT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLCHAT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "SQLCHAT_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLCHAT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLCHAT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLCHAT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLCHAT_CHAT_MAX_TOKENS", &cfg.Chat.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_CHAT_COMPLETION_URL", &cfg.Chat.CompletionURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_CHAT_API_KEY", &cfg.Chat.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLCHAT_CHAT_REQUEST_TIMEOUT", &cfg.Chat.RequestTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLCHAT_CHAT_STREAM_IDLE_TIMEOUT", &cfg.Chat.StreamIdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_CHAT_DEFAULT_ASSISTANT", &cfg.Chat.DefaultAssistant); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_AI_MODEL", &cfg.AI.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "SQLCHAT_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLCHAT_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_AI_ENCODING", &cfg.AI.Encoding); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLCHAT_CONNECTOR_OP_TIMEOUT", &cfg.Connector.OpTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_SCHEMA_CACHE_BACKEND", &cfg.SchemaCache.Backend); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_SCHEMA_CACHE_REDIS_ADDR", &cfg.SchemaCache.RedisAddr); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_SCHEMA_CACHE_REDIS_PASSWORD", &cfg.SchemaCache.RedisPassword); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SQLCHAT_SCHEMA_CACHE_REDIS_DB", &cfg.SchemaCache.RedisDB); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "SQLCHAT_SCHEMA_CACHE_TTL", &cfg.SchemaCache.TTL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_SCHEMA_CACHE_KEY_PREFIX", &cfg.SchemaCache.KeyPrefix); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_TRANSCRIPT_BACKEND", &cfg.Transcript.Backend); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_TRANSCRIPT_SQLITE_PATH", &cfg.Transcript.SQLitePath); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_ASSISTANTS_CATALOG_PATH", &cfg.Assistants.CatalogPath); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLCHAT_EXPORT_ENABLED", &cfg.Export.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_EXPORT_ENDPOINT", &cfg.Export.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_EXPORT_REGION", &cfg.Export.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_EXPORT_BUCKET", &cfg.Export.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_EXPORT_ACCESS_KEY", &cfg.Export.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_EXPORT_SECRET_KEY", &cfg.Export.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLCHAT_EXPORT_USE_SSL", &cfg.Export.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_EXPORT_PREFIX", &cfg.Export.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLCHAT_EXPORT_AUTO_CREATE_BUCKET", &cfg.Export.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLCHAT_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "SQLCHAT_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQLCHAT_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SQLCHAT_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
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
	if cfg.Chat.MaxTokens <= 0 {
		return fmt.Errorf("SQLCHAT_CHAT_MAX_TOKENS must be positive")
	}
	switch cfg.SchemaCache.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("invalid SQLCHAT_SCHEMA_CACHE_BACKEND: %q", cfg.SchemaCache.Backend)
	}
	switch cfg.Transcript.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("invalid SQLCHAT_TRANSCRIPT_BACKEND: %q", cfg.Transcript.Backend)
	}
	if cfg.Transcript.Backend == BackendSQLite && cfg.Transcript.SQLitePath == "" {
		return fmt.Errorf("SQLCHAT_TRANSCRIPT_SQLITE_PATH is required for the sqlite backend")
	}
	if cfg.Export.Enabled && cfg.Export.Bucket == "" {
		return fmt.Errorf("SQLCHAT_EXPORT_BUCKET is required when exports are enabled")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlchat-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Chat: ChatConfig{
			MaxTokens:         4000,
			CompletionURL:     "http://localhost:8080/api/chat",
			RequestTimeout:    30 * time.Second,
			StreamIdleTimeout: 60 * time.Second,
			DefaultAssistant:  "sql-chat-bot",
		},
		AI: AIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-3.5-turbo",
			Temperature: 0,
			Timeout:     2 * time.Minute,
			Encoding:    "cl100k_base",
		},
		Connector: ConnectorConfig{
			OpTimeout: 30 * time.Second,
		},
		SchemaCache: SchemaCacheConfig{
			Backend:   BackendMemory,
			RedisAddr: "localhost:6379",
			TTL:       10 * time.Minute,
			KeyPrefix: "sqlchat:schema:",
		},
		Transcript: TranscriptConfig{
			Backend:    BackendMemory,
			SQLitePath: "sqlchat.db",
		},
		Export: ExportConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sqlchat-exports",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: zapcore.DebugLevel,
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
		cfg.Chat.CompletionURL = "http://localhost:18080/api/chat"
		cfg.Observability.LogLevel = zapcore.WarnLevel
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = zapcore.InfoLevel
		cfg.Auth.Required = true
		cfg.Transcript.Backend = BackendSQLite
		cfg.Export.UseSSL = true
		cfg.Export.AutoCreateBucket = false
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

func applyLogLevel(lookup LookupFunc, key string, dst *zapcore.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	if level == "warning" {
		level = "warn"
	}
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	*dst = parsed
	return nil
}
