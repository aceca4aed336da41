package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// 支持的会话存储后端。
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// 支持的大模型提供方。
const (
	ProviderAnthropic = "anthropic"
	ProviderArk       = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	AI        AIConfig
	Anthropic AnthropicConfig
	Store     StoreConfig
	Session   SessionConfig
	Registry  RegistryConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	return LoadFrom(newViper())
}

// LoadFrom 从给定的 viper 实例加载配置，便于测试注入。
func LoadFrom(v *viper.Viper) (*Config, error) {
	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}

	anthropic, err := loadAnthropicConfig(v)
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig(v)
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Log: LogConfig{
			Level:       getString(v, "LOG_LEVEL"),
			Format:      getString(v, "LOG_FORMAT"),
			Environment: getString(v, "ENVIRONMENT"),
		},
		AI:        ai,
		Anthropic: anthropic,
		Store:     store,
		Session:   session,
		Registry:  RegistryConfig{ServicesFile: getString(v, "SERVICES_FILE")},
	}, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("LLM_PROVIDER", ProviderAnthropic)
	v.SetDefault("ANTHROPIC_MODEL", "claude-3-7-sonnet-20250219")
	v.SetDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com")
	v.SetDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ARK_REGION", "cn-beijing")
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("SQLITE_PATH", "commerce-router.db")
	v.SetDefault("MONGO_DB", "commerce_router")
	return v
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr               string
	RateLimitPerMinute int
}

// loadServerConfig 解析服务器监听地址与限流配置。
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := getString(v, "PORT")
	if port == "" {
		port = "8080"
	}

	rateLimit, err := parseIntWithDefault(v, "RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return ServerConfig{}, err
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, RateLimitPerMinute: rateLimit}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, RateLimitPerMinute: rateLimit}, nil
}

// LogConfig 描述日志输出配置。
type LogConfig struct {
	Level       string
	Format      string
	Environment string
}

// AIConfig 描述大模型相关配置。Provider 选择 anthropic 或 ark。
type AIConfig struct {
	Provider          string
	APIKey            string
	AccessKey         string
	SecretKey         string
	Model             string
	BaseURL           string
	Region            string
	Temperature       *float64
	TopP              *float64
	MaxTokens         *int
	ToolMaxIterations int
}

// Enabled 表示是否提供了必需的 Ark 密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	provider := strings.ToLower(getString(v, "LLM_PROVIDER"))
	switch provider {
	case ProviderAnthropic, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q (valid: anthropic, ark)", provider)
	}

	temperature, err := parseOptionalFloat(v, "ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloat(v, "ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalInt(v, "ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	iterations, err := parseIntWithDefault(v, "MCP_TOOL_MAX_ITERATIONS", 5)
	if err != nil {
		return AIConfig{}, err
	}
	if iterations < 1 {
		iterations = 1
	}

	return AIConfig{
		Provider:          provider,
		APIKey:            getString(v, "ARK_API_KEY"),
		AccessKey:         getString(v, "ARK_ACCESS_KEY"),
		SecretKey:         getString(v, "ARK_SECRET_KEY"),
		Model:             getString(v, "ARK_MODEL"),
		BaseURL:           getString(v, "ARK_BASE_URL"),
		Region:            getString(v, "ARK_REGION"),
		Temperature:       temperature,
		TopP:              topP,
		MaxTokens:         maxTokens,
		ToolMaxIterations: iterations,
	}, nil
}

// AnthropicConfig 描述 Anthropic Messages API 配置。
type AnthropicConfig struct {
	APIKey        string
	Model         string
	BaseURL       string
	MaxTokens     int
	ToolMaxTokens int
}

// Enabled 表示是否配置了 API Key。
func (c AnthropicConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadAnthropicConfig(v *viper.Viper) (AnthropicConfig, error) {
	maxTokens, err := parseIntWithDefault(v, "ANTHROPIC_MAX_TOKENS", 1000)
	if err != nil {
		return AnthropicConfig{}, err
	}
	toolMaxTokens, err := parseIntWithDefault(v, "ANTHROPIC_TOOL_MAX_TOKENS", 1500)
	if err != nil {
		return AnthropicConfig{}, err
	}

	return AnthropicConfig{
		APIKey:        getString(v, "ANTHROPIC_KEY"),
		Model:         getString(v, "ANTHROPIC_MODEL"),
		BaseURL:       strings.TrimRight(getString(v, "ANTHROPIC_BASE_URL"), "/"),
		MaxTokens:     maxTokens,
		ToolMaxTokens: toolMaxTokens,
	}, nil
}

// StoreConfig 描述会话与用户资料存储。
type StoreConfig struct {
	Backend        string
	ProfileBackend string
	SQLitePath     string
	DatabaseURL    string
	RedisURL       string
	MongoURI       string
	MongoDB        string
	ProfilesFile   string
}

func loadStoreConfig(v *viper.Viper) (StoreConfig, error) {
	backend := strings.ToLower(getString(v, "STORE_BACKEND"))
	if !validBackend(backend) {
		return StoreConfig{}, fmt.Errorf("invalid STORE_BACKEND value %q", backend)
	}

	profileBackend := strings.ToLower(getString(v, "PROFILE_BACKEND"))
	if profileBackend == "" {
		profileBackend = backend
		// Redis 只保存会话，用户资料回退到内存存储。
		if backend == BackendRedis {
			profileBackend = BackendMemory
		}
	}
	if !validBackend(profileBackend) || profileBackend == BackendRedis {
		return StoreConfig{}, fmt.Errorf("invalid PROFILE_BACKEND value %q", profileBackend)
	}

	cfg := StoreConfig{
		Backend:        backend,
		ProfileBackend: profileBackend,
		SQLitePath:     getString(v, "SQLITE_PATH"),
		DatabaseURL:    getString(v, "DATABASE_URL"),
		RedisURL:       getString(v, "REDIS_URL"),
		MongoURI:       getString(v, "MONGO_URI"),
		MongoDB:        getString(v, "MONGO_DB"),
		ProfilesFile:   getString(v, "PROFILES_FILE"),
	}

	for _, b := range []string{backend, profileBackend} {
		switch {
		case b == BackendPostgres && cfg.DatabaseURL == "":
			return StoreConfig{}, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		case b == BackendRedis && cfg.RedisURL == "":
			return StoreConfig{}, fmt.Errorf("REDIS_URL is required for the redis backend")
		case b == BackendMongo && cfg.MongoURI == "":
			return StoreConfig{}, fmt.Errorf("MONGO_URI is required for the mongo backend")
		}
	}
	return cfg, nil
}

func validBackend(b string) bool {
	switch b {
	case BackendMemory, BackendSQLite, BackendPostgres, BackendRedis, BackendMongo:
		return true
	default:
		return false
	}
}

// SessionConfig 描述会话生命周期相关配置。
type SessionConfig struct {
	ActiveWindow      time.Duration
	Retention         time.Duration
	CleanupInterval   time.Duration
	CompletionTimeout time.Duration
}

func loadSessionConfig(v *viper.Viper) (SessionConfig, error) {
	window, err := parseDuration(v, "SESSION_ACTIVE_WINDOW", 30*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}
	retention, err := parseDuration(v, "SESSION_RETENTION", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}
	interval, err := parseDuration(v, "SESSION_CLEANUP_INTERVAL", 15*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}
	timeout, err := parseDuration(v, "COMPLETION_TIMEOUT", 90*time.Second)
	if err != nil {
		return SessionConfig{}, err
	}

	if retention < window {
		retention = window
	}

	return SessionConfig{
		ActiveWindow:      window,
		Retention:         retention,
		CleanupInterval:   interval,
		CompletionTimeout: timeout,
	}, nil
}

// RegistryConfig 指向可选的服务注册表 YAML 文件，为空时使用内置服务。
type RegistryConfig struct {
	ServicesFile string
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func parseIntWithDefault(v *viper.Viper, key string, defaultValue int) (int, error) {
	val, err := parseOptionalInt(v, key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	value := getString(v, key)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalInt(v *viper.Viper, key string) (*int, error) {
	value := getString(v, key)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDuration(v *viper.Viper, key string, defaultValue time.Duration) (time.Duration, error) {
	value := getString(v, key)
	if value == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, value)
	}
	return val, nil
}
