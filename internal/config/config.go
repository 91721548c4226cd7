// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Conf 保存 Init 加载的配置，仅供 main 组装依赖时使用；各组件通过构造函数显式接收配置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	// Driver 取值 sqlite 或 mysql。
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不连接 Redis。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Enabled 为 false 时标题生成在进程内异步执行。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// LLMConfig 存储上游模型服务相关的配置。
type LLMConfig struct {
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	APIVersion     string              `mapstructure:"api_version"`
	TimeoutSeconds int                 `mapstructure:"timeout_seconds"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关的默认参数。
type LLMGenerationConfig struct {
	Model             string  `mapstructure:"model"`
	Temperature       float64 `mapstructure:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	ThinkingMaxTokens int     `mapstructure:"thinking_max_tokens"`
	ThinkingBudget    int     `mapstructure:"thinking_budget"`
}

// ChatConfig 配置对话流相关参数。
type ChatConfig struct {
	// LockTTLSeconds 是单个会话生成锁的租约时长。
	LockTTLSeconds int `mapstructure:"lock_ttl_seconds"`
	// TitleTimeoutSeconds 是异步标题生成的超时时间。
	TitleTimeoutSeconds int `mapstructure:"title_timeout_seconds"`
}

// PricingConfig 存储实时价格查询的配置。
type PricingConfig struct {
	OpenRouterAPIKey  string `mapstructure:"openrouter_api_key"`
	OpenRouterBaseURL string `mapstructure:"openrouter_base_url"`
	CacheTTLMinutes   int    `mapstructure:"cache_ttl_minutes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "localchat.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("kafka.topic", "title-generation")
	v.SetDefault("kafka.group_id", "localchat-go-title")
	v.SetDefault("llm.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.api_version", "2023-06-01")
	v.SetDefault("llm.timeout_seconds", 600)
	v.SetDefault("llm.generation.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.generation.temperature", 1.0)
	v.SetDefault("llm.generation.max_tokens", 8192)
	v.SetDefault("llm.generation.thinking_max_tokens", 16384)
	v.SetDefault("llm.generation.thinking_budget", 10000)
	v.SetDefault("chat.lock_ttl_seconds", 600)
	v.SetDefault("chat.title_timeout_seconds", 30)
	v.SetDefault("pricing.openrouter_base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("pricing.cache_ttl_minutes", 60)
}

// Load 读取 .env（若存在）与 YAML 配置文件，环境变量优先，例如 LLM_API_KEY 覆盖 llm.api_key。
func Load(configPath string) (Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		// 兼容提供商 SDK 的常用环境变量名
		cfg.LLM.APIKey = v.GetString("ANTHROPIC_API_KEY")
	}
	return cfg, nil
}

// Init 加载配置到 Conf，失败时 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
