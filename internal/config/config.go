// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Extractor     ExtractorConfig     `mapstructure:"extractor"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	VectorStore   VectorStoreConfig   `mapstructure:"vectorstore"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	RAG           RAGConfig           `mapstructure:"rag"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// MySQLConfig 存储 MySQL 数据库的配置（文档登记表）。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置（对话历史、重试计数）。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig 仅在 vectorstore.backend=pgvector 时使用。
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// JWTConfig 存储 JWT 校验相关的配置。令牌由外部认证服务签发，这里只做校验。
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ExtractorConfig 选择 PDF 文本提取实现：local 或 tika。
type ExtractorConfig struct {
	Backend string `mapstructure:"backend"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// VectorStoreConfig 选择向量索引后端：elasticsearch、pgvector 或 memory。
type VectorStoreConfig struct {
	Backend string `mapstructure:"backend"`
	Table   string `mapstructure:"table"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	Prefix          string `mapstructure:"prefix"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	Dimensions     int    `mapstructure:"dimensions"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout 返回单次 embedding 调用的超时时间。
func (c EmbeddingConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds, 30)
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	Model          string              `mapstructure:"model"`
	TimeoutSeconds int                 `mapstructure:"timeout_seconds"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
	Prompt         LLMPromptConfig     `mapstructure:"prompt"`
}

// Timeout 返回单次生成调用的超时时间。
func (c LLMConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds, 60)
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示。System 为空时使用内置的监管助手提示。
type LLMPromptConfig struct {
	AuthorityName string `mapstructure:"authority_name"`
	System        string `mapstructure:"system"`
}

// RAGConfig 存储检索增强流程的参数。
type RAGConfig struct {
	DocsDir              string `mapstructure:"docs_dir"`
	ChunkSize            int    `mapstructure:"chunk_size"`
	ChunkOverlap         int    `mapstructure:"chunk_overlap"`
	TopK                 int    `mapstructure:"top_k"`
	HistoryWindow        int    `mapstructure:"history_window"`
	ExportWindow         int    `mapstructure:"export_window"`
	SearchTimeoutSeconds int    `mapstructure:"search_timeout_seconds"`
	// Watch 为 true 时 server 监听 DocsDir，新放入的 PDF 自动摄取。
	Watch bool `mapstructure:"watch"`
}

// SearchTimeout 返回检索阶段的超时时间。
func (c RAGConfig) SearchTimeout() time.Duration {
	return seconds(c.SearchTimeoutSeconds, 15)
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// setDefaults 注册默认值，配置文件与环境变量均可覆盖。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "document-ingestion")
	v.SetDefault("kafka.group_id", "drone-helpdesk-ingestor")
	v.SetDefault("extractor.backend", "local")
	v.SetDefault("elasticsearch.index_name", "regulation_chunks")
	v.SetDefault("vectorstore.backend", "elasticsearch")
	v.SetDefault("vectorstore.table", "regulation_chunks")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.generation.temperature", 0.7)
	v.SetDefault("llm.generation.max_tokens", 1000)
	v.SetDefault("llm.prompt.authority_name", "AESA")
	v.SetDefault("rag.docs_dir", "./docs")
	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.history_window", 10)
	v.SetDefault("rag.export_window", 20)
}

// Validate 检查会导致运行期故障的配置组合。
func (c Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return errors.New("rag.chunk_size 必须大于 0")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap (%d) 必须小于 rag.chunk_size (%d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	switch c.VectorStore.Backend {
	case "elasticsearch", "pgvector", "memory":
	default:
		return fmt.Errorf("未知的 vectorstore.backend: %q", c.VectorStore.Backend)
	}
	switch c.Extractor.Backend {
	case "local", "tika":
	default:
		return fmt.Errorf("未知的 extractor.backend: %q", c.Extractor.Backend)
	}
	return nil
}

// Load 读取 .env 与 YAML 文件并返回解析后的配置，不修改全局变量。
func Load(configPath string) (Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HELPDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
