package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
// 融合权重、RRF常数、页码范围上限等都是显式配置项，构造时注入，不读全局状态
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	Keyword  KeywordConfig  `mapstructure:"keyword"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Search   SearchConfig   `mapstructure:"search"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别：debug, info, warn, error
	File       string `mapstructure:"file"`        // 日志文件路径，为空则输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // 单个日志文件最大大小
	MaxBackups int    `mapstructure:"max_backups"` // 保留的历史日志文件数
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StorageConfig 页面存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local minio"` // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`                              // 本地存储根目录
	Bucket    string `mapstructure:"bucket"`                            // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"`                          // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type     string `mapstructure:"type"`                    // 向量数据库类型：memory 或 faiss
	Path     string `mapstructure:"path"`                    // 数据库文件路径
	Dim      int    `mapstructure:"dim" validate:"gt=0"`     // 向量维度，须与嵌入模型一致
	Distance string `mapstructure:"distance"`                // 距离度量方式：cosine, l2, dot
}

// KeywordConfig 关键词索引配置
type KeywordConfig struct {
	Type string `mapstructure:"type"` // 关键词索引类型：bleve
	Path string `mapstructure:"path"` // 索引目录，为空则使用内存索引
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string `mapstructure:"provider"`   // 提供商：tongyi, local
	Model      string `mapstructure:"model"`      // 模型名称
	APIKey     string `mapstructure:"api_key"`    // API密钥
	Endpoint   string `mapstructure:"endpoint"`   // API端点
	BatchSize  int    `mapstructure:"batch_size"` // 批处理大小
	Dimensions int    `mapstructure:"dimensions"` // 向量维度
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`   // 是否启用缓存
	Type     string `mapstructure:"type"`     // 缓存类型：memory 或 redis
	Address  string `mapstructure:"address"`  // Redis地址
	Password string `mapstructure:"password"` // Redis密码
	DB       int    `mapstructure:"db"`       // Redis数据库
	TTL      int    `mapstructure:"ttl"`      // 缓存TTL（秒）
}

// QueueConfig 入库任务队列配置
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`         // 是否启用异步入库队列
	RedisAddr     string `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string `mapstructure:"redis_password"` // Redis密码
	RedisDB       int    `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int    `mapstructure:"concurrency"`    // 任务处理并发数
	RetryLimit    int    `mapstructure:"retry_limit"`    // 任务最大重试次数
}

// DatabaseConfig 元数据数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // 数据库类型: sqlite
	DSN  string `mapstructure:"dsn"`  // 数据源名称
}

// SearchConfig 检索与融合配置
type SearchConfig struct {
	Limit             int     `mapstructure:"limit" validate:"gt=0"`           // 检索结果数量上限
	KeywordWeight     float64 `mapstructure:"keyword_weight" validate:"gt=0"`  // RRF关键词后端权重
	VectorWeight      float64 `mapstructure:"vector_weight" validate:"gt=0"`   // RRF向量后端权重
	RRFConstant       int     `mapstructure:"rrf_constant" validate:"gt=0"`    // RRF常数k，抑制头部排名差异
	MaxPageSpan       int     `mapstructure:"max_page_span" validate:"gt=0"`   // 单次范围加载的最大页数
	MinEmbedLength    int     `mapstructure:"min_embed_length"`                // 向量后端可嵌入的最短文本（按rune）
	HeadingTitleLimit int     `mapstructure:"heading_title_limit" validate:"gt=0"` // 标题与行内正文的切分阈值（按rune）
}

// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	var config Config

	// 优先加载.env，便于本地开发注入密钥
	_ = godotenv.Load()

	// 设置默认配置路径
	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	// 尝试读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// 如果找不到配置文件，创建一个默认配置文件
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			log.Printf("Warning: Config file not found at %s, using defaults", configPath)
			setDefaults(v)
			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err == nil {
				if err := v.WriteConfigAs(configPath); err != nil {
					log.Printf("Warning: Could not write default config to %s: %v", configPath, err)
				}
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	// 设置默认值
	setDefaults(v)

	// 支持环境变量覆盖
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 解析配置到结构体
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	// 展开${VAR}形式的环境变量引用
	expandEnvironmentVariables(&config)

	// 校验配置合法性
	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}

	return &config, nil
}

// expandEnvironmentVariables 展开配置项中的${VAR}环境变量引用
func expandEnvironmentVariables(cfg *Config) {
	cfg.Embed.APIKey = expandEnv(cfg.Embed.APIKey)
	cfg.Storage.AccessKey = expandEnv(cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = expandEnv(cfg.Storage.SecretKey)
	cfg.Cache.Password = expandEnv(cfg.Cache.Password)
	cfg.Queue.RedisPassword = expandEnv(cfg.Queue.RedisPassword)
}

func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envVar := value[2 : len(value)-1]
		if envVal := os.Getenv(envVar); envVal != "" {
			return envVal
		}
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 日志默认配置
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/pages")
	v.SetDefault("storage.bucket", "regdocs")
	v.SetDefault("storage.use_ssl", false)

	// 向量数据库默认配置
	v.SetDefault("vectordb.type", "memory")
	v.SetDefault("vectordb.path", "./data/vectordb")
	v.SetDefault("vectordb.dim", 1024) // Qwen embedding 维度
	v.SetDefault("vectordb.distance", "cosine")

	// 关键词索引默认配置
	v.SetDefault("keyword.type", "bleve")
	v.SetDefault("keyword.path", "./data/keyword.bleve")

	// Embedding默认配置
	v.SetDefault("embed.provider", "tongyi")
	v.SetDefault("embed.model", "text-embedding-v1")
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.dimensions", 1024)

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 3600) // 1小时

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 3)

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/regdocs.db")

	// 检索默认配置
	v.SetDefault("search.limit", 10)
	v.SetDefault("search.keyword_weight", 0.4)
	v.SetDefault("search.vector_weight", 0.6)
	v.SetDefault("search.rrf_constant", 60)
	v.SetDefault("search.max_page_span", 10)
	v.SetDefault("search.min_embed_length", 10)
	v.SetDefault("search.heading_title_limit", 50)
}
