package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Malowking/guidekb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/joho/godotenv"
)

const (
	EmbeddingProviderLocal  = "local"
	EmbeddingProviderOpenAI = "openai"

	VectorStoreTypeLocal    = "local"
	VectorStoreTypeMilvus   = "milvus"
	VectorStoreTypePostgres = "postgres"

	DefaultLocalEmbeddingModel  = "hashing-minilm-384"
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

// Config 检索核心的全部配置
type Config struct {
	Guidelines  GuidelinesConfig
	Embedding   EmbeddingConfig
	VectorStore VectorStoreConfig
	Milvus      MilvusConfig
	Postgres    PostgresConfig
	ObjectStore ObjectStoreConfig
}

// GuidelinesConfig 指南语料与切分配置
type GuidelinesConfig struct {
	Dir           string // 指南文件根目录
	IndexPath     string // 本地持久化索引目录
	ChunkSize     int
	ChunkOverlap  int
	TopK          int // search_guidelines 默认返回数量
	ContextTopK   int // 诊断上下文检索返回数量
	ExcerptLength int // 推荐文本中每条指南截取长度（按字符）
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	Provider    string
	Model       string
	Dimension   int
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	BatchSize   int
	Concurrency int
	MaxRetries  int
}

// VectorStoreConfig 向量库类型选择
type VectorStoreConfig struct {
	Type       string
	Collection string // milvus collection / postgres table 名称
}

type MilvusConfig struct {
	Address  string
	Database string
	Username string
	Password string
}

type PostgresConfig struct {
	DSN string
}

// ObjectStoreConfig S3 兼容对象存储，用于同步指南语料
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	SSL       bool
}

// Enabled 是否配置了对象存储
func (c ObjectStoreConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Default 返回不依赖配置文件的默认配置
func Default() *Config {
	return &Config{
		Guidelines: GuidelinesConfig{
			Dir:           "data/guidelines",
			IndexPath:     "./vector_store_guidelines",
			ChunkSize:     800,
			ChunkOverlap:  150,
			TopK:          3,
			ContextTopK:   5,
			ExcerptLength: 500,
		},
		Embedding: EmbeddingConfig{
			Provider:    EmbeddingProviderLocal,
			Model:       DefaultLocalEmbeddingModel,
			Dimension:   384,
			Timeout:     60 * time.Second,
			BatchSize:   30,
			Concurrency: 3,
			MaxRetries:  3,
		},
		VectorStore: VectorStoreConfig{
			Type:       VectorStoreTypeLocal,
			Collection: "clinical_guidelines",
		},
		Milvus: MilvusConfig{
			Address:  "localhost:19530",
			Database: "default",
		},
	}
}

// Load 从 .env 与 g.Cfg 读取配置，缺省项使用默认值
func Load(ctx context.Context) (*Config, error) {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		g.Log().Warningf(ctx, "failed to load .env file: %v", err)
	}

	def := Default()
	cfg := &Config{
		Guidelines: GuidelinesConfig{
			Dir:           g.Cfg().MustGet(ctx, "guidelines.dir", def.Guidelines.Dir).String(),
			IndexPath:     g.Cfg().MustGet(ctx, "guidelines.indexPath", def.Guidelines.IndexPath).String(),
			ChunkSize:     g.Cfg().MustGet(ctx, "guidelines.chunkSize", def.Guidelines.ChunkSize).Int(),
			ChunkOverlap:  g.Cfg().MustGet(ctx, "guidelines.chunkOverlap", def.Guidelines.ChunkOverlap).Int(),
			TopK:          g.Cfg().MustGet(ctx, "guidelines.topK", def.Guidelines.TopK).Int(),
			ContextTopK:   g.Cfg().MustGet(ctx, "guidelines.contextTopK", def.Guidelines.ContextTopK).Int(),
			ExcerptLength: g.Cfg().MustGet(ctx, "guidelines.excerptLength", def.Guidelines.ExcerptLength).Int(),
		},
		Embedding: EmbeddingConfig{
			Provider:    strings.ToLower(g.Cfg().MustGet(ctx, "embedding.provider", def.Embedding.Provider).String()),
			Model:       g.Cfg().MustGet(ctx, "embedding.model", "").String(),
			Dimension:   g.Cfg().MustGet(ctx, "embedding.dimension", def.Embedding.Dimension).Int(),
			APIKey:      g.Cfg().MustGet(ctx, "embedding.apiKey", os.Getenv("OPENAI_API_KEY")).String(),
			BaseURL:     g.Cfg().MustGet(ctx, "embedding.baseURL", os.Getenv("OPENAI_BASE_URL")).String(),
			Timeout:     g.Cfg().MustGet(ctx, "embedding.timeout", def.Embedding.Timeout).Duration(),
			BatchSize:   g.Cfg().MustGet(ctx, "embedding.batchSize", def.Embedding.BatchSize).Int(),
			Concurrency: g.Cfg().MustGet(ctx, "embedding.concurrency", def.Embedding.Concurrency).Int(),
			MaxRetries:  g.Cfg().MustGet(ctx, "embedding.maxRetries", def.Embedding.MaxRetries).Int(),
		},
		VectorStore: VectorStoreConfig{
			Type:       strings.ToLower(g.Cfg().MustGet(ctx, "vectorStore.type", def.VectorStore.Type).String()),
			Collection: g.Cfg().MustGet(ctx, "vectorStore.collection", def.VectorStore.Collection).String(),
		},
		Milvus: MilvusConfig{
			Address:  g.Cfg().MustGet(ctx, "milvus.address", def.Milvus.Address).String(),
			Database: g.Cfg().MustGet(ctx, "milvus.database", def.Milvus.Database).String(),
			Username: g.Cfg().MustGet(ctx, "milvus.username", "").String(),
			Password: g.Cfg().MustGet(ctx, "milvus.password", "").String(),
		},
		Postgres: PostgresConfig{
			DSN: g.Cfg().MustGet(ctx, "postgres.dsn", "").String(),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  g.Cfg().MustGet(ctx, "objectStore.endpoint", "").String(),
			AccessKey: g.Cfg().MustGet(ctx, "objectStore.accessKey", "").String(),
			SecretKey: g.Cfg().MustGet(ctx, "objectStore.secretKey", "").String(),
			Bucket:    g.Cfg().MustGet(ctx, "objectStore.bucket", "").String(),
			Prefix:    g.Cfg().MustGet(ctx, "objectStore.prefix", "").String(),
			SSL:       g.Cfg().MustGet(ctx, "objectStore.ssl", false).Bool(),
		},
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults 补齐依赖其他字段的默认值
func (c *Config) applyDefaults() {
	if c.Embedding.Model == "" {
		switch c.Embedding.Provider {
		case EmbeddingProviderOpenAI:
			c.Embedding.Model = DefaultOpenAIEmbeddingModel
		default:
			c.Embedding.Model = DefaultLocalEmbeddingModel
		}
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = 60 * time.Second
	}
}

// pathContains parent 与 child 相同或为其上级目录时返回 true
func pathContains(parent, child string) bool {
	p, err := filepath.Abs(parent)
	if err != nil {
		return false
	}
	c, err := filepath.Abs(child)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(p, c)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Validate 校验配置项，返回第一类问题的汇总
func (c *Config) Validate() error {
	var problems []string

	if c.Guidelines.Dir == "" {
		problems = append(problems, "guidelines.dir is empty")
	}
	if c.Guidelines.ChunkSize <= 0 {
		problems = append(problems, "guidelines.chunkSize must be positive")
	}
	if c.Guidelines.ChunkOverlap < 0 {
		problems = append(problems, "guidelines.chunkOverlap must not be negative")
	}
	if c.Guidelines.ChunkOverlap >= c.Guidelines.ChunkSize {
		problems = append(problems, "guidelines.chunkOverlap must be smaller than guidelines.chunkSize")
	}
	if c.Guidelines.TopK <= 0 {
		problems = append(problems, "guidelines.topK must be positive")
	}
	if c.Guidelines.ContextTopK <= 0 {
		problems = append(problems, "guidelines.contextTopK must be positive")
	}
	if c.Guidelines.ExcerptLength <= 0 {
		problems = append(problems, "guidelines.excerptLength must be positive")
	}

	switch c.Embedding.Provider {
	case EmbeddingProviderLocal, EmbeddingProviderOpenAI:
	default:
		problems = append(problems, "unsupported embedding.provider: "+c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		problems = append(problems, "embedding.dimension must be positive")
	}

	switch c.VectorStore.Type {
	case VectorStoreTypeLocal:
		if c.Guidelines.IndexPath == "" {
			problems = append(problems, "guidelines.indexPath is empty")
		} else if c.Guidelines.Dir != "" && pathContains(c.Guidelines.IndexPath, c.Guidelines.Dir) {
			problems = append(problems, "guidelines.indexPath must not be guidelines.dir or one of its parents")
		}
	case VectorStoreTypeMilvus:
		if c.Milvus.Address == "" {
			problems = append(problems, "milvus.address is empty")
		}
	case VectorStoreTypePostgres:
		if c.Postgres.DSN == "" {
			problems = append(problems, "postgres.dsn is empty")
		}
	default:
		problems = append(problems, "unsupported vectorStore.type: "+c.VectorStore.Type)
	}

	if len(problems) > 0 {
		return errors.Newf(errors.ErrInvalidParameter, "invalid configuration:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}
