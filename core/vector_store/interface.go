package vector_store

import (
	"context"
	"time"

	"github.com/gogf/gf/v2/util/gconv"
)

// VectorStoreType 向量数据库类型
type VectorStoreType string

const (
	VectorStoreTypeLocal      VectorStoreType = "local"
	VectorStoreTypeMilvus     VectorStoreType = "milvus"
	VectorStoreTypePostgreSQL VectorStoreType = "postgres"
)

// VectorStoreConfig 创建具体向量库实例所需的配置
type VectorStoreConfig struct {
	Type       VectorStoreType // 向量数据库类型
	Client     interface{}     // 客户端实例，local 类型不需要
	Database   string          // 数据库名称
	Collection string          // 集合/表名
	Path       string          // local 类型的持久化目录
}

// Entry 一条已向量化的指南分块
type Entry struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Vector   []float32      `json:"vector,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

// SearchResult 检索结果，Score 为余弦相似度，越大越相似
type SearchResult struct {
	Entry
	Score float32 `json:"score"`
}

// IndexInfo 建索引时记录的信息，加载时用于校验 embedding 模型是否一致
type IndexInfo struct {
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Entries   int       `json:"entries"`
	BuiltAt   time.Time `json:"built_at"`
}

// Filter 元数据等值过滤，所有条件同时满足
type Filter map[string]string

// Match 判断元数据是否满足过滤条件
func (f Filter) Match(metadata map[string]any) bool {
	for k, want := range f {
		v, ok := metadata[k]
		if !ok || gconv.String(v) != want {
			return false
		}
	}
	return true
}

// VectorStore 向量数据库接口
type VectorStore interface {
	// Exists 是否已有持久化的索引，空索引也算存在
	Exists(ctx context.Context) (bool, error)

	// Replace 用给定条目整体替换索引，失败时不保留半成品
	Replace(ctx context.Context, info IndexInfo, entries []Entry) error

	// Open 打开已持久化的索引，返回建索引时记录的信息
	Open(ctx context.Context) (IndexInfo, error)

	// Search 相似度检索，filter 为空时不过滤
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error)

	// Drop 删除持久化的索引
	Drop(ctx context.Context) error

	// Close 释放连接等资源
	Close() error
}
