// Package embedding 提供文本向量化能力。
//
// 所有实现都满足 eino 的 embedding.Embedder 接口，并额外暴露模型名和维度：
// 持久化索引记录这两个值，加载时用来确认索引与当前模型一致。
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/Malowking/guidekb/core/config"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/gogf/gf/v2/frame/g"
)

// Embedder 向量化模型
type Embedder interface {
	embedding.Embedder
	// Model 模型标识，写入持久化索引
	Model() string
	// Dimension 输出向量维度
	Dimension() int
}

// Status 向量化能力状态
type Status int

const (
	Unavailable Status = iota
	Available
)

func (s Status) String() string {
	if s == Available {
		return "available"
	}
	return "unavailable"
}

// Capability 启动时探测一次的向量化能力
// Available 时 Embedder 非空；Unavailable 时 Reason 说明原因
type Capability struct {
	Status   Status
	Reason   string
	Embedder Embedder
}

// AvailableWith 构造可用能力
func AvailableWith(e Embedder) Capability {
	return Capability{Status: Available, Embedder: e}
}

// UnavailableBecause 构造不可用能力
func UnavailableBecause(format string, args ...any) Capability {
	return Capability{Status: Unavailable, Reason: fmt.Sprintf(format, args...)}
}

func (c Capability) IsAvailable() bool {
	return c.Status == Available && c.Embedder != nil
}

func (c Capability) String() string {
	if c.IsAvailable() {
		return fmt.Sprintf("available(%s, dim=%d)", c.Embedder.Model(), c.Embedder.Dimension())
	}
	return fmt.Sprintf("unavailable(%s)", c.Reason)
}

// Detect 根据配置探测向量化能力，不会返回错误
// 经 Service 调用时 provider 已由 Config.Validate 校验，这里的兜底分支只服务于直接调用方
func Detect(ctx context.Context, cfg config.EmbeddingConfig) Capability {
	switch strings.ToLower(cfg.Provider) {
	case config.EmbeddingProviderLocal, "":
		e, err := NewHashEmbedder(cfg.Model, cfg.Dimension)
		if err != nil {
			return UnavailableBecause("local embedder: %v", err)
		}
		g.Log().Infof(ctx, "Embedding capability: local hashing model %s (dim=%d)", e.Model(), e.Dimension())
		return AvailableWith(e)

	case config.EmbeddingProviderOpenAI:
		if cfg.APIKey == "" {
			return UnavailableBecause("embedding.apiKey (or OPENAI_API_KEY) is not set")
		}
		e, err := NewOpenAIEmbedder(ctx, cfg)
		if err != nil {
			return UnavailableBecause("openai embedder: %v", err)
		}
		g.Log().Infof(ctx, "Embedding capability: openai model %s (dim=%d)", e.Model(), e.Dimension())
		return AvailableWith(e)

	default:
		return UnavailableBecause("unsupported embedding provider %q", cfg.Provider)
	}
}
