package embedding

import (
	"context"
	"strings"

	"github.com/Malowking/guidekb/core/config"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

// OpenAIEmbedder OpenAI 兼容接口的向量化模型
type OpenAIEmbedder struct {
	inner     *openai.Embedder
	model     string
	dimension int
}

// NewOpenAIEmbedder 创建 OpenAI 兼容的向量化模型
func NewOpenAIEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrModelNotConfigured, "embedding api key is empty")
	}
	if cfg.Model == "" {
		return nil, errors.New(errors.ErrModelNotConfigured, "embedding model is empty")
	}

	conf := &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	// 只有 text-embedding-3 系列支持指定输出维度
	if strings.HasPrefix(cfg.Model, "text-embedding-3") && cfg.Dimension > 0 {
		dim := cfg.Dimension
		conf.Dimensions = &dim
	}

	inner, err := openai.NewEmbedder(ctx, conf)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrModelConfigInvalid, err, "failed to create openai embedder for model %s", cfg.Model)
	}
	return &OpenAIEmbedder{
		inner:     inner,
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (o *OpenAIEmbedder) Model() string  { return o.model }
func (o *OpenAIEmbedder) Dimension() int { return o.dimension }

// EmbedStrings 实现 eino embedding.Embedder
func (o *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	return o.inner.EmbedStrings(ctx, texts, opts...)
}
