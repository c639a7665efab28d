package indexer

import (
	"context"

	"github.com/Malowking/guidekb/core/common"
	"github.com/Malowking/guidekb/core/config"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
)

// BuildChunkPipeline 编排 加载 -> 切分 -> 统计 三个节点
// 输入为指南根目录，输出为可直接向量化的分块
func BuildChunkPipeline(ctx context.Context, chunkSize, overlapSize int) (compose.Runnable[document.Source, []*schema.Document], error) {
	const (
		Loader              = "GuidelineLoader"
		DocumentTransformer = "DocumentTransformer"
		ChunkStats          = "ChunkStats"
	)

	loader, err := NewGuidelineLoader(ctx)
	if err != nil {
		return nil, err
	}
	transformer, err := NewChunker(ctx, chunkSize, overlapSize)
	if err != nil {
		return nil, err
	}

	gr := compose.NewGraph[document.Source, []*schema.Document]()
	_ = gr.AddLoaderNode(Loader, loader)
	_ = gr.AddDocumentTransformerNode(DocumentTransformer, transformer)
	_ = gr.AddLambdaNode(ChunkStats, compose.InvokableLambda(logChunkStats))
	_ = gr.AddEdge(compose.START, Loader)
	_ = gr.AddEdge(Loader, DocumentTransformer)
	_ = gr.AddEdge(DocumentTransformer, ChunkStats)
	_ = gr.AddEdge(ChunkStats, compose.END)

	r, err := gr.Compile(ctx, compose.WithGraphName("guideline_chunks"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternalError, err, "failed to compile chunk pipeline")
	}
	return r, nil
}

// LoadChunks 加载并切分指南目录
func LoadChunks(ctx context.Context, cfg config.GuidelinesConfig) ([]*schema.Document, error) {
	r, err := BuildChunkPipeline(ctx, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	chunks, err := r.Invoke(ctx, document.Source{URI: cfg.Dir})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrIndexingFailed, err, "failed to chunk guidelines in %s", cfg.Dir)
	}
	return chunks, nil
}

func logChunkStats(ctx context.Context, chunks []*schema.Document) ([]*schema.Document, error) {
	sources := make(map[string]struct{})
	for _, c := range chunks {
		if src, ok := c.MetaData[common.MetaSourceFile].(string); ok {
			sources[src] = struct{}{}
		}
	}
	g.Log().Infof(ctx, "Split guidelines into %d chunks from %d source files", len(chunks), len(sources))
	if chunks == nil {
		chunks = []*schema.Document{}
	}
	return chunks, nil
}
