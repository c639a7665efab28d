package vector_store

import (
	"context"
	"sync"
	"time"

	"github.com/Malowking/guidekb/core/embedding"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/google/uuid"
)

// Index 指南向量索引：负责向量化、持久化与检索
// 一个 Index 只绑定一个向量库与一个 embedding 模型
type Index struct {
	store    VectorStore
	embedder embedding.Embedder
	batch    embedding.BatchOptions

	mu    sync.RWMutex
	ready bool
	info  IndexInfo
}

func NewIndex(store VectorStore, embedder embedding.Embedder, batch embedding.BatchOptions) *Index {
	return &Index{
		store:    store,
		embedder: embedder,
		batch:    batch,
	}
}

// Load 打开已持久化的索引
// 没有持久化索引时返回 false；索引的模型或维度与当前 embedder 不一致时返回 ErrIndexModelMismatch
func (i *Index) Load(ctx context.Context) (bool, error) {
	exists, err := i.store.Exists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	info, err := i.store.Open(ctx)
	if err != nil {
		return false, err
	}
	if info.Model != i.embedder.Model() || info.Dimension != i.embedder.Dimension() {
		return false, errors.Newf(errors.ErrIndexModelMismatch,
			"index built with %s/%d, current embedder is %s/%d",
			info.Model, info.Dimension, i.embedder.Model(), i.embedder.Dimension())
	}

	i.mu.Lock()
	i.info = info
	i.ready = true
	i.mu.Unlock()
	return true, nil
}

// Build 向量化全部分块并整体替换持久化索引，分块为空时也会写入空索引
func (i *Index) Build(ctx context.Context, chunks []*schema.Document) error {
	texts := make([]string, len(chunks))
	for n, chunk := range chunks {
		texts[n] = chunk.Content
	}

	start := time.Now()
	vectors, err := embedding.EmbedTexts(ctx, i.embedder, texts, i.batch)
	if err != nil {
		return errors.Wrap(errors.ErrIndexingFailed, err, "embed guideline chunks")
	}

	entries := make([]Entry, len(chunks))
	for n, chunk := range chunks {
		id := chunk.ID
		if id == "" {
			id = uuid.New().String()
		}
		entries[n] = Entry{
			ID:       id,
			Text:     chunk.Content,
			Vector:   vectors[n],
			Metadata: chunk.MetaData,
		}
	}

	info := IndexInfo{
		Model:     i.embedder.Model(),
		Dimension: i.embedder.Dimension(),
		Entries:   len(entries),
		BuiltAt:   time.Now().UTC(),
	}
	if err := i.store.Replace(ctx, info, entries); err != nil {
		return err
	}

	i.mu.Lock()
	i.info = info
	i.ready = true
	i.mu.Unlock()

	g.Log().Infof(ctx, "Guideline index built: %d chunks, model=%s, took %v", len(entries), info.Model, time.Since(start))
	return nil
}

// Search 按查询文本检索 k 条最相似的分块
// 带过滤条件且没有命中时，退回到不带过滤条件的检索
func (i *Index) Search(ctx context.Context, query string, k int, filter Filter) ([]SearchResult, error) {
	if !i.Ready() {
		return []SearchResult{}, nil
	}
	if k <= 0 {
		return nil, errors.Newf(errors.ErrInvalidParameter, "k must be positive, got %d", k)
	}

	vector, err := embedding.EmbedText(ctx, i.embedder, query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRetrievalFailed, err, "embed query")
	}

	if len(filter) > 0 {
		results, err := i.store.Search(ctx, vector, k, filter)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return results, nil
		}
		g.Log().Debugf(ctx, "No hits for filter %v, falling back to unfiltered search", map[string]string(filter))
	}
	return i.store.Search(ctx, vector, k, nil)
}

// Ready 索引是否可检索
func (i *Index) Ready() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ready
}

// Info 当前索引信息，未就绪时为零值
func (i *Index) Info() IndexInfo {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.info
}

// Drop 删除持久化索引
func (i *Index) Drop(ctx context.Context) error {
	i.mu.Lock()
	i.ready = false
	i.info = IndexInfo{}
	i.mu.Unlock()
	return i.store.Drop(ctx)
}

func (i *Index) Close() error {
	i.mu.Lock()
	i.ready = false
	i.mu.Unlock()
	return i.store.Close()
}
