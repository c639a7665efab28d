// Package guidelines 临床指南检索服务：启动时建立或加载索引，对外提供按专科检索、
// 治疗方案推荐与诊断上下文构建。
//
// Service 是显式构造的对象，调用方自行持有；检索路径可并发调用。
package guidelines

import (
	"context"
	"sync"

	"github.com/Malowking/guidekb/core/config"
	"github.com/Malowking/guidekb/core/embedding"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/Malowking/guidekb/core/file_store"
	"github.com/Malowking/guidekb/core/indexer"
	"github.com/Malowking/guidekb/core/vector_store"
	"github.com/gogf/gf/v2/frame/g"
)

// Service 指南检索服务
type Service struct {
	cfg *config.Config

	mu          sync.RWMutex
	initialized bool
	capability  embedding.Capability
	capProvided bool
	store       vector_store.VectorStore
	ownsStore   bool // store 由服务按配置创建，Close 后需重新创建
	index       *vector_store.Index
	degraded    string // 非空表示处于降级模式，内容为原因
}

// Option 服务构造选项
type Option func(*Service)

// WithEmbedder 使用指定的 embedder，跳过能力探测
func WithEmbedder(e embedding.Embedder) Option {
	return func(s *Service) {
		s.capability = embedding.AvailableWith(e)
		s.capProvided = true
	}
}

// WithCapability 直接指定向量化能力
func WithCapability(c embedding.Capability) Option {
	return func(s *Service) {
		s.capability = c
		s.capProvided = true
	}
}

// WithVectorStore 使用指定的向量库，不再按配置创建
func WithVectorStore(store vector_store.VectorStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// NewService 创建服务，此时不做任何 I/O
func NewService(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize 建立或加载索引，重复调用直接返回
// 只有配置非法时返回错误；向量化不可用、向量库或建索引失败时进入降级模式，检索返回空结果
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx)
}

func (s *Service) initializeLocked(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	if !s.capProvided {
		s.capability = embedding.Detect(ctx, s.cfg.Embedding)
	}
	s.initialized = true

	if !s.capability.IsAvailable() {
		s.degrade(ctx, "embedding unavailable: "+s.capability.Reason)
		return nil
	}

	if s.store == nil {
		store, err := vector_store.InitializeVectorStore(ctx, s.cfg)
		if err != nil {
			s.degrade(ctx, err.Error())
			return nil
		}
		s.store = store
		s.ownsStore = true
	}

	s.index = vector_store.NewIndex(s.store, s.capability.Embedder, embedding.BatchOptionsFrom(s.cfg.Embedding))
	if err := s.loadOrBuild(ctx); err != nil {
		s.degrade(ctx, err.Error())
		return nil
	}
	s.degraded = ""
	return nil
}

// loadOrBuild 已持久化的索引优先，不会因为目录里多了文件而重建
func (s *Service) loadOrBuild(ctx context.Context) error {
	loaded, err := s.index.Load(ctx)
	switch {
	case err == nil && loaded:
		info := s.index.Info()
		g.Log().Infof(ctx, "Loaded guideline index: %d chunks, model=%s, built at %s",
			info.Entries, info.Model, info.BuiltAt.Format("2006-01-02 15:04:05"))
		return nil
	case errors.HasCode(err, errors.ErrIndexModelMismatch):
		g.Log().Warningf(ctx, "Rebuilding guideline index: %v", err)
	case err != nil:
		return err
	}
	return s.build(ctx)
}

func (s *Service) build(ctx context.Context) error {
	report, err := file_store.SyncGuidelines(ctx, s.cfg.ObjectStore, s.cfg.Guidelines.Dir)
	if err != nil {
		// 对象存储不可用时仍用本地已有文件建索引
		g.Log().Warningf(ctx, "Guideline sync skipped: %v", err)
	} else if report.Downloaded > 0 {
		g.Log().Infof(ctx, "Downloaded %d guideline files from object storage", report.Downloaded)
	}

	chunks, err := indexer.LoadChunks(ctx, s.cfg.Guidelines)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		g.Log().Warningf(ctx, "No guideline documents found in %s, creating an empty index", s.cfg.Guidelines.Dir)
	}
	return s.index.Build(ctx, chunks)
}

// degrade 调用方需持有写锁
func (s *Service) degrade(ctx context.Context, reason string) {
	s.degraded = reason
	g.Log().Warningf(ctx, "Guideline retrieval running in degraded mode: %s", reason)
}

// Rebuild 删除持久化索引并重新加载、切分、向量化全部指南
func (s *Service) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.initializeLocked(ctx); err != nil {
		return err
	}
	if s.index == nil {
		return errors.Newf(errors.ErrEmbeddingUnavailable, "cannot rebuild guideline index: %s", s.degraded)
	}

	if err := s.index.Drop(ctx); err != nil {
		return err
	}
	if err := s.build(ctx); err != nil {
		s.degrade(ctx, err.Error())
		return err
	}
	s.degraded = ""
	return nil
}

// Initialized 是否已经执行过初始化（包括降级）
func (s *Service) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Capability 初始化时确定的向量化能力
func (s *Service) Capability() embedding.Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capability
}

// Degraded 是否处于降级模式及原因
func (s *Service) Degraded() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded != "", s.degraded
}

// IndexInfo 当前索引信息，索引未就绪时 ok 为 false
func (s *Service) IndexInfo() (vector_store.IndexInfo, bool) {
	idx := s.readyIndex()
	if idx == nil {
		return vector_store.IndexInfo{}, false
	}
	return idx.Info(), true
}

// readyIndex 返回可检索的索引，未就绪时返回 nil
func (s *Service) readyIndex() *vector_store.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil || !s.index.Ready() {
		return nil
	}
	return s.index
}

// ensureInitialized 检索入口按需初始化
func (s *Service) ensureInitialized(ctx context.Context) {
	if s.Initialized() {
		return
	}
	if err := s.Initialize(ctx); err != nil {
		g.Log().Errorf(ctx, "Guideline service initialization failed: %v", err)
	}
}

// Close 释放向量库资源，之后可以重新 Initialize
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch {
	case s.index != nil:
		err = s.index.Close()
	case s.store != nil:
		err = s.store.Close()
	}
	s.index = nil
	if s.ownsStore {
		s.store = nil
		s.ownsStore = false
	}
	s.initialized = false
	return err
}
