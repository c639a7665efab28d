package vector_store

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Malowking/guidekb/core/errors"
	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
	bolt "go.etcd.io/bbolt"
)

const (
	localIndexFile      = "index.db"
	localBuildingSuffix = ".building-"

	bucketMeta    = "meta"
	bucketEntries = "entries"
	metaKeyInfo   = "info"
)

// LocalStore 基于 bbolt 文件的本地向量库
// 条目在 Open 时整体加载到内存，检索为暴力余弦计算
type LocalStore struct {
	path string

	mu      sync.RWMutex
	opened  bool
	info    IndexInfo
	entries []Entry
	norms   []float64
}

// NewLocalStore 创建本地向量库，path 为索引目录
func NewLocalStore(config *VectorStoreConfig) (*LocalStore, error) {
	if config == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "config cannot be nil")
	}
	if config.Path == "" {
		return nil, errors.New(errors.ErrInvalidParameter, "local index path cannot be empty")
	}
	return &LocalStore{path: filepath.Clean(config.Path)}, nil
}

func (s *LocalStore) dbFile() string {
	return filepath.Join(s.path, localIndexFile)
}

// Exists 检查索引文件是否存在
func (s *LocalStore) Exists(ctx context.Context) (bool, error) {
	st, err := os.Stat(s.dbFile())
	if err == nil {
		return !st.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(errors.ErrFileReadFailed, err, "stat %s", s.dbFile())
}

// Replace 先写入同目录下的临时文件，成功后重命名覆盖 index.db
// 索引目录中只会触碰 index.db 及其临时文件
func (s *LocalStore) Replace(ctx context.Context, info IndexInfo, entries []Entry) (err error) {
	if err = os.MkdirAll(s.path, 0o755); err != nil {
		return errors.Wrapf(errors.ErrVectorStoreInit, err, "create directory %s", s.path)
	}

	tmp, err := os.CreateTemp(s.path, localIndexFile+localBuildingSuffix)
	if err != nil {
		return errors.Wrap(errors.ErrVectorStoreInit, err, "create temporary index file")
	}
	tmpFile := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpFile)
		}
	}()

	if err = writeBoltIndex(tmpFile, info, entries); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = os.Rename(tmpFile, s.dbFile()); err != nil {
		return errors.Wrapf(errors.ErrVectorInsert, err, "move index into %s", s.dbFile())
	}

	s.setEntries(info, entries)
	g.Log().Infof(ctx, "Local index written to %s with %d entries", s.dbFile(), len(entries))
	return nil
}

func writeBoltIndex(file string, info IndexInfo, entries []Entry) error {
	db, err := bolt.Open(file, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return errors.Wrapf(errors.ErrVectorStoreInit, err, "open %s", file)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if err != nil {
			return err
		}
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketEntries))
		if err != nil {
			return err
		}

		for _, entry := range entries {
			data, err := sonic.Marshal(entry)
			if err != nil {
				return err
			}
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			if err := bucket.Put(itob(seq), data); err != nil {
				return err
			}
		}

		data, err := sonic.Marshal(info)
		if err != nil {
			return err
		}
		return meta.Put([]byte(metaKeyInfo), data)
	})
	closeErr := db.Close()
	if err != nil {
		return errors.Wrap(errors.ErrVectorInsert, err, "write local index")
	}
	if closeErr != nil {
		return errors.Wrap(errors.ErrVectorInsert, closeErr, "close local index")
	}
	return nil
}

// Open 读出全部条目到内存，读完即关闭文件
func (s *LocalStore) Open(ctx context.Context) (IndexInfo, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return IndexInfo{}, err
	}
	if !exists {
		return IndexInfo{}, errors.Newf(errors.ErrVectorStoreNotFound, "no local index at %s", s.path)
	}

	db, err := bolt.Open(s.dbFile(), 0o600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return IndexInfo{}, errors.Wrapf(errors.ErrVectorStoreInit, err, "open %s", s.dbFile())
	}
	defer db.Close()

	var (
		info    IndexInfo
		entries []Entry
	)
	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		if meta == nil {
			return errors.New(errors.ErrVectorStoreNotFound, "index metadata is missing")
		}
		data := meta.Get([]byte(metaKeyInfo))
		if data == nil {
			return errors.New(errors.ErrVectorStoreNotFound, "index metadata is missing")
		}
		if err := sonic.Unmarshal(data, &info); err != nil {
			return err
		}

		bucket := tx.Bucket([]byte(bucketEntries))
		if bucket == nil {
			return nil
		}
		entries = make([]Entry, 0, bucket.Stats().KeyN)
		return bucket.ForEach(func(_, v []byte) error {
			var entry Entry
			if err := sonic.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		if errors.IsAppError(err) {
			return IndexInfo{}, err
		}
		return IndexInfo{}, errors.Wrapf(errors.ErrVectorStoreInit, err, "read %s", s.dbFile())
	}

	s.mu.Lock()
	s.setEntries(info, entries)
	s.mu.Unlock()

	g.Log().Infof(ctx, "Loaded local index from %s: %d entries, model=%s", s.path, len(entries), info.Model)
	return info, nil
}

// setEntries 调用方需持有写锁
func (s *LocalStore) setEntries(info IndexInfo, entries []Entry) {
	s.info = info
	s.entries = make([]Entry, len(entries))
	s.norms = make([]float64, len(entries))
	for i, e := range entries {
		s.entries[i] = e
		s.norms[i] = vectorNorm(e.Vector)
	}
	s.opened = true
}

// Search 暴力计算余弦相似度
func (s *LocalStore) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.opened {
		return nil, errors.New(errors.ErrVectorStoreNotFound, "local index is not opened")
	}
	if len(s.entries) == 0 {
		return []SearchResult{}, nil
	}
	if len(vector) != s.info.Dimension {
		return nil, errors.Newf(errors.ErrVectorSearch, "query dimension %d does not match index dimension %d", len(vector), s.info.Dimension)
	}

	queryNorm := vectorNorm(vector)
	results := make([]SearchResult, 0, len(s.entries))
	for i, e := range s.entries {
		if len(filter) > 0 && !filter.Match(e.Metadata) {
			continue
		}
		hit := SearchResult{
			Entry: Entry{ID: e.ID, Text: e.Text, Metadata: e.Metadata},
			Score: cosine(vector, queryNorm, e.Vector, s.norms[i]),
		}
		results = append(results, hit)
	}
	return rankResults(results, topK), nil
}

// Drop 删除 index.db 与遗留的临时文件，目录为空时一并删除
func (s *LocalStore) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.dbFile()); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(errors.ErrVectorDelete, err, "remove %s", s.dbFile())
	}
	leftovers, _ := filepath.Glob(filepath.Join(s.path, localIndexFile+localBuildingSuffix+"*"))
	for _, f := range leftovers {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			g.Log().Warningf(ctx, "Failed to remove stale index file %s: %v", f, err)
		}
	}
	// 目录非空时 Remove 失败，保留其中的其他文件
	_ = os.Remove(s.path)

	s.opened = false
	s.info = IndexInfo{}
	s.entries = nil
	s.norms = nil
	return nil
}

// Close 释放内存中的条目
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	s.entries = nil
	s.norms = nil
	return nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
