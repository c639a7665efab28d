package vector_store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Malowking/guidekb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	g.Log().SetConfig(glog.Config{
		Flags:       glog.F_TIME_STD,
		Level:       glog.LEVEL_ALL,
		StdoutPrint: true,
	})
	os.Exit(m.Run())
}

func testEntries() []Entry {
	return []Entry{
		{ID: "a", Text: "aspirin", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"specialty": "cardiology", "page": 1}},
		{ID: "b", Text: "insulin", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"specialty": "endocrinology"}},
		{ID: "c", Text: "heparin", Vector: []float32{0.8, 0.6, 0}, Metadata: map[string]any{"specialty": "cardiology"}},
	}
}

func newTestLocalStore(t *testing.T, path string) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(&VectorStoreConfig{Type: VectorStoreTypeLocal, Path: path})
	require.NoError(t, err)
	return store
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")
	info := IndexInfo{Model: "m", Dimension: 3, Entries: 3, BuiltAt: time.Now().UTC()}

	t.Run("写入前不存在", func(t *testing.T) {
		store := newTestLocalStore(t, path)
		exists, err := store.Exists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = store.Open(ctx)
		assert.True(t, errors.HasCode(err, errors.ErrVectorStoreNotFound))

		_, err = store.Search(ctx, []float32{1, 0, 0}, 1, nil)
		assert.True(t, errors.HasCode(err, errors.ErrVectorStoreNotFound))
	})

	t.Run("写入后检索", func(t *testing.T) {
		store := newTestLocalStore(t, path)
		require.NoError(t, store.Replace(ctx, info, testEntries()))

		results, err := store.Search(ctx, []float32{1, 0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "a", results[0].ID)
		assert.Equal(t, "c", results[1].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.InDelta(t, 0.8, results[1].Score, 1e-6)
		assert.Nil(t, results[0].Vector)
	})

	t.Run("重新打开", func(t *testing.T) {
		store := newTestLocalStore(t, path)
		exists, err := store.Exists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)

		got, err := store.Open(ctx)
		require.NoError(t, err)
		assert.Equal(t, "m", got.Model)
		assert.Equal(t, 3, got.Dimension)
		assert.Equal(t, 3, got.Entries)

		results, err := store.Search(ctx, []float32{0, 1, 0}, 1, Filter{"specialty": "cardiology"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "c", results[0].ID)

		// JSON 往返后数字为 float64
		results, err = store.Search(ctx, []float32{1, 0, 0}, 1, Filter{"page": "1"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].ID)
	})

	t.Run("维度不一致", func(t *testing.T) {
		store := newTestLocalStore(t, path)
		_, err := store.Open(ctx)
		require.NoError(t, err)
		_, err = store.Search(ctx, []float32{1, 0}, 1, nil)
		assert.True(t, errors.HasCode(err, errors.ErrVectorSearch))
	})

	t.Run("替换为空索引", func(t *testing.T) {
		store := newTestLocalStore(t, path)
		require.NoError(t, store.Replace(ctx, IndexInfo{Model: "m", Dimension: 3}, nil))

		reopened := newTestLocalStore(t, path)
		got, err := reopened.Open(ctx)
		require.NoError(t, err)
		assert.Zero(t, got.Entries)

		results, err := reopened.Search(ctx, []float32{1, 0, 0}, 3, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("删除", func(t *testing.T) {
		store := newTestLocalStore(t, path)
		require.NoError(t, store.Drop(ctx))
		exists, err := store.Exists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestLocalStoreConcurrentSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t, filepath.Join(t.TempDir(), "index"))
	require.NoError(t, store.Replace(ctx, IndexInfo{Model: "m", Dimension: 3, Entries: 3}, testEntries()))

	var wg sync.WaitGroup
	for n := 0; n < 16; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := store.Search(ctx, []float32{1, 0, 0}, 3, nil)
			assert.NoError(t, err)
			assert.Len(t, results, 3)
		}()
	}
	wg.Wait()
}

func TestNewLocalStore(t *testing.T) {
	_, err := NewLocalStore(nil)
	assert.Error(t, err)

	_, err = NewLocalStore(&VectorStoreConfig{Type: VectorStoreTypeLocal})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidParameter))
}

func TestLocalStoreKeepsForeignFiles(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	corpus := filepath.Join(base, "guidelines", "cardiology", "acs.txt")
	unrelated := filepath.Join(base, "unrelated.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(corpus), 0o755))
	require.NoError(t, os.WriteFile(corpus, []byte("aspirin"), 0o644))
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))

	store := newTestLocalStore(t, base)
	require.NoError(t, store.Replace(ctx, IndexInfo{Model: "m", Dimension: 3, Entries: 3}, testEntries()))
	require.NoError(t, store.Replace(ctx, IndexInfo{Model: "m", Dimension: 3, Entries: 3}, testEntries()))
	assert.FileExists(t, corpus)
	assert.FileExists(t, unrelated)
	assert.FileExists(t, filepath.Join(base, localIndexFile))

	leftovers, err := filepath.Glob(filepath.Join(base, localIndexFile+localBuildingSuffix+"*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	require.NoError(t, store.Drop(ctx))
	assert.FileExists(t, corpus)
	assert.FileExists(t, unrelated)
	assert.NoFileExists(t, filepath.Join(base, localIndexFile))
	assert.DirExists(t, base)
}

func TestLocalStoreDropRemovesEmptyDir(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")
	store := newTestLocalStore(t, path)
	require.NoError(t, store.Replace(ctx, IndexInfo{Model: "m", Dimension: 3}, nil))
	require.NoError(t, store.Drop(ctx))
	assert.NoDirExists(t, path)

	// 重复删除不报错
	require.NoError(t, store.Drop(ctx))
}
