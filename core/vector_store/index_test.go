package vector_store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Malowking/guidekb/core/embedding"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guidelineChunks() []*schema.Document {
	return []*schema.Document{
		{
			ID:       "cardio-1",
			Content:  "Give aspirin for chest pain in suspected myocardial infarction and obtain an ECG within ten minutes.",
			MetaData: map[string]any{"source_file": "acs.pdf", "specialty": "cardiology", "page": 1},
		},
		{
			ID:       "endo-1",
			Content:  "Diabetic ketoacidosis requires intravenous insulin infusion and potassium replacement.",
			MetaData: map[string]any{"source_file": "dka.txt", "specialty": "endocrinology"},
		},
		{
			ID:       "general-1",
			Content:  "Hand hygiene before and after every patient contact reduces hospital infections.",
			MetaData: map[string]any{"source_file": "hygiene.txt", "specialty": "general"},
		},
	}
}

func newTestIndex(t *testing.T, path string, dim int) *Index {
	t.Helper()
	embedder, err := embedding.NewHashEmbedder("", dim)
	require.NoError(t, err)
	return NewIndex(newTestLocalStore(t, path), embedder, embedding.DefaultBatchOptions())
}

func TestIndexBuildAndSearch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")
	idx := newTestIndex(t, path, 256)

	results, err := idx.Search(ctx, "aspirin", 3, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "未就绪时返回空结果")

	require.NoError(t, idx.Build(ctx, guidelineChunks()))
	assert.True(t, idx.Ready())
	assert.Equal(t, 3, idx.Info().Entries)
	assert.Equal(t, "hashing-256", idx.Info().Model)

	results, err = idx.Search(ctx, "aspirin for chest pain myocardial infarction", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cardio-1", results[0].ID)
	assert.Equal(t, "acs.pdf", results[0].Metadata["source_file"])

	results, err = idx.Search(ctx, "insulin infusion", 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3, "k 大于条目数时返回全部")
	assert.Equal(t, "endo-1", results[0].ID)

	_, err = idx.Search(ctx, "insulin", 0, nil)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidParameter))
}

func TestIndexFilterFallback(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, filepath.Join(t.TempDir(), "index"), 256)
	require.NoError(t, idx.Build(ctx, guidelineChunks()))

	query := "insulin infusion for ketoacidosis"

	filtered, err := idx.Search(ctx, query, 3, Filter{"specialty": "cardiology"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "cardio-1", filtered[0].ID)

	unfiltered, err := idx.Search(ctx, query, 3, nil)
	require.NoError(t, err)

	fallback, err := idx.Search(ctx, query, 3, Filter{"specialty": "oncology"})
	require.NoError(t, err)
	assert.Equal(t, unfiltered, fallback)
}

func TestIndexEmptyCorpus(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")
	idx := newTestIndex(t, path, 64)

	require.NoError(t, idx.Build(ctx, nil))
	assert.True(t, idx.Ready())

	results, err := idx.Search(ctx, "anything", 3, Filter{"specialty": "cardiology"})
	require.NoError(t, err)
	assert.Empty(t, results)

	// 空索引也被持久化
	loaded, err := newTestIndex(t, path, 64).Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)
}

func TestIndexLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")

	t.Run("没有持久化索引", func(t *testing.T) {
		loaded, err := newTestIndex(t, path, 128).Load(ctx)
		require.NoError(t, err)
		assert.False(t, loaded)
	})

	built := newTestIndex(t, path, 128)
	require.NoError(t, built.Build(ctx, guidelineChunks()))
	want, err := built.Search(ctx, "hand hygiene", 2, nil)
	require.NoError(t, err)

	t.Run("加载后结果一致", func(t *testing.T) {
		idx := newTestIndex(t, path, 128)
		loaded, err := idx.Load(ctx)
		require.NoError(t, err)
		require.True(t, loaded)

		got, err := idx.Search(ctx, "hand hygiene", 2, nil)
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for n := range want {
			assert.Equal(t, want[n].ID, got[n].ID)
			assert.InDelta(t, want[n].Score, got[n].Score, 1e-6)
		}
	})

	t.Run("模型维度不一致", func(t *testing.T) {
		idx := newTestIndex(t, path, 64)
		loaded, err := idx.Load(ctx)
		assert.False(t, loaded)
		assert.True(t, errors.HasCode(err, errors.ErrIndexModelMismatch))
		assert.False(t, idx.Ready())
	})
}
